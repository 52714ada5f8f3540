// Package events provides event management functionality.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Account lifecycle
	AccountLinked      EventType = "ACCOUNT_LINKED"
	AccountActivated   EventType = "ACCOUNT_ACTIVATED"
	AccountDeactivated EventType = "ACCOUNT_DEACTIVATED"
	AccountUnlinked    EventType = "ACCOUNT_UNLINKED"
	SessionExpired     EventType = "SESSION_EXPIRED"

	// Auth handshake lifecycle
	HandshakeStateChanged EventType = "HANDSHAKE_STATE_CHANGED"
	AuthSurfaceRequested  EventType = "AUTH_SURFACE_REQUESTED"

	// Order lifecycle
	OrderCreated        EventType = "ORDER_CREATED"
	OrderBatchCompleted EventType = "ORDER_BATCH_COMPLETED"
	OrderStatusChanged  EventType = "ORDER_STATUS_CHANGED"

	// System
	ErrorOccurred   EventType = "ERROR_OCCURRED"
	BackupCompleted EventType = "BACKUP_COMPLETED"
)

// AllEventTypes lists every event type, for stream subscribers that
// want the full firehose.
var AllEventTypes = []EventType{
	AccountLinked,
	AccountActivated,
	AccountDeactivated,
	AccountUnlinked,
	SessionExpired,
	HandshakeStateChanged,
	AuthSurfaceRequested,
	OrderCreated,
	OrderBatchCompleted,
	OrderStatusChanged,
	ErrorOccurred,
	BackupCompleted,
}

// Event represents a system event with typed data
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// GetTypedData attempts to convert the Data map to typed EventData.
// Returns the typed data if conversion is successful, nil otherwise
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	switch e.Type {
	case AccountLinked, AccountActivated, AccountDeactivated, AccountUnlinked, SessionExpired:
		var data AccountEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case HandshakeStateChanged:
		var data HandshakeStateChangedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case OrderCreated:
		var data OrderCreatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case OrderBatchCompleted:
		var data OrderBatchCompletedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case OrderStatusChanged:
		var data OrderStatusChangedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ErrorOccurred:
		var data ErrorEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	}

	return nil
}

// convertMapToStruct converts a map[string]interface{} to a struct
func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}
