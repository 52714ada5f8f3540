package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// AccountEventData contains data for account lifecycle events. The
// same shape serves linked/activated/deactivated/unlinked/expired;
// Phase carries the concrete transition.
type AccountEventData struct {
	AccountID  string `json:"account_id"`
	BrokerKind string `json:"broker_kind"`
	Phase      string `json:"phase"`
}

// EventType returns the event type for AccountEventData
func (d *AccountEventData) EventType() EventType {
	switch d.Phase {
	case "linked":
		return AccountLinked
	case "activated":
		return AccountActivated
	case "deactivated":
		return AccountDeactivated
	case "unlinked":
		return AccountUnlinked
	case "session_expired":
		return SessionExpired
	}
	return AccountLinked
}

// HandshakeStateChangedData contains data for HandshakeStateChanged events
type HandshakeStateChangedData struct {
	HandshakeID string `json:"handshake_id"`
	AccountID   string `json:"account_id"`
	FromState   string `json:"from_state"`
	ToState     string `json:"to_state"`
	Reason      string `json:"reason,omitempty"`
}

// EventType returns the event type for HandshakeStateChangedData
func (d *HandshakeStateChangedData) EventType() EventType {
	return HandshakeStateChanged
}

// OrderCreatedData contains data for OrderCreated events
type OrderCreatedData struct {
	BatchID       string `json:"batch_id"`
	AccountID     string `json:"account_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Quantity      int    `json:"quantity"`
	Status        string `json:"status"`
	BrokerOrderID string `json:"broker_order_id,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// EventType returns the event type for OrderCreatedData
func (d *OrderCreatedData) EventType() EventType {
	return OrderCreated
}

// OrderBatchCompletedData contains data for OrderBatchCompleted events
type OrderBatchCompletedData struct {
	BatchID      string `json:"batch_id"`
	Symbol       string `json:"symbol"`
	PlacedCount  int    `json:"placed_count"`
	FailedCount  int    `json:"failed_count"`
	AllSucceeded bool   `json:"all_succeeded"`
	AllFailed    bool   `json:"all_failed"`
}

// EventType returns the event type for OrderBatchCompletedData
func (d *OrderBatchCompletedData) EventType() EventType {
	return OrderBatchCompleted
}

// OrderStatusChangedData contains data for OrderStatusChanged events
type OrderStatusChangedData struct {
	OrderID        string `json:"order_id"`
	AccountID      string `json:"account_id"`
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status"`
	Source         string `json:"source,omitempty"`
}

// EventType returns the event type for OrderStatusChangedData
func (d *OrderStatusChangedData) EventType() EventType {
	return OrderStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
