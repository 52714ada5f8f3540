package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSubscribeAndEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(OrderCreated, func(event *Event) {
		received = append(received, event)
	})

	bus.Emit(OrderCreated, "orders", map[string]interface{}{"batch_id": "b-1"})
	bus.Emit(OrderBatchCompleted, "orders", nil)

	require.Len(t, received, 1)
	assert.Equal(t, OrderCreated, received[0].Type)
	assert.Equal(t, "orders", received[0].Module)
	assert.Equal(t, "b-1", received[0].Data["batch_id"])
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	unsubscribe := bus.Subscribe(AccountLinked, func(event *Event) {
		calls++
	})

	bus.Emit(AccountLinked, "accounts", nil)
	unsubscribe()
	unsubscribe() // second call is a no-op
	bus.Emit(AccountLinked, "accounts", nil)

	assert.Equal(t, 1, calls)
}

func TestBusUnsubscribeOutOfOrder(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	callsA, callsB, callsC := 0, 0, 0
	unsubA := bus.Subscribe(AccountLinked, func(event *Event) { callsA++ })
	unsubB := bus.Subscribe(AccountLinked, func(event *Event) { callsB++ })
	unsubC := bus.Subscribe(AccountLinked, func(event *Event) { callsC++ })

	// Unsubscribing an earlier handler must not shift which handler a
	// later unsubscribe removes.
	unsubA()
	unsubB()
	bus.Emit(AccountLinked, "accounts", nil)
	assert.Equal(t, 0, callsA)
	assert.Equal(t, 0, callsB)
	assert.Equal(t, 1, callsC)

	unsubC()
	bus.Emit(AccountLinked, "accounts", nil)
	assert.Equal(t, 1, callsC)
}

func TestBusRecoversFromPanickingHandler(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	called := false
	bus.Subscribe(ErrorOccurred, func(event *Event) {
		panic("boom")
	})
	bus.Subscribe(ErrorOccurred, func(event *Event) {
		called = true
	})

	assert.NotPanics(t, func() {
		bus.Emit(ErrorOccurred, "test", nil)
	})
	assert.True(t, called, "later handlers still run after a panic")
}

func TestManagerEmitTyped(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var received *Event
	bus.Subscribe(HandshakeStateChanged, func(event *Event) {
		received = event
	})

	manager.EmitTyped(HandshakeStateChanged, "handshake", &HandshakeStateChangedData{
		HandshakeID: "hs-1",
		AccountID:   "acc-1",
		FromState:   "OPENED",
		ToState:     "AWAITING_CODE",
	})

	require.NotNil(t, received)
	assert.Equal(t, "hs-1", received.Data["handshake_id"])

	typed := received.GetTypedData()
	require.NotNil(t, typed)
	data, ok := typed.(*HandshakeStateChangedData)
	require.True(t, ok)
	assert.Equal(t, "AWAITING_CODE", data.ToState)
}

func TestManagerEmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var received *Event
	bus.Subscribe(ErrorOccurred, func(event *Event) {
		received = event
	})

	manager.EmitError("orders", errors.New("gateway unreachable"), map[string]interface{}{
		"account_id": "acc-1",
	})

	require.NotNil(t, received)
	assert.Equal(t, "gateway unreachable", received.Data["error"])
}

func TestGetTypedDataOrderBatch(t *testing.T) {
	event := &Event{
		Type: OrderBatchCompleted,
		Data: map[string]interface{}{
			"batch_id":      "b-9",
			"placed_count":  2,
			"failed_count":  1,
			"all_succeeded": false,
			"all_failed":    false,
		},
	}

	typed := event.GetTypedData()
	require.NotNil(t, typed)
	data, ok := typed.(*OrderBatchCompletedData)
	require.True(t, ok)
	assert.Equal(t, 2, data.PlacedCount)
	assert.Equal(t, 1, data.FailedCount)
}

func TestGetTypedDataNilData(t *testing.T) {
	event := &Event{Type: OrderCreated}
	assert.Nil(t, event.GetTypedData())
}
