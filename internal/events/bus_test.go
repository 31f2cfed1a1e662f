package events

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit_RegistrationOrder(t *testing.T) {
	b := NewBus(zerolog.Nop())
	var order []string

	for _, id := range []string{"first", "second", "third"} {
		id := id
		require.NoError(t, b.Subscribe(EventAlert, id, func(any) error {
			order = append(order, id)
			return nil
		}))
	}

	require.NoError(t, b.Emit(EventAlert, nil))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestSubscribe_DuplicateIsNoOp(t *testing.T) {
	b := NewBus(zerolog.Nop())
	calls := 0

	require.NoError(t, b.Subscribe(EventDecision, "h", func(any) error { calls++; return nil }))
	require.NoError(t, b.Subscribe(EventDecision, "h", func(any) error { calls += 100; return nil }))
	assert.Equal(t, 1, b.HandlerCount(EventDecision))

	require.NoError(t, b.Emit(EventDecision, nil))
	assert.Equal(t, 1, calls, "the first registration wins")
}

func TestSubscribe_ChainBounded(t *testing.T) {
	b := NewBus(zerolog.Nop())
	for i := 0; i < MaxHandlersPerEvent; i++ {
		require.NoError(t, b.Subscribe(EventAlert, fmt.Sprintf("h-%d", i), func(any) error { return nil }))
	}
	assert.Error(t, b.Subscribe(EventAlert, "one-too-many", func(any) error { return nil }))
	assert.Equal(t, MaxHandlersPerEvent, b.HandlerCount(EventAlert))
}

func TestEmit_PanicContained(t *testing.T) {
	b := NewBus(zerolog.Nop())
	reached := false

	require.NoError(t, b.Subscribe(EventRollback, "bomb", func(any) error { panic("boom") }))
	require.NoError(t, b.Subscribe(EventRollback, "after", func(any) error { reached = true; return nil }))

	require.NoError(t, b.Emit(EventRollback, nil))
	assert.True(t, reached, "handlers after a panic still run")
}

func TestEmit_ErrorDoesNotStopChain(t *testing.T) {
	b := NewBus(zerolog.Nop())
	reached := false

	require.NoError(t, b.Subscribe(EventDecision, "bad", func(any) error { return errors.New("nope") }))
	require.NoError(t, b.Subscribe(EventDecision, "after", func(any) error { reached = true; return nil }))

	require.NoError(t, b.Emit(EventDecision, nil))
	assert.True(t, reached)
}

func TestEmit_VetoShortCircuits(t *testing.T) {
	b := NewBus(zerolog.Nop())
	reached := false

	require.NoError(t, b.Subscribe(EventBeforeAction, "gate", func(any) error { return ErrVeto }))
	require.NoError(t, b.Subscribe(EventBeforeAction, "after", func(any) error { reached = true; return nil }))

	err := b.Emit(EventBeforeAction, nil)
	assert.ErrorIs(t, err, ErrVeto)
	assert.False(t, reached, "veto stops the chain")
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus(zerolog.Nop())
	calls := 0

	require.NoError(t, b.Subscribe(EventAlert, "h", func(any) error { calls++; return nil }))
	b.Unsubscribe(EventAlert, "h")
	b.Unsubscribe(EventAlert, "missing")

	require.NoError(t, b.Emit(EventAlert, nil))
	assert.Zero(t, calls)
}
