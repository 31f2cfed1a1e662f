// Package events is the notification spine of the regulator: pipeline
// stages publish named events and host integrations subscribe by handler
// id. Emission is synchronous and ordered; a panicking handler is contained
// and never blocks the rest of the chain.
package events

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Named events emitted by the controller. The set is open; hosts may emit
// and subscribe to their own names.
const (
	EventDecision     = "decision"
	EventAlert        = "alert"
	EventRollback     = "rollback"
	EventBeforeAction = "beforeAction"
	EventAfterAction  = "afterAction"
)

// MaxHandlersPerEvent bounds the handler chain of a single event name.
const MaxHandlersPerEvent = 100

// ErrVeto is the sentinel a beforeAction handler returns to block the
// pending plan. Emit surfaces it to the caller and skips the remaining
// handlers.
var ErrVeto = errors.New("events: handler vetoed")

// Handler receives the event payload. A nil return continues the chain.
type Handler func(payload any) error

type subscription struct {
	id      string
	handler Handler
}

// Bus fans events out to subscribers in registration order. Safe for
// registration from handlers is not supported; subscribe during setup.
type Bus struct {
	log      zerolog.Logger
	handlers map[string][]subscription
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:      log.With().Str("component", "events").Logger(),
		handlers: map[string][]subscription{},
	}
}

// Subscribe appends a handler to the event's chain. Registering the same
// (event, id) pair twice is a no-op. A full chain rejects the handler.
func (b *Bus) Subscribe(event, id string, h Handler) error {
	chain := b.handlers[event]
	for _, sub := range chain {
		if sub.id == id {
			return nil
		}
	}
	if len(chain) >= MaxHandlersPerEvent {
		return fmt.Errorf("events: handler limit reached for %q", event)
	}
	b.handlers[event] = append(chain, subscription{id: id, handler: h})
	return nil
}

// Unsubscribe removes a handler by id. Unknown ids are a no-op.
func (b *Bus) Unsubscribe(event, id string) {
	chain := b.handlers[event]
	for i, sub := range chain {
		if sub.id == id {
			b.handlers[event] = append(chain[:i:i], chain[i+1:]...)
			return
		}
	}
}

// HandlerCount reports the chain length for an event.
func (b *Bus) HandlerCount(event string) int { return len(b.handlers[event]) }

// Emit invokes the event's handlers in registration order. A handler
// returning ErrVeto short-circuits and Emit returns ErrVeto; any other
// error, and any panic, is logged and the chain continues.
func (b *Bus) Emit(event string, payload any) error {
	for _, sub := range b.handlers[event] {
		vetoed := b.invoke(event, sub, payload)
		if vetoed {
			return ErrVeto
		}
	}
	return nil
}

func (b *Bus) invoke(event string, sub subscription, payload any) (vetoed bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event", event).
				Str("handler", sub.id).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	err := sub.handler(payload)
	if errors.Is(err, ErrVeto) {
		return true
	}
	if err != nil {
		b.log.Warn().Err(err).Str("event", event).Str("handler", sub.id).Msg("event handler failed")
	}
	return false
}
