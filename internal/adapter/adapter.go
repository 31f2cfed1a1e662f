// Package adapter bridges the regulator to a host economy. The controller
// only ever sees the Adapter interface; concrete implementations cover an
// in-process host and a remote HTTP host.
package adapter

import (
	"context"

	"github.com/aristath/warden/internal/domain"
)

// EventHandler receives host-pushed economic events.
type EventHandler func(ev domain.EconomicEvent)

// Adapter is the host integration surface. GetState and SetParam may be
// remote and therefore take a context; SetParam must be idempotent across
// identical (key, value, scope) triples because a rollback can repeat it.
type Adapter interface {
	GetState(ctx context.Context) (*domain.EconomyState, error)
	SetParam(ctx context.Context, key string, value float64, scope *domain.ParameterScope) error

	// OnEvent wires a push channel for host events. Adapters without a
	// push channel implement it as a no-op; the regulator then relies on
	// state.RecentTransactions alone.
	OnEvent(handler EventHandler)
}
