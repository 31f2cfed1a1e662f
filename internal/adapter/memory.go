package adapter

import (
	"context"
	"sync"

	"github.com/aristath/warden/internal/domain"
)

// Memory is an in-process host, used by embedded integrations and tests.
// Unlike the pipeline core it locks internally: the host side mutates state
// from its own goroutines.
type Memory struct {
	mu      sync.Mutex
	state   *domain.EconomyState
	params  map[string]float64
	handler EventHandler

	setCalls []SetCall
}

// SetCall records one SetParam invocation for inspection.
type SetCall struct {
	Key   string
	Value float64
	Scope *domain.ParameterScope
}

// NewMemory creates an adapter around the given mutable state.
func NewMemory(state *domain.EconomyState) *Memory {
	if state == nil {
		state = &domain.EconomyState{}
	}
	return &Memory{state: state, params: map[string]float64{}}
}

// GetState returns the current state. The caller must treat it as
// read-only for the duration of the tick.
func (m *Memory) GetState(context.Context) (*domain.EconomyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

// SetState swaps in a fresh host snapshot.
func (m *Memory) SetState(state *domain.EconomyState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// SetParam stores the value. Idempotent by construction.
func (m *Memory) SetParam(_ context.Context, key string, value float64, scope *domain.ParameterScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[key] = value
	m.setCalls = append(m.setCalls, SetCall{Key: key, Value: value, Scope: scope.Clone()})
	return nil
}

// Param reads back a stored parameter value.
func (m *Memory) Param(key string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.params[key]
	return v, ok
}

// SetCalls returns the recorded SetParam history.
func (m *Memory) SetCalls() []SetCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SetCall(nil), m.setCalls...)
}

// OnEvent wires the push handler.
func (m *Memory) OnEvent(handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Push delivers one event to the wired handler, if any.
func (m *Memory) Push(ev domain.EconomicEvent) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
