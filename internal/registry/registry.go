// Package registry implements the parameter registry with scope-based
// resolution. The planner queries it to turn an abstract suggested action
// into a concrete host parameter key.
package registry

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/domain"
)

// Registry is an in-memory map of registered parameters keyed by unique key.
// Registration order is preserved so resolution ties break deterministically.
type Registry struct {
	mu     sync.RWMutex
	byKey  map[string]*domain.RegisteredParameter
	order  []string
	log    zerolog.Logger
}

// New creates an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		byKey: make(map[string]*domain.RegisteredParameter),
		log:   log.With().Str("component", "param_registry").Logger(),
	}
}

// Register stores a value copy of the parameter. Re-registering a key
// overwrites the previous entry; the later registration wins and the key is
// not double-counted.
func (r *Registry) Register(p domain.RegisteredParameter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := p.Clone()
	if _, exists := r.byKey[p.Key]; !exists {
		r.order = append(r.order, p.Key)
	}
	r.byKey[p.Key] = &c
}

// Get returns a copy of the parameter for key, if registered.
func (r *Registry) Get(key string) (domain.RegisteredParameter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byKey[key]
	if !ok {
		return domain.RegisteredParameter{}, false
	}
	return p.Clone(), true
}

// Size counts unique registered keys.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// GetAll returns copies of every registered parameter in registration order.
func (r *Registry) GetAll() []domain.RegisteredParameter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.RegisteredParameter, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k].Clone())
	}
	return out
}

// FindByType returns all parameters with the given type, in registration
// order.
func (r *Registry) FindByType(paramType string) []domain.RegisteredParameter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.RegisteredParameter
	for _, k := range r.order {
		if r.byKey[k].Type == paramType {
			out = append(out, r.byKey[k].Clone())
		}
	}
	return out
}

// FindBySystem returns all parameters scoped to the given system.
func (r *Registry) FindBySystem(system string) []domain.RegisteredParameter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.RegisteredParameter
	for _, k := range r.order {
		p := r.byKey[k]
		if p.Scope != nil && p.Scope.System == system {
			out = append(out, p.Clone())
		}
	}
	return out
}

// UpdateValue records the current host-side value of a parameter. Unknown
// keys are a no-op.
func (r *Registry) UpdateValue(key string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byKey[key]
	if !ok {
		return
	}
	v := value
	p.CurrentValue = &v
}

// GetFlowImpact reports the flow classification of a key, defaulting to
// neutral for unknown keys.
func (r *Registry) GetFlowImpact(key string) domain.FlowImpact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.byKey[key]; ok && p.FlowImpact != "" {
		return p.FlowImpact
	}
	return domain.FlowNeutral
}

// Resolve picks the registered parameter best matching a type and an
// optional query scope.
//
// With zero candidates of the type it returns nil. A single candidate wins
// regardless of scope mismatch. With multiple candidates each is scored:
//
//	+10  candidate system equals query system
//	 +5  candidate currency equals query currency
//	 +3  per overlapping tag
//	 -1  candidate system set but different
//	 -1  candidate currency set but different
//	 -1  both sides specify tags with zero overlap
//
// The first candidate to strictly beat the running best (seeded at -1) is
// kept; if nothing scores above -1 all candidates are disqualified and nil
// is returned.
func (r *Registry) Resolve(paramType string, scope *domain.ParameterScope) *domain.RegisteredParameter {
	candidates := r.FindByType(paramType)
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		c := candidates[0]
		return &c
	}

	query := scope
	if query == nil {
		query = &domain.ParameterScope{}
	}

	best := -1
	var winner *domain.RegisteredParameter
	for i := range candidates {
		score := scoreScope(candidates[i].Scope, query)
		if score > best {
			best = score
			winner = &candidates[i]
		}
	}
	return winner
}

func scoreScope(candidate, query *domain.ParameterScope) int {
	if candidate == nil {
		candidate = &domain.ParameterScope{}
	}

	score := 0
	if candidate.System != "" && candidate.System == query.System {
		score += 10
	} else if candidate.System != "" && candidate.System != query.System {
		score--
	}

	if candidate.Currency != "" && candidate.Currency == query.Currency {
		score += 5
	} else if candidate.Currency != "" && candidate.Currency != query.Currency {
		score--
	}

	if len(candidate.Tags) > 0 && len(query.Tags) > 0 {
		overlap := 0
		qt := make(map[string]bool, len(query.Tags))
		for _, t := range query.Tags {
			qt[t] = true
		}
		for _, t := range candidate.Tags {
			if qt[t] {
				overlap++
			}
		}
		if overlap == 0 {
			score--
		} else {
			score += 3 * overlap
		}
	}
	return score
}
