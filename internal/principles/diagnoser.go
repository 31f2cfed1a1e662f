// Package principles holds the Diagnoser (an ordered registry of economic
// principle checks) and the default principle library. Checks are pluggable
// predicates over a metrics snapshot; the registry contains their failures.
package principles

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/domain"
)

// Diagnoser runs every registered principle over a metrics snapshot and
// returns the violations ordered by severity, confidence, then registration
// order.
type Diagnoser struct {
	mu         sync.RWMutex
	principles []domain.Principle
	log        zerolog.Logger
}

// NewDiagnoser creates a diagnoser with the given initial principles.
func NewDiagnoser(log zerolog.Logger, initial ...domain.Principle) *Diagnoser {
	d := &Diagnoser{
		log: log.With().Str("component", "diagnoser").Logger(),
	}
	for _, p := range initial {
		d.Add(p)
	}
	return d
}

// Add registers a principle at the end of the order. A principle with a
// duplicate id replaces the existing registration in place.
func (d *Diagnoser) Add(p domain.Principle) {
	if p == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.principles {
		if existing.ID() == p.ID() {
			d.principles[i] = p
			return
		}
	}
	d.principles = append(d.principles, p)
}

// Remove unregisters a principle by id.
func (d *Diagnoser) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, p := range d.principles {
		if p.ID() == id {
			d.principles = append(d.principles[:i], d.principles[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the registered principles in registration order.
func (d *Diagnoser) List() []domain.Principle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.Principle(nil), d.principles...)
}

// Count reports the number of registered principles.
func (d *Diagnoser) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.principles)
}

// Diagnose checks every principle and returns the violations sorted by
// severity descending, ties broken by confidence descending, then
// registration order. A check that panics is logged and treated as
// not violated.
func (d *Diagnoser) Diagnose(m *domain.EconomyMetrics, t *domain.Thresholds) []domain.Diagnosis {
	if m == nil || t == nil {
		return nil
	}

	ps := d.List()
	out := make([]domain.Diagnosis, 0, len(ps))
	for _, p := range ps {
		res := d.safeCheck(p, m, t)
		if !res.Violated {
			continue
		}
		out = append(out, domain.Diagnosis{
			PrincipleID:   p.ID(),
			PrincipleName: p.Name(),
			Category:      p.Category(),
			Tick:          m.Tick,
			Severity:      res.Severity,
			Confidence:    res.Confidence,
			Evidence:      res.Evidence,
			Suggested:     res.SuggestedAction,
			EstimatedLag:  res.EstimatedLag,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func (d *Diagnoser) safeCheck(p domain.Principle, m *domain.EconomyMetrics, t *domain.Thresholds) (res domain.PrincipleResult) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("principle", p.ID()).Interface("panic", r).Msg("Principle check panicked")
			res = domain.Ok()
		}
	}()
	return p.Check(m, t)
}

// ViolatedIDs is a convenience for simulation validation: the set of
// principle ids violated on a snapshot.
func (d *Diagnoser) ViolatedIDs(m *domain.EconomyMetrics, t *domain.Thresholds) map[string]bool {
	ids := map[string]bool{}
	for _, diag := range d.Diagnose(m, t) {
		ids[diag.PrincipleID] = true
	}
	return ids
}
