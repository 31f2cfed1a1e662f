// Package decisionlog keeps the bounded, in-memory record of every pipeline
// decision. Entries hold value snapshots of the plan and metrics (msgpack
// round-trip copies) so the executor's live plan cannot be observed or
// mutated through the log.
package decisionlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/warden/internal/domain"
)

// DefaultMaxEntries bounds the log; trimming happens lazily at 1.5x.
const DefaultMaxEntries = 1000

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	Since       *int64                `json:"since,omitempty"`
	Until       *int64                `json:"until,omitempty"`
	Result      domain.DecisionResult `json:"result,omitempty"`
	Parameter   string                `json:"parameter,omitempty"`
	PrincipleID string                `json:"principleId,omitempty"`
}

// Log is the bounded decision log.
type Log struct {
	mu         sync.RWMutex
	entries    []domain.DecisionEntry
	maxEntries int
	log        zerolog.Logger
}

// New creates a log trimmed to maxEntries (DefaultMaxEntries when <= 0).
func New(maxEntries int, log zerolog.Logger) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Log{
		maxEntries: maxEntries,
		log:        log.With().Str("component", "decision_log").Logger(),
	}
}

// Record appends a decision. The plan and metrics are deep-copied; the id is
// assigned here when empty. Trimming only happens once the log exceeds
// 1.5x maxEntries, which keeps insertion amortized O(1).
func (l *Log) Record(e domain.DecisionEntry) domain.DecisionEntry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Plan = clonePlan(e.Plan)
	e.Metrics = cloneMetrics(e.Metrics)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if len(l.entries) > l.maxEntries+l.maxEntries/2 {
		// Slice back down to the newest maxEntries.
		keep := l.entries[len(l.entries)-l.maxEntries:]
		l.entries = append(make([]domain.DecisionEntry, 0, l.maxEntries*2), keep...)
	}
	return e
}

// Size reports the current entry count.
func (l *Log) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Latest returns the newest n entries, newest first.
func (l *Log) Latest(n int) []domain.DecisionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]domain.DecisionEntry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Get finds an entry by id.
func (l *Log) Get(id string) (domain.DecisionEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ID == id {
			return l.entries[i], true
		}
	}
	return domain.DecisionEntry{}, false
}

// Query returns entries matching the filter, in chronological order.
func (l *Log) Query(f Filter) []domain.DecisionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []domain.DecisionEntry{}
	for _, e := range l.entries {
		if f.Since != nil && e.Tick < *f.Since {
			continue
		}
		if f.Until != nil && e.Tick > *f.Until {
			continue
		}
		if f.Result != "" && e.Result != f.Result {
			continue
		}
		if f.Parameter != "" && (e.Plan == nil || e.Plan.Parameter != f.Parameter) {
			continue
		}
		if f.PrincipleID != "" {
			if e.Diagnosis == nil || e.Diagnosis.PrincipleID != f.PrincipleID {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// clonePlan deep-copies through msgpack. On a marshal failure (which would
// take a non-serializable evidence payload) the original pointer is kept;
// the log still works, it just loses isolation for that entry.
func clonePlan(p *domain.ActionPlan) *domain.ActionPlan {
	if p == nil {
		return nil
	}
	raw, err := msgpack.Marshal(p)
	if err != nil {
		return p
	}
	var c domain.ActionPlan
	if err := msgpack.Unmarshal(raw, &c); err != nil {
		return p
	}
	return &c
}

func cloneMetrics(m *domain.EconomyMetrics) *domain.EconomyMetrics {
	if m == nil {
		return nil
	}
	raw, err := msgpack.Marshal(m)
	if err != nil {
		return m
	}
	var c domain.EconomyMetrics
	if err := msgpack.Unmarshal(raw, &c); err != nil {
		return m
	}
	return &c
}
