// Package metricstore retains metrics snapshots in bounded multi-resolution
// ring buffers: every tick at fine resolution, every Nth tick at medium and
// coarse. Snapshots are stored by reference and never mutated.
package metricstore

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/domain"
)

// Resolution selects which ring a query reads.
type Resolution string

const (
	Fine   Resolution = "fine"
	Medium Resolution = "medium"
	Coarse Resolution = "coarse"
)

// Options configures window sizes and ring capacities.
type Options struct {
	MediumWindow   int // record to medium every N ticks (default 10)
	CoarseWindow   int // record to coarse every N ticks (default 100)
	FineCapacity   int
	MediumCapacity int
	CoarseCapacity int
}

// DefaultOptions mirrors the stock retention policy.
func DefaultOptions() Options {
	return Options{
		MediumWindow:   10,
		CoarseWindow:   100,
		FineCapacity:   1000,
		MediumCapacity: 500,
		CoarseCapacity: 300,
	}
}

type ring struct {
	buf   []*domain.EconomyMetrics
	head  int // next write position
	count int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]*domain.EconomyMetrics, capacity)}
}

func (r *ring) push(m *domain.EconomyMetrics) {
	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// items returns the retained snapshots oldest-first.
func (r *ring) items() []*domain.EconomyMetrics {
	out := make([]*domain.EconomyMetrics, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *ring) newest() *domain.EconomyMetrics {
	if r.count == 0 {
		return nil
	}
	idx := r.head - 1
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx]
}

// Store is the multi-resolution time-series store. Writes come from the
// tick; reads also come from transport handlers, hence the lock.
type Store struct {
	mu       sync.RWMutex
	opts     Options
	fine     *ring
	medium   *ring
	coarse   *ring
	recorded int64
	log      zerolog.Logger
}

// New creates a store with the given options.
func New(opts Options, log zerolog.Logger) *Store {
	if opts.MediumWindow < 1 {
		opts.MediumWindow = DefaultOptions().MediumWindow
	}
	if opts.CoarseWindow < 1 {
		opts.CoarseWindow = DefaultOptions().CoarseWindow
	}
	if opts.FineCapacity < 1 {
		opts.FineCapacity = DefaultOptions().FineCapacity
	}
	if opts.MediumCapacity < 1 {
		opts.MediumCapacity = DefaultOptions().MediumCapacity
	}
	if opts.CoarseCapacity < 1 {
		opts.CoarseCapacity = DefaultOptions().CoarseCapacity
	}
	return &Store{
		opts:   opts,
		fine:   newRing(opts.FineCapacity),
		medium: newRing(opts.MediumCapacity),
		coarse: newRing(opts.CoarseCapacity),
		log:    log.With().Str("component", "metric_store").Logger(),
	}
}

// Record appends the snapshot to the fine ring, and to the medium/coarse
// rings on their windows.
func (s *Store) Record(m *domain.EconomyMetrics) {
	if m == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fine.push(m)
	s.recorded++
	if s.recorded%int64(s.opts.MediumWindow) == 0 {
		s.medium.push(m)
	}
	if s.recorded%int64(s.opts.CoarseWindow) == 0 {
		s.coarse.push(m)
	}
}

// Latest returns the newest snapshot at the resolution, or an empty tick-0
// snapshot when nothing has been recorded there.
func (s *Store) Latest(res Resolution) *domain.EconomyMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.ringFor(res).newest()
	if m == nil {
		return domain.EmptyMetrics()
	}
	return m
}

// Point is one sample of a queried metric.
type Point struct {
	Tick  int64   `json:"tick"`
	Value float64 `json:"value"`
}

// Query selects one metric by dotted key path over a tick range.
type Query struct {
	Metric     string     `json:"metric"`
	From       *int64     `json:"from,omitempty"`
	To         *int64     `json:"to,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`
}

// Series is a query result.
type Series struct {
	Metric     string     `json:"metric"`
	Resolution Resolution `json:"resolution"`
	Points     []Point    `json:"points"`
}

// QuerySeries resolves the metric key path against every retained snapshot
// in the requested window. Snapshots where the path does not resolve are
// skipped.
func (s *Store) QuerySeries(q Query) Series {
	res := q.Resolution
	if res == "" {
		res = Fine
	}
	out := Series{Metric: q.Metric, Resolution: res, Points: []Point{}}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.ringFor(res).items() {
		if q.From != nil && m.Tick < *q.From {
			continue
		}
		if q.To != nil && m.Tick > *q.To {
			continue
		}
		v, ok := m.Resolve(q.Metric)
		if !ok {
			continue
		}
		out.Points = append(out.Points, Point{Tick: m.Tick, Value: v})
	}
	return out
}

// Snapshots returns up to limit newest snapshots at the resolution, oldest
// first. A non-positive limit returns everything retained.
func (s *Store) Snapshots(res Resolution, limit int) []*domain.EconomyMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.ringFor(res).items()
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items
}

func (s *Store) ringFor(res Resolution) *ring {
	switch res {
	case Medium:
		return s.medium
	case Coarse:
		return s.coarse
	default:
		return s.fine
	}
}
