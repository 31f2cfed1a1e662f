// Package personas buckets agents into behavioral archetypes from
// observable signals only: balances, activity recency, trade intensity and
// spend/earn asymmetry. The label set is fixed here but callers treat it as
// open; unknown labels in the distribution are legal.
package personas

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/domain"
)

// Persona labels.
const (
	Whale        = "Whale"
	ActiveTrader = "ActiveTrader"
	Accumulator  = "Accumulator"
	Spender      = "Spender"
	NewEntrant   = "NewEntrant"
	AtRisk       = "AtRisk"
	Dormant      = "Dormant"
	PowerUser    = "PowerUser"
	Passive      = "Passive"
)

// Options tunes classification boundaries.
type Options struct {
	// NewEntrantTicks is how long after first sight an agent stays NewEntrant.
	NewEntrantTicks int64
	// AtRiskIdleTicks and DormantIdleTicks are the inactivity boundaries.
	AtRiskIdleTicks  int64
	DormantIdleTicks int64
	// WhaleMedianMultiple is the balance multiple of the median that makes
	// a Whale.
	WhaleMedianMultiple float64
	// WindowTicks bounds the per-agent activity window.
	WindowTicks int
}

// DefaultOptions mirrors the stock configuration.
func DefaultOptions() Options {
	return Options{
		NewEntrantTicks:     10,
		AtRiskIdleTicks:     15,
		DormantIdleTicks:    30,
		WhaleMedianMultiple: 5,
		WindowTicks:         30,
	}
}

type profile struct {
	firstSeenTick  int64
	lastSeenTick   int64
	lastActiveTick int64

	trades []float64
	txs    []float64
	spent  float64
	earned float64
}

// Tracker is driven only from the controller tick; no internal locking.
type Tracker struct {
	opts   Options
	log    zerolog.Logger
	agents map[string]*profile

	distribution map[string]float64
}

// New creates a tracker.
func New(opts Options, log zerolog.Logger) *Tracker {
	def := DefaultOptions()
	if opts.NewEntrantTicks <= 0 {
		opts.NewEntrantTicks = def.NewEntrantTicks
	}
	if opts.AtRiskIdleTicks <= 0 {
		opts.AtRiskIdleTicks = def.AtRiskIdleTicks
	}
	if opts.DormantIdleTicks <= opts.AtRiskIdleTicks {
		opts.DormantIdleTicks = def.DormantIdleTicks
	}
	if opts.WhaleMedianMultiple <= 1 {
		opts.WhaleMedianMultiple = def.WhaleMedianMultiple
	}
	if opts.WindowTicks <= 0 {
		opts.WindowTicks = def.WindowTicks
	}
	return &Tracker{
		opts:         opts,
		log:          log.With().Str("component", "personas").Logger(),
		agents:       map[string]*profile{},
		distribution: map[string]float64{},
	}
}

// Update folds one tick of state and events into the profiles and refreshes
// the distribution.
func (t *Tracker) Update(state *domain.EconomyState, events []domain.EconomicEvent) {
	tick := state.Tick

	tradesByAgent := map[string]float64{}
	txByAgent := map[string]float64{}
	for i := range events {
		ev := &events[i]
		if ev.Kind == domain.EventTrade {
			seller := ev.From
			if seller == "" {
				seller = ev.Actor
			}
			tradesByAgent[seller]++
			if ev.To != "" {
				tradesByAgent[ev.To]++
			}
		}
		for _, id := range []string{ev.Actor, ev.From, ev.To} {
			if id != "" {
				txByAgent[id]++
			}
		}
		t.bookFlows(ev)
	}

	totals := map[string]float64{}
	balances := make([]float64, 0, len(state.AgentBalances))
	for id, byCur := range state.AgentBalances {
		total := 0.0
		for _, v := range byCur {
			total += v
		}
		totals[id] = total
		balances = append(balances, total)

		p := t.agents[id]
		if p == nil {
			p = &profile{firstSeenTick: tick, lastActiveTick: tick}
			t.agents[id] = p
		}
		p.lastSeenTick = tick
		if txByAgent[id] > 0 {
			p.lastActiveTick = tick
		}
		p.trades = pushWindow(p.trades, tradesByAgent[id], t.opts.WindowTicks)
		p.txs = pushWindow(p.txs, txByAgent[id], t.opts.WindowTicks)
	}
	median := medianOf(balances)

	// Prune agents gone for twice the window.
	horizon := tick - 2*int64(t.opts.WindowTicks)
	for id, p := range t.agents {
		if p.lastSeenTick < horizon {
			delete(t.agents, id)
		}
	}

	dist := map[string]float64{}
	n := 0
	for id := range state.AgentBalances {
		dist[t.classify(t.agents[id], totals[id], median, tick)]++
		n++
	}
	if n > 0 {
		for k := range dist {
			dist[k] /= float64(n)
		}
	}
	t.distribution = dist
}

// Distribution returns the latest persona shares. Shares sum to 1 while any
// agents exist.
func (t *Tracker) Distribution() map[string]float64 {
	out := make(map[string]float64, len(t.distribution))
	for k, v := range t.distribution {
		out[k] = v
	}
	return out
}

// PersonaOf classifies a single agent with the current profiles. Unknown
// agents are Passive.
func (t *Tracker) PersonaOf(id string, balance, medianBalance float64, tick int64) string {
	return t.classify(t.agents[id], balance, medianBalance, tick)
}

func (t *Tracker) classify(p *profile, balance, median float64, tick int64) string {
	if p == nil {
		return Passive
	}
	if tick-p.firstSeenTick < t.opts.NewEntrantTicks {
		return NewEntrant
	}

	idle := tick - p.lastActiveTick
	if idle > t.opts.DormantIdleTicks {
		return Dormant
	}
	if idle > t.opts.AtRiskIdleTicks {
		return AtRisk
	}

	if median > 0 && balance > t.opts.WhaleMedianMultiple*median {
		return Whale
	}

	tradeRate := rateOf(p.trades)
	txRate := rateOf(p.txs)
	switch {
	case txRate >= 3 && tradeRate >= 1:
		return PowerUser
	case tradeRate >= 0.5:
		return ActiveTrader
	case p.spent > 1.5*p.earned && p.spent > 0:
		return Spender
	case p.earned > 1.5*p.spent && p.earned > 0:
		return Accumulator
	default:
		return Passive
	}
}

// bookFlows accumulates spend/earn volume onto the involved profiles.
func (t *Tracker) bookFlows(ev *domain.EconomicEvent) {
	value := math.Abs(ev.Amount * math.Max(ev.Price, 1))
	switch ev.Kind {
	case domain.EventTrade, domain.EventTransfer:
		if p := t.agents[ev.To]; p != nil {
			p.spent += value
		}
		seller := ev.From
		if seller == "" {
			seller = ev.Actor
		}
		if p := t.agents[seller]; p != nil {
			p.earned += value
		}
	case domain.EventConsume:
		if p := t.agents[ev.Actor]; p != nil {
			p.spent += value
		}
	case domain.EventMint, domain.EventProduce:
		if p := t.agents[ev.Actor]; p != nil {
			p.earned += value
		}
	}
}

func rateOf(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

func pushWindow(w []float64, v float64, limit int) []float64 {
	w = append(w, v)
	if len(w) > limit {
		w = w[len(w)-limit:]
	}
	return w
}

func medianOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
