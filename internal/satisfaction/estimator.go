// Package satisfaction estimates per-agent satisfaction when the host does
// not report it. Scores are heuristic: bounded signed contributions from
// balance trajectory, engagement, inventory diversity, standing against the
// population and inactivity, smoothed across ticks.
package satisfaction

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/domain"
)

// Options tunes the estimator.
type Options struct {
	// WindowTicks bounds the per-agent rolling histories.
	WindowTicks int
	// Alpha is the smoothing factor applied to the raw score each tick.
	Alpha float64
	// InactivityThreshold is the tick gap after which the inactivity
	// penalty starts accruing.
	InactivityThreshold int64
}

// DefaultOptions mirrors the stock configuration.
func DefaultOptions() Options {
	return Options{WindowTicks: 30, Alpha: 0.15, InactivityThreshold: 10}
}

const (
	trajectoryRange = 15
	engagementRange = 15
	diversityRange  = 10
	standingRange   = 10
	inactivityMax   = 20
	neutralScore    = 50
)

type agentHistory struct {
	balances    []float64
	txCounts    []float64
	inventories []float64

	lastActiveTick int64
	lastSeenTick   int64
	score          float64
	scored         bool
}

// Estimator is driven only from the controller tick; no internal locking.
type Estimator struct {
	opts   Options
	log    zerolog.Logger
	agents map[string]*agentHistory
}

// New creates an estimator.
func New(opts Options, log zerolog.Logger) *Estimator {
	def := DefaultOptions()
	if opts.WindowTicks <= 0 {
		opts.WindowTicks = def.WindowTicks
	}
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		opts.Alpha = def.Alpha
	}
	if opts.InactivityThreshold <= 0 {
		opts.InactivityThreshold = def.InactivityThreshold
	}
	return &Estimator{
		opts:   opts,
		log:    log.With().Str("component", "satisfaction").Logger(),
		agents: map[string]*agentHistory{},
	}
}

// Update folds one tick of state and events into every agent's history and
// recomputes the smoothed scores.
func (e *Estimator) Update(state *domain.EconomyState, events []domain.EconomicEvent) {
	tick := state.Tick

	txByAgent := map[string]float64{}
	for i := range events {
		ev := &events[i]
		for _, id := range []string{ev.Actor, ev.From, ev.To} {
			if id != "" {
				txByAgent[id]++
			}
		}
	}

	totals := make([]float64, 0, len(state.AgentBalances))
	totalByAgent := make(map[string]float64, len(state.AgentBalances))
	for id, balances := range state.AgentBalances {
		total := 0.0
		for _, v := range balances {
			total += v
		}
		totalByAgent[id] = total
		totals = append(totals, total)
	}
	median := medianOf(totals)

	for id, total := range totalByAgent {
		h := e.agents[id]
		if h == nil {
			h = &agentHistory{lastActiveTick: tick}
			e.agents[id] = h
		}
		h.lastSeenTick = tick

		tx := txByAgent[id]
		if tx > 0 {
			h.lastActiveTick = tick
		}
		h.balances = pushWindow(h.balances, total, e.opts.WindowTicks)
		h.txCounts = pushWindow(h.txCounts, tx, e.opts.WindowTicks)
		h.inventories = pushWindow(h.inventories, inventoryDiversity(state.AgentInventories[id]), e.opts.WindowTicks)

		raw := e.computeRaw(h, total, median, tick)
		if !h.scored {
			h.score = raw
			h.scored = true
		} else {
			h.score = h.score*(1-e.opts.Alpha) + raw*e.opts.Alpha
		}
		h.score = clamp(h.score, 0, 100)
	}

	e.prune(tick)
}

// Scores returns the current smoothed score per tracked agent.
func (e *Estimator) Scores() map[string]float64 {
	out := make(map[string]float64, len(e.agents))
	for id, h := range e.agents {
		if h.scored {
			out[id] = h.score
		}
	}
	return out
}

// computeRaw sums the five bounded components around a neutral baseline.
func (e *Estimator) computeRaw(h *agentHistory, balance, median float64, tick int64) float64 {
	raw := float64(neutralScore)
	raw += balanceTrajectory(h.balances)
	raw += engagement(h.txCounts)
	raw += diversity(h.inventories)
	raw += standing(balance, median)
	raw -= e.inactivityPenalty(h, tick)
	return clamp(raw, 0, 100)
}

// balanceTrajectory compares the latest balance against its own EMA.
func balanceTrajectory(window []float64) float64 {
	if len(window) < 3 {
		return 0
	}
	period := 10
	if period > len(window) {
		period = len(window)
	}
	ema := talib.Ema(window, period)
	base := ema[len(ema)-1]
	trend := (window[len(window)-1] - base) / math.Max(math.Abs(base), 1)
	return clamp(trend*50, -trajectoryRange, trajectoryRange)
}

// engagement compares this tick's activity against the agent's own history.
func engagement(txCounts []float64) float64 {
	if len(txCounts) < 2 {
		return 0
	}
	hist := txCounts[:len(txCounts)-1]
	avg := 0.0
	for _, v := range hist {
		avg += v
	}
	avg /= float64(len(hist))
	current := txCounts[len(txCounts)-1]
	return clamp((current-avg)*5, -engagementRange, engagementRange)
}

// diversity rewards carrying several distinct goods.
func diversity(inventories []float64) float64 {
	if len(inventories) == 0 {
		return 0
	}
	d := inventories[len(inventories)-1]
	return clamp((d-4)*2.5, -diversityRange, diversityRange)
}

// standing places the agent against the population median balance.
func standing(balance, median float64) float64 {
	if median <= 0 {
		return 0
	}
	switch {
	case balance < 0.3*median:
		return -standingRange
	case balance < 0.6*median:
		return -standingRange / 2
	case balance > 2*median:
		return standingRange
	default:
		return 0
	}
}

func (e *Estimator) inactivityPenalty(h *agentHistory, tick int64) float64 {
	idle := tick - h.lastActiveTick
	if idle <= e.opts.InactivityThreshold {
		return 0
	}
	return math.Min(inactivityMax, float64(idle-e.opts.InactivityThreshold)*2)
}

// prune drops agents absent for twice the history window.
func (e *Estimator) prune(tick int64) {
	horizon := tick - 2*int64(e.opts.WindowTicks)
	for id, h := range e.agents {
		if h.lastSeenTick < horizon {
			delete(e.agents, id)
		}
	}
}

func inventoryDiversity(inv map[string]float64) float64 {
	d := 0.0
	for _, qty := range inv {
		if qty > 0 {
			d++
		}
	}
	return d
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

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
