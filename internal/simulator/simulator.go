// Package simulator projects candidate actions forward with a Monte-Carlo
// reduced-order model of the economy. It is deliberately not an agent
// replay: per-currency supply, net flow, gini and velocity plus scalar
// satisfaction evolve under smoothing, mean reversion and injected noise.
package simulator

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/warden/internal/domain"
)

// MinIterations is the hard floor on trials regardless of the requested
// count or configured minimum.
const MinIterations = 100

// DefaultForwardTicks is the projection horizon per trial.
const DefaultForwardTicks = 20

// Checker supplies the set of violated principle ids on a snapshot. The
// diagnoser implements it.
type Checker interface {
	ViolatedIDs(m *domain.EconomyMetrics, t *domain.Thresholds) map[string]bool
}

// flowEffectCoeff encodes the directional impact of the common parameter
// types on per-currency net flow: raising a cost or fee drains currency,
// raising a yield or reward injects it.
var flowEffectCoeff = map[string]float64{
	"cost":        -1,
	"fee":         -1,
	"tax":         -1,
	"price":       -1,
	"sink_rate":   -1,
	"yield":       1,
	"reward":      1,
	"wage":        1,
	"faucet_rate": 1,
	"drop_rate":   1,
}

// Simulator runs Monte-Carlo projections. Not safe for concurrent use; the
// controller drives it from the tick.
type Simulator struct {
	rng *rand.Rand
	log zerolog.Logger

	checker Checker

	// Single-slot cache of the "before" violation set, evicted when the
	// tick changes. Many candidate actions are simulated against the same
	// snapshot in one tick; diagnosing it once is enough.
	cacheTick int64
	cacheIDs  map[string]bool
	cacheSet  bool
}

// New creates a simulator seeded from the wall clock.
func New(checker Checker, log zerolog.Logger) *Simulator {
	return NewWithSeed(checker, log, time.Now().UnixNano())
}

// NewWithSeed creates a deterministic simulator for tests.
func NewWithSeed(checker Checker, log zerolog.Logger, seed int64) *Simulator {
	return &Simulator{
		rng:     rand.New(rand.NewSource(seed)),
		log:     log.With().Str("component", "simulator").Logger(),
		checker: checker,
	}
}

// trial holds one projection's terminal values.
type trial struct {
	satisfaction float64
	netFlow      map[string]float64
	gini         map[string]float64
	supply       map[string]float64
	velocity     map[string]float64
}

// Simulate projects the action forward. At least max(iterations,
// thresholds.SimulationMinIterations, MinIterations) trials run, each for
// forwardTicks steps (DefaultForwardTicks when <= 0).
func (s *Simulator) Simulate(action *domain.SuggestedAction, current *domain.EconomyMetrics, t *domain.Thresholds, iterations, forwardTicks int) domain.SimulationResult {
	n := iterations
	if t.SimulationMinIterations > n {
		n = t.SimulationMinIterations
	}
	if n < MinIterations {
		n = MinIterations
	}
	if forwardTicks <= 0 {
		forwardTicks = DefaultForwardTicks
	}

	trials := make([]trial, n)
	for i := range trials {
		trials[i] = s.runTrial(action, current, forwardTicks)
	}
	sort.Slice(trials, func(i, j int) bool {
		return trials[i].satisfaction < trials[j].satisfaction
	})

	sats := make([]float64, n)
	for i, tr := range trials {
		sats[i] = tr.satisfaction
	}
	mean := stat.Mean(sats, nil)
	sigma := stat.StdDev(sats, nil)
	if math.IsNaN(sigma) {
		sigma = 0
	}

	p10 := trials[index(n, 0.10)]
	p50 := trials[index(n, 0.50)]

	lagMult := t.LagMultiplierMin
	if lagMult < 1 {
		lagMult = 1
	}

	res := domain.SimulationResult{
		Iterations:          n,
		ForwardTicks:        forwardTicks,
		P10Satisfaction:     p10.satisfaction,
		P50Satisfaction:     p50.satisfaction,
		MeanSatisfaction:    mean,
		BeforeSatisfaction:  current.AvgSatisfaction,
		ConfidenceLow:       mean - 1.96*sigma,
		ConfidenceHigh:      mean + 1.96*sigma,
		EstimatedEffectTick: current.Tick + int64(5*lagMult),
		OvershootRisk:       s.overshootRisk(trials, current),
		P50NetFlowByCurrency: p50.netFlow,
		P50GiniByCurrency:    p50.gini,
	}

	res.NetImprovement = s.netImprovement(p50, current)
	res.NoNewProblems = s.noNewProblems(p50, current, t)
	return res
}

func (s *Simulator) runTrial(action *domain.SuggestedAction, current *domain.EconomyMetrics, forwardTicks int) trial {
	tr := trial{
		satisfaction: current.AvgSatisfaction,
		netFlow:      copyFloats(current.NetFlowByCurrency),
		gini:         copyFloats(current.GiniByCurrency),
		supply:       copyFloats(current.SupplyByCurrency),
		velocity:     copyFloats(current.VelocityByCurrency),
	}

	magnitude := action.Magnitude
	if magnitude <= 0 {
		magnitude = 0.10
	}
	actionMult := 1 + magnitude
	if action.Direction == domain.DirectionDecrease {
		actionMult = 1 - magnitude
	}

	agents := float64(current.TotalAgents)
	if agents < 1 {
		agents = 1
	}

	for step := 0; step < forwardTicks; step++ {
		flowSum := 0.0
		for cur := range tr.netFlow {
			effect := 0.0
			if action.Scope.MatchesCurrency(cur) {
				effect = s.flowEffect(action, current, cur) * actionMult * s.noise()
			}
			tr.netFlow[cur] = 0.9*tr.netFlow[cur] + 0.1*effect
			tr.supply[cur] = math.Max(0, tr.supply[cur]+tr.netFlow[cur]*s.noise())
			tr.gini[cur] = 0.99*tr.gini[cur] + 0.0035*s.noise()
			tr.velocity[cur] = (tr.supply[cur] / agents) * 0.01 * s.noise()
			flowSum += tr.netFlow[cur]
		}

		avgNetFlow := 0.0
		if len(tr.netFlow) > 0 {
			avgNetFlow = flowSum / float64(len(tr.netFlow))
		}
		satDelta := 0.0
		switch {
		case avgNetFlow > 0 && avgNetFlow < 20:
			satDelta = 0.5
		case avgNetFlow < 0:
			satDelta = -1
		}
		tr.satisfaction = clamp(tr.satisfaction+satDelta*s.noise(), 0, 100)
	}
	return tr
}

// flowEffect scales the type coefficient by the currency's current flow
// magnitude. Direction enters through the action multiplier, not here.
func (s *Simulator) flowEffect(action *domain.SuggestedAction, m *domain.EconomyMetrics, currency string) float64 {
	coeff, ok := flowEffectCoeff[action.ParameterType]
	if !ok {
		coeff = 0
	}
	ref := math.Max(1, math.Abs(m.NetFlowByCurrency[currency]))
	return coeff * ref
}

// noise returns a multiplier in [0.95, 1.05].
func (s *Simulator) noise() float64 {
	return 1 + (s.rng.Float64()-0.5)*0.1
}

// overshootRisk is the fraction of the top-20% trials (by satisfaction)
// whose flow magnitude exceeds twice the current one.
func (s *Simulator) overshootRisk(trials []trial, current *domain.EconomyMetrics) float64 {
	topStart := index(len(trials), 0.80)
	top := trials[topStart:]
	if len(top) == 0 {
		return 0
	}
	baseline := meanAbs(current.NetFlowByCurrency)
	overshoots := 0
	for _, tr := range top {
		if meanAbs(tr.netFlow) > 2*math.Max(baseline, 1e-9) {
			overshoots++
		}
	}
	return float64(overshoots) / float64(len(top))
}

// netImprovement holds when the median projection keeps satisfaction within
// two points of today, does not blow up any currency's flow, and does not
// materially worsen any gini.
func (s *Simulator) netImprovement(p50 trial, current *domain.EconomyMetrics) bool {
	if p50.satisfaction < current.AvgSatisfaction-2 {
		return false
	}
	for cur, flow := range p50.netFlow {
		before := math.Abs(current.NetFlowByCurrency[cur])
		if math.Abs(flow) > 1.2*before && math.Abs(flow) >= 1 {
			return false
		}
	}
	for cur, g := range p50.gini {
		if g > current.GiniByCurrency[cur]+0.05 {
			return false
		}
	}
	return true
}

// noNewProblems holds when the violations on the median projection are a
// subset of today's violations.
func (s *Simulator) noNewProblems(p50 trial, current *domain.EconomyMetrics, t *domain.Thresholds) bool {
	if s.checker == nil {
		return true
	}

	before := s.beforeViolations(current, t)
	projected := s.projectMetrics(p50, current)
	after := s.checker.ViolatedIDs(projected, t)

	for id := range after {
		if !before[id] {
			return false
		}
	}
	return true
}

// beforeViolations diagnoses the current snapshot once per tick.
func (s *Simulator) beforeViolations(current *domain.EconomyMetrics, t *domain.Thresholds) map[string]bool {
	if s.cacheSet && s.cacheTick == current.Tick {
		return s.cacheIDs
	}
	s.cacheTick = current.Tick
	s.cacheIDs = s.checker.ViolatedIDs(current, t)
	s.cacheSet = true
	return s.cacheIDs
}

// projectMetrics overlays a trial's terminal values onto a copy of the
// current snapshot so the diagnoser can evaluate the projected economy.
func (s *Simulator) projectMetrics(tr trial, current *domain.EconomyMetrics) *domain.EconomyMetrics {
	var c domain.EconomyMetrics
	if raw, err := msgpack.Marshal(current); err == nil {
		if err := msgpack.Unmarshal(raw, &c); err != nil {
			c = *current
		}
	} else {
		c = *current
	}

	c.NetFlowByCurrency = copyFloats(tr.netFlow)
	c.GiniByCurrency = copyFloats(tr.gini)
	c.SupplyByCurrency = copyFloats(tr.supply)
	c.VelocityByCurrency = copyFloats(tr.velocity)
	c.AvgSatisfaction = tr.satisfaction

	c.NetFlow = meanOf(c.NetFlowByCurrency)
	c.GiniCoefficient = meanOf(c.GiniByCurrency)
	c.Velocity = meanOf(c.VelocityByCurrency)
	c.TotalSupply = sumOf(c.SupplyByCurrency)
	return &c
}

func index(n int, q float64) int {
	i := int(float64(n) * q)
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func copyFloats(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func meanAbs(m map[string]float64) float64 {
	if len(m) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range m {
		s += math.Abs(v)
	}
	return s / float64(len(m))
}

func meanOf(m map[string]float64) float64 {
	if len(m) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range m {
		s += v
	}
	return s / float64(len(m))
}

func sumOf(m map[string]float64) float64 {
	s := 0.0
	for _, v := range m {
		s += v
	}
	return s
}
