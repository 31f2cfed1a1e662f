// Package observer aggregates a raw host snapshot plus the buffered event
// stream into the dense EconomyMetrics vector that drives the rest of the
// pipeline. Compute is deterministic for fixed inputs given the observer's
// memory of the previous snapshot and the first-tick anchor baselines.
package observer

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/warden/internal/domain"
)

// CustomMetric is a developer-registered callable invoked with the raw
// state. Failures (error or panic) are contained: the metric is set to NaN
// and a warning is logged.
type CustomMetric func(state *domain.EconomyState) (float64, error)

// blockedSatisfactionCutoff marks an agent as blocked when its satisfaction
// falls at or below this value.
const blockedSatisfactionCutoff = 20.0

// Observer computes metrics snapshots. Not safe for concurrent use; the
// controller runs it from a single tick at a time.
type Observer struct {
	log zerolog.Logger

	prevSupply map[string]float64
	prevPrices map[string]map[string]float64

	// Anchor baseline: currency-per-agent captured on the first tick a
	// currency shows positive supply.
	anchorBaseline map[string]float64

	contentDropAge int64

	custom map[string]CustomMetric
}

// New creates an Observer with empty memory.
func New(log zerolog.Logger) *Observer {
	return &Observer{
		log:            log.With().Str("component", "observer").Logger(),
		prevSupply:     map[string]float64{},
		prevPrices:     map[string]map[string]float64{},
		anchorBaseline: map[string]float64{},
		custom:         map[string]CustomMetric{},
	}
}

// RegisterCustomMetric adds a developer metric evaluated every tick.
func (o *Observer) RegisterCustomMetric(name string, fn CustomMetric) {
	if name == "" || fn == nil {
		return
	}
	o.custom[name] = fn
}

// Compute derives one metrics snapshot. Any panic inside is contained and
// surfaced as an error; the controller treats that as skip-this-tick.
func (o *Observer) Compute(state *domain.EconomyState, events []domain.EconomicEvent) (m *domain.EconomyMetrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	if state == nil {
		return nil, fmt.Errorf("nil state")
	}

	activity := newTickActivity()
	for _, ev := range events {
		activity.classify(state, ev)
	}
	for _, ev := range state.RecentTransactions {
		activity.classify(state, ev)
	}

	m = domain.EmptyMetrics()
	m.Tick = state.Tick

	agents := o.collectAgents(state)
	m.TotalAgents = len(agents)

	o.computeCurrencies(state, activity, m)
	o.computePopulation(state, activity, m, agents)
	o.computeResources(state, activity, m)
	o.computeSystems(activity, m)
	o.computeSatisfaction(state, m)
	o.computeCustom(state, m)

	// Content drop age: monotonic counter, reset when a flagged produce
	// event is seen this tick.
	if activity.contentDropSeen {
		o.contentDropAge = 0
	} else {
		o.contentDropAge++
	}
	m.ContentDropAge = o.contentDropAge

	m.PoolSizes = state.PoolSizes

	// Remember this snapshot for next tick's deltas.
	o.prevSupply = copyMap(m.SupplyByCurrency)
	o.prevPrices = map[string]map[string]float64{}
	for cur, prices := range state.MarketPrices {
		o.prevPrices[cur] = copyMap(prices)
	}

	return m, nil
}

func (o *Observer) collectAgents(state *domain.EconomyState) map[string]bool {
	agents := map[string]bool{}
	for id := range state.AgentBalances {
		agents[id] = true
	}
	for id := range state.AgentRoles {
		agents[id] = true
	}
	return agents
}

func (o *Observer) computeCurrencies(state *domain.EconomyState, activity *tickActivity, m *domain.EconomyMetrics) {
	totalAgents := m.TotalAgents

	for _, cur := range state.Currencies {
		balances := make([]float64, 0, len(state.AgentBalances))
		supply := 0.0
		for _, byCur := range state.AgentBalances {
			b := byCur[cur]
			balances = append(balances, b)
			supply += b
		}
		m.SupplyByCurrency[cur] = supply

		faucet := activity.faucetByCurrency[cur]
		sink := activity.sinkByCurrency[cur]
		m.FaucetVolumeByCurrency[cur] = faucet
		m.SinkVolumeByCurrency[cur] = sink
		m.NetFlowByCurrency[cur] = faucet - sink

		// Tap/sink ratio saturates at 100 so a dry sink can never push
		// Infinity through the pipeline.
		switch {
		case sink > 0:
			m.TapSinkRatioByCurrency[cur] = math.Min(faucet/sink, 100)
		case faucet > 0:
			m.TapSinkRatioByCurrency[cur] = 100
		default:
			m.TapSinkRatioByCurrency[cur] = 1
		}

		if prev, ok := o.prevSupply[cur]; ok && prev > 0 {
			m.InflationByCurrency[cur] = (supply - prev) / prev
		} else {
			m.InflationByCurrency[cur] = 0
		}

		trades := activity.tradesByCurrency[cur]
		if supply > 0 {
			m.VelocityByCurrency[cur] = float64(len(trades)) / supply
		} else {
			m.VelocityByCurrency[cur] = 0
		}

		ws := computeWealth(balances)
		m.GiniByCurrency[cur] = ws.gini
		m.MeanBalanceByCurrency[cur] = ws.mean
		m.MedianBalanceByCurrency[cur] = ws.median
		m.Top10PctShareByCurrency[cur] = ws.top10Share
		m.MeanMedianDivergenceByCurrency[cur] = ws.divergence

		o.computePrices(state, cur, m)
		o.computeAnchor(cur, supply, totalAgents, m)
		o.computeTradeQuality(state, cur, trades, m)
	}

	o.computeScalars(state, m)
}

func (o *Observer) computePrices(state *domain.EconomyState, cur string, m *domain.EconomyMetrics) {
	prices := state.MarketPrices[cur]
	m.PricesByCurrency[cur] = copyMap(prices)
	m.VolatilityByCurrency[cur] = map[string]float64{}

	if len(prices) == 0 {
		m.PriceIndexByCurrency[cur] = 0
		m.ArbitrageIndexByCurrency[cur] = 0
		return
	}

	sum := 0.0
	flat := make([]float64, 0, len(prices))
	for res, p := range prices {
		sum += p
		flat = append(flat, p)

		vol := 0.0
		if prev, ok := o.prevPrices[cur][res]; ok && prev > 0 {
			vol = math.Abs(p-prev) / prev
		}
		m.VolatilityByCurrency[cur][res] = vol
	}
	m.PriceIndexByCurrency[cur] = sum / float64(len(prices))
	m.ArbitrageIndexByCurrency[cur] = logPriceSpread(flat)
}

func (o *Observer) computeAnchor(cur string, supply float64, totalAgents int, m *domain.EconomyMetrics) {
	perAgent := 0.0
	if totalAgents > 0 {
		perAgent = supply / float64(totalAgents)
	}
	baseline, ok := o.anchorBaseline[cur]
	if !ok {
		if supply > 0 {
			o.anchorBaseline[cur] = perAgent
		}
		m.AnchorDriftByCurrency[cur] = 0
		return
	}
	if baseline > 0 {
		m.AnchorDriftByCurrency[cur] = (perAgent - baseline) / baseline
	} else {
		m.AnchorDriftByCurrency[cur] = 0
	}
}

func (o *Observer) computeTradeQuality(state *domain.EconomyState, cur string, trades []domain.EconomicEvent, m *domain.EconomyMetrics) {
	if len(trades) == 0 {
		m.GiftTradeRatioByCurrency[cur] = 0
		m.DisposalTradeRatioByCurrency[cur] = 0
		return
	}

	gifts, disposals := 0, 0
	for _, tr := range trades {
		marketPrice := state.MarketPrices[cur][tr.Resource]
		if tr.Price == 0 || (marketPrice > 0 && tr.Price < 0.3*marketPrice) {
			gifts++
		}
		if tr.Resource != "" && o.isDisposal(state, tr) {
			disposals++
		}
	}
	m.GiftTradeRatioByCurrency[cur] = float64(gifts) / float64(len(trades))
	m.DisposalTradeRatioByCurrency[cur] = float64(disposals) / float64(len(trades))
}

// isDisposal reports whether the seller's inventory of the traded resource
// exceeds three times the population mean for that resource.
func (o *Observer) isDisposal(state *domain.EconomyState, tr domain.EconomicEvent) bool {
	seller := tr.From
	if seller == "" {
		seller = tr.Actor
	}
	inv := state.AgentInventories[seller][tr.Resource]
	if inv <= 0 {
		return false
	}

	total, holders := 0.0, 0
	for _, byRes := range state.AgentInventories {
		total += byRes[tr.Resource]
		holders++
	}
	if holders == 0 {
		return false
	}
	mean := total / float64(holders)
	return mean > 0 && inv > 3*mean
}

func (o *Observer) computeScalars(state *domain.EconomyState, m *domain.EconomyMetrics) {
	m.TotalSupply = sumMap(m.SupplyByCurrency)
	m.NetFlow = meanMap(m.NetFlowByCurrency)
	m.Velocity = meanMap(m.VelocityByCurrency)
	m.InflationRate = meanMap(m.InflationByCurrency)
	m.TapSinkRatio = meanMap(m.TapSinkRatioByCurrency)
	m.AnchorRatioDrift = meanMap(m.AnchorDriftByCurrency)
	m.GiniCoefficient = meanMap(m.GiniByCurrency)
	m.MedianBalance = meanMap(m.MedianBalanceByCurrency)
	m.Top10PctShare = meanMap(m.Top10PctShareByCurrency)
	m.MeanMedianDivergence = meanMap(m.MeanMedianDivergenceByCurrency)
	m.PriceIndex = meanMap(m.PriceIndexByCurrency)
	m.ArbitrageIndex = meanMap(m.ArbitrageIndexByCurrency)

	if m.TotalAgents > 0 {
		m.MeanBalance = m.TotalSupply / float64(m.TotalAgents)
	}
}

func (o *Observer) computePopulation(state *domain.EconomyState, activity *tickActivity, m *domain.EconomyMetrics, agents map[string]bool) {
	for _, role := range state.AgentRoles {
		m.PopulationByRole[role]++
	}
	denom := float64(m.TotalAgents)
	if denom < 1 {
		denom = 1
	}
	for role, count := range m.PopulationByRole {
		m.RoleShares[role] = float64(count) / denom
	}
	m.ChurnRate = float64(activity.churnCount) / denom
	m.ChurnByRole = activity.churnByRole
}

func (o *Observer) computeResources(state *domain.EconomyState, activity *tickActivity, m *domain.EconomyMetrics) {
	for _, res := range state.Resources {
		supply := 0.0
		for _, byRes := range state.AgentInventories {
			supply += byRes[res]
		}
		m.ResourceSupply[res] = supply

		demand := activity.resourceDemand[res]
		m.ResourceDemand[res] = demand

		switch {
		case demand > 0 && supply/demand < 0.5:
			m.PinchPoints[res] = domain.PinchScarce
		case demand > 0 && supply/demand > 3:
			m.PinchPoints[res] = domain.PinchOversupplied
		default:
			m.PinchPoints[res] = domain.PinchOptimal
		}
	}

	m.ProductionIndex = activity.produceVolume
	if m.TotalAgents > 0 {
		m.CapacityUsage = math.Min(1, float64(len(activity.producers))/float64(m.TotalAgents))
	}
}

func (o *Observer) computeSystems(activity *tickActivity, m *domain.EconomyMetrics) {
	m.FlowBySystem = activity.flowBySystem
	m.ActivityBySystem = activity.activityBySystem
	for system, participants := range activity.systemParticipants {
		m.ParticipantsBySystem[system] = len(participants)
	}
	m.FlowBySource = activity.flowBySource
	m.FlowBySink = activity.flowBySink
	m.SourceShare = normalizeShares(activity.flowBySource)
	m.SinkShare = normalizeShares(activity.flowBySink)
}

func (o *Observer) computeSatisfaction(state *domain.EconomyState, m *domain.EconomyMetrics) {
	if len(state.AgentSatisfaction) == 0 {
		return
	}
	vals := make([]float64, 0, len(state.AgentSatisfaction))
	blocked := 0
	for _, s := range state.AgentSatisfaction {
		vals = append(vals, s)
		if s <= blockedSatisfactionCutoff {
			blocked++
		}
	}
	m.AvgSatisfaction = stat.Mean(vals, nil)
	m.BlockedAgents = blocked
}

func (o *Observer) computeCustom(state *domain.EconomyState, m *domain.EconomyMetrics) {
	if len(o.custom) == 0 {
		return
	}
	m.Custom = domain.CustomMetrics{}
	for name, fn := range o.custom {
		m.Custom[name] = o.evalCustom(name, fn, state)
	}
}

func (o *Observer) evalCustom(name string, fn CustomMetric, state *domain.EconomyState) (v float64) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Warn().Str("metric", name).Interface("panic", r).Msg("Custom metric panicked")
			v = math.NaN()
		}
	}()
	v, err := fn(state)
	if err != nil {
		o.log.Warn().Str("metric", name).Err(err).Msg("Custom metric failed")
		return math.NaN()
	}
	return v
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sumMap(m map[string]float64) float64 {
	s := 0.0
	for _, v := range m {
		s += v
	}
	return s
}

func meanMap(m map[string]float64) float64 {
	if len(m) == 0 {
		return 0
	}
	return sumMap(m) / float64(len(m))
}
