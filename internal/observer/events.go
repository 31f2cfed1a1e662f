package observer

import "github.com/aristath/warden/internal/domain"

// tickActivity accumulates everything a single pass over the event buffer
// yields: per-currency faucet/sink volumes, trades, production, churn, and
// the per-system / per-source breakdowns.
type tickActivity struct {
	faucetByCurrency map[string]float64
	sinkByCurrency   map[string]float64
	tradesByCurrency map[string][]domain.EconomicEvent

	produceVolume  float64
	producers      map[string]bool
	churnCount     int
	churnByRole    map[string]int
	resourceDemand map[string]float64

	flowBySystem         map[string]float64
	activityBySystem     map[string]int
	systemParticipants   map[string]map[string]bool
	flowBySource         map[string]float64
	flowBySink           map[string]float64

	contentDropSeen bool
}

func newTickActivity() *tickActivity {
	return &tickActivity{
		faucetByCurrency:   map[string]float64{},
		sinkByCurrency:     map[string]float64{},
		tradesByCurrency:   map[string][]domain.EconomicEvent{},
		producers:          map[string]bool{},
		churnByRole:        map[string]int{},
		resourceDemand:     map[string]float64{},
		flowBySystem:       map[string]float64{},
		activityBySystem:   map[string]int{},
		systemParticipants: map[string]map[string]bool{},
		flowBySource:       map[string]float64{},
		flowBySink:         map[string]float64{},
	}
}

// classify folds one event into the accumulator.
func (a *tickActivity) classify(state *domain.EconomyState, ev domain.EconomicEvent) {
	currency := state.EventCurrency(&ev)

	switch ev.Kind {
	case domain.EventMint, domain.EventEnter:
		a.faucetByCurrency[currency] += ev.Amount
	case domain.EventBurn, domain.EventConsume:
		a.sinkByCurrency[currency] += ev.Amount
		if ev.Resource != "" {
			a.resourceDemand[ev.Resource] += ev.Amount
		}
	case domain.EventTrade:
		a.tradesByCurrency[currency] = append(a.tradesByCurrency[currency], ev)
		if ev.Resource != "" {
			a.resourceDemand[ev.Resource] += ev.Amount
		}
	case domain.EventProduce:
		a.produceVolume += ev.Amount
		if ev.Actor != "" {
			a.producers[ev.Actor] = true
		}
		if isContentDrop(ev.Metadata) {
			a.contentDropSeen = true
		}
	case domain.EventChurn:
		a.churnCount++
		if ev.Role != "" {
			a.churnByRole[ev.Role]++
		}
	case domain.EventRoleChange:
		if ev.Role != "" {
			a.churnByRole[ev.Role]++
		}
	}

	// Per-system tracking. Enter events count as activity but are excluded
	// from flow.
	if ev.System != "" {
		a.activityBySystem[ev.System]++
		if ev.Actor != "" {
			if a.systemParticipants[ev.System] == nil {
				a.systemParticipants[ev.System] = map[string]bool{}
			}
			a.systemParticipants[ev.System][ev.Actor] = true
		}
		switch ev.Kind {
		case domain.EventMint:
			a.flowBySystem[ev.System] += ev.Amount
		case domain.EventBurn, domain.EventConsume:
			a.flowBySystem[ev.System] -= ev.Amount
		}
	}

	// Per-source / per-sink tracking, enter excluded as well.
	if ev.SourceOrSink != "" {
		switch ev.Kind {
		case domain.EventMint:
			a.flowBySource[ev.SourceOrSink] += ev.Amount
		case domain.EventBurn, domain.EventConsume:
			a.flowBySink[ev.SourceOrSink] += ev.Amount
		}
	}
}

func isContentDrop(meta map[string]any) bool {
	if meta == nil {
		return false
	}
	switch v := meta["contentDrop"].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// normalizeShares converts absolute flows to fractions of the total.
func normalizeShares(flows map[string]float64) map[string]float64 {
	total := 0.0
	for _, v := range flows {
		total += v
	}
	shares := make(map[string]float64, len(flows))
	for k, v := range flows {
		if total > 0 {
			shares[k] = v / total
		} else {
			shares[k] = 0
		}
	}
	return shares
}
