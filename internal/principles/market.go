package principles

import (
	"fmt"
	"math"

	"github.com/aristath/warden/internal/domain"
)

// pricesStable flags excessive price volatility on any good.
func pricesStable() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P6",
		PName: "Prices Stay Stable",
		PCat:  "market",
		PDesc: "Per-tick price moves stay below the volatility ceiling.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			worstCur, worstRes, worstVol := "", "", 0.0
			for cur, byRes := range m.VolatilityByCurrency {
				for res, vol := range byRes {
					if vol > worstVol {
						worstCur, worstRes, worstVol = cur, res, vol
					}
				}
			}
			if worstVol <= t.PriceVolatilityMax {
				return domain.Ok()
			}
			return domain.Violated(
				severityFromExcess(worstVol-t.PriceVolatilityMax, 4),
				0.7,
				map[string]any{"currency": worstCur, "resource": worstRes, "volatility": worstVol},
				&domain.SuggestedAction{
					ParameterType: "fee",
					Direction:     domain.DirectionIncrease,
					Scope:         &domain.ParameterScope{Currency: worstCur},
					Reasoning:     fmt.Sprintf("%s price of %s moved %.0f%% in one tick", worstCur, worstRes, worstVol*100),
				},
			)
		},
	}
}

// onePricePerGood flags arbitrage spread: the same good priced wildly apart.
func onePricePerGood() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P7",
		PName: "One Price Per Good",
		PCat:  "market",
		PDesc: "Price dispersion inside one currency stays arbitrage-free.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			cur, idx := worstCurrency(m.ArbitrageIndexByCurrency, func(v float64) float64 { return v })
			if cur == "" || idx <= t.ArbitrageIndexMax {
				return domain.Ok()
			}
			return domain.Violated(
				severityFromExcess(idx-t.ArbitrageIndexMax, 5),
				0.6,
				map[string]any{"currency": cur, "arbitrageIndex": idx},
				&domain.SuggestedAction{
					ParameterType: "fee",
					Direction:     domain.DirectionIncrease,
					Scope:         &domain.ParameterScope{Currency: cur},
					Reasoning:     fmt.Sprintf("log-price spread %.2f in %s invites arbitrage loops", idx, cur),
				},
			)
		},
	}
}

// tradesAreReal flags gift-heavy trade flow, the usual smurfing / wealth
// funneling signature.
func tradesAreReal() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P11",
		PName: "Trades Are Real",
		PCat:  "market",
		PDesc: "Trades happen near market price, not as disguised transfers.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			cur, ratio := worstCurrency(m.GiftTradeRatioByCurrency, func(v float64) float64 { return v })
			if cur == "" || ratio <= t.GiftTradeRatioMax {
				return domain.Ok()
			}
			return domain.Violated(
				severityFromExcess((ratio-t.GiftTradeRatioMax)*10, 1),
				0.55,
				map[string]any{"currency": cur, "giftTradeRatio": ratio},
				&domain.SuggestedAction{
					ParameterType: "fee",
					Direction:     domain.DirectionIncrease,
					Scope:         &domain.ParameterScope{Currency: cur},
					Reasoning:     fmt.Sprintf("%.0f%% of %s trades are at or near zero price", ratio*100, cur),
				},
			)
		},
	}
}

// inventoryMoves flags disposal-heavy trading: sellers dumping hoarded stock.
func inventoryMoves() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P12",
		PName: "Inventory Must Move",
		PCat:  "market",
		PDesc: "Goods circulate instead of accumulating and being dumped.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			cur, ratio := worstCurrency(m.DisposalTradeRatioByCurrency, func(v float64) float64 { return v })
			if cur == "" || ratio <= t.DisposalTradeRatioMax {
				return domain.Ok()
			}
			return domain.Violated(
				severityFromExcess((ratio-t.DisposalTradeRatioMax)*10, 1),
				0.5,
				map[string]any{"currency": cur, "disposalTradeRatio": ratio},
				&domain.SuggestedAction{
					ParameterType: "sink_rate",
					Direction:     domain.DirectionIncrease,
					Scope:         &domain.ParameterScope{Currency: cur},
					Reasoning:     fmt.Sprintf("%.0f%% of %s trades are hoard disposals", ratio*100, cur),
				},
			)
		},
	}
}

// resourcesFlow flags scarce pinch-point resources choking production.
func resourcesFlow() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P13",
		PName: "Resources Flow To Demand",
		PCat:  "market",
		PDesc: "No resource stays scarce enough to choke downstream activity.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			scarce := []string{}
			for res, pinch := range m.PinchPoints {
				if pinch == domain.PinchScarce {
					scarce = append(scarce, res)
				}
			}
			if len(scarce) == 0 {
				return domain.Ok()
			}
			return domain.Violated(
				math.Min(10, 4+float64(len(scarce))),
				0.65,
				map[string]any{"scarceResources": scarce},
				&domain.SuggestedAction{
					ParameterType: "drop_rate",
					Direction:     domain.DirectionIncrease,
					Reasoning:     fmt.Sprintf("%d resource(s) are pinch-point scarce", len(scarce)),
				},
			)
		},
	}
}

// systemsBalanced flags one subsystem dominating the whole economy's flow.
func systemsBalanced() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P15",
		PName: "Systems Stay Balanced",
		PCat:  "market",
		PDesc: "No single subsystem dominates total currency flow.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			if len(m.FlowBySystem) < 2 {
				return domain.Ok()
			}
			total, worstSys, worstAbs := 0.0, "", 0.0
			for sys, flow := range m.FlowBySystem {
				a := math.Abs(flow)
				total += a
				if a > worstAbs {
					worstSys, worstAbs = sys, a
				}
			}
			if total <= 0 || worstAbs/total <= 0.8 {
				return domain.Ok()
			}
			return domain.Violated(
				5,
				0.5,
				map[string]any{"system": worstSys, "flowShare": worstAbs / total},
				&domain.SuggestedAction{
					ParameterType: "reward",
					Direction:     domain.DirectionDecrease,
					Scope:         &domain.ParameterScope{System: worstSys},
					Reasoning:     fmt.Sprintf("system %s carries %.0f%% of all flow", worstSys, worstAbs/total*100),
				},
			)
		},
	}
}
