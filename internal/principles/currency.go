package principles

import (
	"fmt"
	"math"

	"github.com/aristath/warden/internal/domain"
)

// worstCurrency returns the key with the most extreme value by the given
// score function (higher score = worse).
func worstCurrency(byCurrency map[string]float64, score func(float64) float64) (string, float64) {
	worst, worstScore := "", math.Inf(-1)
	for cur, v := range byCurrency {
		if s := score(v); s > worstScore {
			worst, worstScore = cur, s
		}
	}
	return worst, byCurrency[worst]
}

func severityFromExcess(excess, scale float64) float64 {
	return math.Min(10, 5+excess*scale)
}

// faucetsBalanceSinks flags currencies whose tap/sink ratio has left the
// healthy band. A ratio far above 1 means faucets outrun sinks (inflationary
// pressure); far below means the economy is draining.
func faucetsBalanceSinks() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P1",
		PName: "Faucets Must Balance Sinks",
		PCat:  "currency",
		PDesc: "Currency creation and destruction stay in proportion.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			cur, ratio := worstCurrency(m.TapSinkRatioByCurrency, func(v float64) float64 {
				return math.Abs(math.Log(math.Max(v, 1e-9)))
			})
			if cur == "" {
				return domain.Ok()
			}
			if ratio <= t.TapSinkRatioMax && ratio >= t.TapSinkRatioMin {
				return domain.Ok()
			}

			action := &domain.SuggestedAction{
				ParameterType: "faucet_rate",
				Direction:     domain.DirectionDecrease,
				Scope:         &domain.ParameterScope{Currency: cur},
				Reasoning:     fmt.Sprintf("tap/sink ratio for %s is %.2f, above %.2f", cur, ratio, t.TapSinkRatioMax),
			}
			excess := ratio - t.TapSinkRatioMax
			if ratio < t.TapSinkRatioMin {
				action = &domain.SuggestedAction{
					ParameterType: "sink_rate",
					Direction:     domain.DirectionDecrease,
					Scope:         &domain.ParameterScope{Currency: cur},
					Reasoning:     fmt.Sprintf("tap/sink ratio for %s is %.2f, below %.2f", cur, ratio, t.TapSinkRatioMin),
				}
				excess = t.TapSinkRatioMin - ratio
			}

			return domain.Violated(
				severityFromExcess(excess, 2),
				0.8,
				map[string]any{"currency": cur, "tapSinkRatio": ratio},
				action,
			)
		},
	}
}

// inflationBounded flags currencies inflating or deflating past the cutoffs.
func inflationBounded() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P2",
		PName: "Inflation Stays Bounded",
		PCat:  "currency",
		PDesc: "Per-tick supply growth stays inside the configured band.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			cur, rate := worstCurrency(m.InflationByCurrency, math.Abs)
			if cur == "" {
				return domain.Ok()
			}
			if rate <= t.InflationMax && rate >= t.DeflationMin {
				return domain.Ok()
			}

			var action *domain.SuggestedAction
			var excess float64
			if rate > t.InflationMax {
				excess = rate - t.InflationMax
				action = &domain.SuggestedAction{
					ParameterType: "reward",
					Direction:     domain.DirectionDecrease,
					Scope:         &domain.ParameterScope{Currency: cur},
					Reasoning:     fmt.Sprintf("%s supply grew %.1f%% this tick", cur, rate*100),
				}
			} else {
				excess = t.DeflationMin - rate
				action = &domain.SuggestedAction{
					ParameterType: "cost",
					Direction:     domain.DirectionDecrease,
					Scope:         &domain.ParameterScope{Currency: cur},
					Reasoning:     fmt.Sprintf("%s supply shrank %.1f%% this tick", cur, -rate*100),
				}
			}

			return domain.Violated(
				severityFromExcess(excess*10, 1),
				0.7,
				map[string]any{"currency": cur, "inflationRate": rate},
				action,
			)
		},
	}
}

// currencyCirculates flags a dead economy: supply exists but almost nothing
// trades.
func currencyCirculates() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P3",
		PName: "Currency Must Circulate",
		PCat:  "currency",
		PDesc: "Trade velocity stays above the stagnation floor.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			if m.TotalSupply <= 0 || m.TotalAgents == 0 {
				return domain.Ok()
			}
			if m.Velocity >= t.VelocityMin {
				return domain.Ok()
			}
			return domain.Violated(
				5,
				0.6,
				map[string]any{"velocity": m.Velocity, "totalSupply": m.TotalSupply},
				&domain.SuggestedAction{
					ParameterType: "fee",
					Direction:     domain.DirectionDecrease,
					Reasoning:     fmt.Sprintf("velocity %.4f is below the %.4f stagnation floor", m.Velocity, t.VelocityMin),
				},
			)
		},
	}
}

// anchorHolds flags per-agent purchasing power drifting too far from the
// first-tick baseline.
func anchorHolds() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P8",
		PName: "The Anchor Holds",
		PCat:  "currency",
		PDesc: "Per-agent currency holdings stay near the launch baseline.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			cur, drift := worstCurrency(m.AnchorDriftByCurrency, math.Abs)
			if cur == "" || math.Abs(drift) <= t.AnchorDriftMax {
				return domain.Ok()
			}

			dir := domain.DirectionDecrease
			ptype := "faucet_rate"
			if drift < 0 {
				ptype = "sink_rate"
			}
			return domain.Violated(
				severityFromExcess(math.Abs(drift)-t.AnchorDriftMax, 5),
				0.65,
				map[string]any{"currency": cur, "anchorDrift": drift},
				&domain.SuggestedAction{
					ParameterType: ptype,
					Direction:     dir,
					Scope:         &domain.ParameterScope{Currency: cur},
					Reasoning:     fmt.Sprintf("%s per-agent holdings drifted %.0f%% from baseline", cur, drift*100),
				},
			)
		},
	}
}
