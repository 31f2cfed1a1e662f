package principles

import (
	"fmt"

	"github.com/aristath/warden/internal/domain"
)

// inequalityBounded flags wealth concentration past the Gini / top-decile
// cutoffs.
func inequalityBounded() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P4",
		PName: "Inequality Stays Bounded",
		PCat:  "wealth",
		PDesc: "Wealth concentration stays under the configured ceiling.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			giniExcess := m.GiniCoefficient - t.GiniMax
			topExcess := m.Top10PctShare - t.Top10PctShareMax
			if giniExcess <= 0 && topExcess <= 0 {
				return domain.Ok()
			}

			excess := giniExcess
			if topExcess > excess {
				excess = topExcess
			}
			return domain.Violated(
				severityFromExcess(excess*10, 1),
				0.75,
				map[string]any{
					"giniCoefficient": m.GiniCoefficient,
					"top10PctShare":   m.Top10PctShare,
				},
				&domain.SuggestedAction{
					ParameterType: "tax",
					Direction:     domain.DirectionIncrease,
					Reasoning:     fmt.Sprintf("gini %.2f / top-10%% share %.2f exceed limits", m.GiniCoefficient, m.Top10PctShare),
				},
			)
		},
	}
}

// meanTracksMedian flags a mean balance pulled far away from the median,
// the classic whale-distortion signature.
func meanTracksMedian() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P14",
		PName: "Mean Tracks Median",
		PCat:  "wealth",
		PDesc: "Average wealth does not decouple from the typical agent.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			if m.MeanMedianDivergence <= t.MeanMedianDivergenceMax {
				return domain.Ok()
			}
			return domain.Violated(
				severityFromExcess(m.MeanMedianDivergence-t.MeanMedianDivergenceMax, 2),
				0.6,
				map[string]any{"meanMedianDivergence": m.MeanMedianDivergence},
				&domain.SuggestedAction{
					ParameterType: "tax",
					Direction:     domain.DirectionIncrease,
					Reasoning:     fmt.Sprintf("mean/median divergence %.2f exceeds %.2f", m.MeanMedianDivergence, t.MeanMedianDivergenceMax),
				},
			)
		},
	}
}
