package principles

import (
	"fmt"

	"github.com/aristath/warden/internal/domain"
)

// profitabilityCompetitive flags role crowding: when one role's share of the
// population crosses the dominance threshold, its profitability is pulling
// everyone into the same niche. Roles listed in exempt (the host's declared
// dominant roles) never trigger.
func profitabilityCompetitive(exempt []string) domain.Principle {
	exemptSet := map[string]bool{}
	for _, r := range exempt {
		exemptSet[r] = true
	}

	return &domain.FuncPrinciple{
		PID:   "P5",
		PName: "Profitability Is Competitive",
		PCat:  "population",
		PDesc: "No single role's earnings crowd the population into one niche.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			if m.TotalAgents == 0 {
				return domain.Ok()
			}

			dominantRole, dominantShare := "", 0.0
			for role, share := range m.RoleShares {
				if exemptSet[role] {
					continue
				}
				if share > dominantShare {
					dominantRole, dominantShare = role, share
				}
			}
			if dominantRole == "" || dominantShare <= t.RoleDominanceShare {
				return domain.Ok()
			}

			return domain.Violated(
				severityFromExcess(dominantShare-t.RoleDominanceShare, 20),
				0.85,
				map[string]any{
					"dominantRole":  dominantRole,
					"dominantShare": dominantShare,
					"population":    m.PopulationByRole[dominantRole],
				},
				&domain.SuggestedAction{
					ParameterType: "yield",
					Direction:     domain.DirectionDecrease,
					Scope:         &domain.ParameterScope{Tags: []string{dominantRole}},
					Reasoning: fmt.Sprintf("%.0f%% of agents play %s; its profitability is crowding out other roles",
						dominantShare*100, dominantRole),
				},
			)
		},
	}
}

// agentsStay flags churn above the retention threshold.
func agentsStay(exempt []string) domain.Principle {
	_ = exempt
	return &domain.FuncPrinciple{
		PID:   "P9",
		PName: "Agents Must Stay",
		PCat:  "population",
		PDesc: "Churn stays below the retention threshold.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			if m.ChurnRate <= t.ChurnRateMax {
				return domain.Ok()
			}
			return domain.Violated(
				severityFromExcess((m.ChurnRate-t.ChurnRateMax)*50, 1),
				0.7,
				map[string]any{"churnRate": m.ChurnRate, "churnByRole": m.ChurnByRole},
				&domain.SuggestedAction{
					ParameterType: "reward",
					Direction:     domain.DirectionIncrease,
					Reasoning:     fmt.Sprintf("churn rate %.1f%% exceeds %.1f%%", m.ChurnRate*100, t.ChurnRateMax*100),
				},
			)
		},
	}
}

// satisfactionFloor flags average satisfaction sagging under the floor.
func satisfactionFloor() domain.Principle {
	return &domain.FuncPrinciple{
		PID:   "P10",
		PName: "Satisfaction Holds The Floor",
		PCat:  "population",
		PDesc: "Average agent satisfaction stays above the configured floor.",
		CheckFn: func(m *domain.EconomyMetrics, t *domain.Thresholds) domain.PrincipleResult {
			if m.AvgSatisfaction <= 0 || m.AvgSatisfaction >= t.SatisfactionMin {
				return domain.Ok()
			}
			severity := 6.0
			if m.AvgSatisfaction < t.SatisfactionCriticalMin {
				severity = 9
			}
			return domain.Violated(
				severity,
				0.8,
				map[string]any{"avgSatisfaction": m.AvgSatisfaction, "blockedAgents": m.BlockedAgents},
				&domain.SuggestedAction{
					ParameterType: "cost",
					Direction:     domain.DirectionDecrease,
					Reasoning:     fmt.Sprintf("average satisfaction %.0f is under the %.0f floor", m.AvgSatisfaction, t.SatisfactionMin),
				},
			)
		},
	}
}
