package principles

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/warden/internal/domain"
)

func fixed(id string, severity, confidence float64) domain.Principle {
	return &domain.FuncPrinciple{
		PID: id, PName: id, PCat: "test",
		CheckFn: func(*domain.EconomyMetrics, *domain.Thresholds) domain.PrincipleResult {
			return domain.Violated(severity, confidence, nil, nil)
		},
	}
}

func healthyMetrics() *domain.EconomyMetrics {
	m := domain.EmptyMetrics()
	m.Tick = 100
	m.TotalAgents = 10
	m.AvgSatisfaction = 80
	m.TapSinkRatioByCurrency["gold"] = 1
	m.RoleShares["producer"] = 0.34
	m.RoleShares["consumer"] = 0.33
	m.RoleShares["gatherer"] = 0.33
	return m
}

func TestDiagnose_OrderedBySeverityThenConfidence(t *testing.T) {
	d := NewDiagnoser(zerolog.Nop(),
		fixed("low", 3, 0.9),
		fixed("high_unsure", 8, 0.4),
		fixed("first_tie", 8, 0.7),
		fixed("second_tie", 8, 0.7),
	)

	th := domain.DefaultThresholds()
	got := d.Diagnose(healthyMetrics(), &th)
	require.Len(t, got, 4)

	assert.Equal(t, "first_tie", got[0].PrincipleID, "ties keep registration order")
	assert.Equal(t, "second_tie", got[1].PrincipleID)
	assert.Equal(t, "high_unsure", got[2].PrincipleID)
	assert.Equal(t, "low", got[3].PrincipleID)
}

func TestDiagnose_PanickingCheckTreatedAsOk(t *testing.T) {
	d := NewDiagnoser(zerolog.Nop(),
		&domain.FuncPrinciple{
			PID: "boom", PName: "boom", PCat: "test",
			CheckFn: func(*domain.EconomyMetrics, *domain.Thresholds) domain.PrincipleResult {
				panic("check exploded")
			},
		},
		fixed("ok", 5, 0.5),
	)

	th := domain.DefaultThresholds()
	got := d.Diagnose(healthyMetrics(), &th)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].PrincipleID)
}

func TestAddRemove(t *testing.T) {
	d := NewDiagnoser(zerolog.Nop(), fixed("a", 5, 0.5))
	assert.Equal(t, 1, d.Count())

	d.Add(fixed("b", 5, 0.5))
	assert.Equal(t, 2, d.Count())

	// Duplicate id replaces in place.
	d.Add(fixed("a", 9, 0.9))
	assert.Equal(t, 2, d.Count())

	assert.True(t, d.Remove("a"))
	assert.False(t, d.Remove("a"))
	assert.Equal(t, 1, d.Count())
}

func TestDefaultLibrary_HealthyEconomyIsQuiet(t *testing.T) {
	d := NewDiagnoser(zerolog.Nop(), DefaultLibrary(LibraryOptions{})...)
	th := domain.DefaultThresholds()

	got := d.Diagnose(healthyMetrics(), &th)
	assert.Empty(t, got)
}

func TestP5_RoleCrowding(t *testing.T) {
	d := NewDiagnoser(zerolog.Nop(), DefaultLibrary(LibraryOptions{})...)
	th := domain.DefaultThresholds()

	// The 97-trader stampede: Trader share 97/208 = 0.466.
	m := healthyMetrics()
	m.TotalAgents = 208
	m.PopulationByRole = map[string]int{
		"Trader": 97, "consumer": 50, "producer": 23,
		"extractor": 18, "refiner": 9, "MarketMaker": 11,
	}
	m.RoleShares = map[string]float64{}
	for role, n := range m.PopulationByRole {
		m.RoleShares[role] = float64(n) / 208.0
	}

	got := d.Diagnose(m, &th)
	require.NotEmpty(t, got)

	top := got[0]
	assert.Equal(t, "P5", top.PrincipleID)
	assert.Equal(t, "Profitability Is Competitive", top.PrincipleName)
	assert.GreaterOrEqual(t, top.Severity, 5.0)
	assert.Equal(t, "Trader", top.Evidence["dominantRole"])
	require.NotNil(t, top.Suggested)
	assert.Contains(t, top.Suggested.Reasoning, "Trader")
}

func TestP5_DominantRoleExemption(t *testing.T) {
	d := NewDiagnoser(zerolog.Nop(), DefaultLibrary(LibraryOptions{DominantRoles: []string{"citizen"}})...)
	th := domain.DefaultThresholds()

	m := healthyMetrics()
	m.TotalAgents = 100
	m.PopulationByRole = map[string]int{"citizen": 90, "merchant": 10}
	m.RoleShares = map[string]float64{"citizen": 0.9, "merchant": 0.1}

	for _, diag := range d.Diagnose(m, &th) {
		assert.NotEqual(t, "P5", diag.PrincipleID, "exempt role must not trigger crowding")
	}
}

func TestP10_SatisfactionFloorSeverities(t *testing.T) {
	d := NewDiagnoser(zerolog.Nop(), satisfactionFloor())
	th := domain.DefaultThresholds()

	m := healthyMetrics()
	m.AvgSatisfaction = 55
	got := d.Diagnose(m, &th)
	require.Len(t, got, 1)
	assert.Equal(t, 6.0, got[0].Severity)

	m.AvgSatisfaction = 30
	got = d.Diagnose(m, &th)
	require.Len(t, got, 1)
	assert.Equal(t, 9.0, got[0].Severity, "under the critical floor severity escalates")
}

func TestP1_TapSinkImbalance(t *testing.T) {
	d := NewDiagnoser(zerolog.Nop(), faucetsBalanceSinks())
	th := domain.DefaultThresholds()

	m := healthyMetrics()
	m.TapSinkRatioByCurrency["gold"] = 100
	got := d.Diagnose(m, &th)
	require.Len(t, got, 1)
	assert.Equal(t, "P1", got[0].PrincipleID)
	require.NotNil(t, got[0].Suggested)
	assert.Equal(t, "faucet_rate", got[0].Suggested.ParameterType)
	assert.Equal(t, "gold", got[0].Suggested.Scope.Currency)
}
