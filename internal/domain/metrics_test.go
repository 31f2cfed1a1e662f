package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveMetrics() *EconomyMetrics {
	m := EmptyMetrics()
	m.Tick = 42
	m.AvgSatisfaction = 71.5
	m.NetFlowByCurrency = map[string]float64{"gold": -3.2}
	m.PricesByCurrency = map[string]map[string]float64{
		"gold": {"iron": 12.5},
	}
	m.PopulationByRole = map[string]int{"Trader": 9}
	m.Custom = CustomMetrics{"questBacklog": 17}
	return m
}

func TestResolve_Scalars(t *testing.T) {
	m := resolveMetrics()

	v, ok := m.Resolve("avgSatisfaction")
	require.True(t, ok)
	assert.InDelta(t, 71.5, v, 1e-9)

	v, ok = m.Resolve("tick")
	require.True(t, ok)
	assert.InDelta(t, 42, v, 1e-9)
}

func TestResolve_CurrencyMaps(t *testing.T) {
	m := resolveMetrics()

	v, ok := m.Resolve("netFlowByCurrency.gold")
	require.True(t, ok)
	assert.InDelta(t, -3.2, v, 1e-9)

	_, ok = m.Resolve("netFlowByCurrency.gems")
	assert.False(t, ok)
}

func TestResolve_TwoLevelAndIntMaps(t *testing.T) {
	m := resolveMetrics()

	v, ok := m.Resolve("pricesByCurrency.gold.iron")
	require.True(t, ok)
	assert.InDelta(t, 12.5, v, 1e-9)

	v, ok = m.Resolve("populationByRole.Trader")
	require.True(t, ok)
	assert.InDelta(t, 9, v, 1e-9)

	v, ok = m.Resolve("custom.questBacklog")
	require.True(t, ok)
	assert.InDelta(t, 17, v, 1e-9)
}

func TestResolve_Unresolvable(t *testing.T) {
	m := resolveMetrics()

	for _, path := range []string{"", "nope", "nope.deeper", "pricesByCurrency.gold", "netFlowByCurrency"} {
		_, ok := m.Resolve(path)
		assert.False(t, ok, path)
	}

	var nilMetrics *EconomyMetrics
	_, ok := nilMetrics.Resolve("tick")
	assert.False(t, ok)
}

func TestCustomMetrics_NaNMarshalsAsNull(t *testing.T) {
	c := CustomMetrics{"ok": 1.5, "broken": math.NaN(), "inf": math.Inf(1)}

	raw, err := json.Marshal(c)
	require.NoError(t, err)

	var out map[string]*float64
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Nil(t, out["broken"])
	assert.Nil(t, out["inf"])
	require.NotNil(t, out["ok"])
	assert.InDelta(t, 1.5, *out["ok"], 1e-9)
}
