package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterScope_MatchesCurrency(t *testing.T) {
	var nilScope *ParameterScope
	assert.True(t, nilScope.MatchesCurrency("gold"))
	assert.True(t, (&ParameterScope{}).MatchesCurrency("gold"))

	scoped := &ParameterScope{Currency: "gold"}
	assert.True(t, scoped.MatchesCurrency("gold"))
	assert.False(t, scoped.MatchesCurrency("gems"))
}

func TestParameterScope_KeyStable(t *testing.T) {
	var nilScope *ParameterScope
	assert.Equal(t, "", nilScope.Key())

	s := &ParameterScope{System: "arena", Currency: "gold", Tags: []string{"Trader", "Crafter"}}
	assert.Equal(t, "arena|gold|Trader|Crafter", s.Key())
	assert.Equal(t, s.Key(), s.Clone().Key())
}

func TestParameterScope_CloneIsDeep(t *testing.T) {
	s := &ParameterScope{Tags: []string{"Trader"}}
	c := s.Clone()
	c.Tags[0] = "Whale"
	assert.Equal(t, "Trader", s.Tags[0])

	var nilScope *ParameterScope
	assert.Nil(t, nilScope.Clone())
}

func TestRegisteredParameter_CloneIsDeep(t *testing.T) {
	v := 2.5
	p := RegisteredParameter{
		Key:          "economy.gold.faucet_rate",
		Type:         "faucet_rate",
		Scope:        &ParameterScope{Currency: "gold"},
		CurrentValue: &v,
	}
	c := p.Clone()
	*c.CurrentValue = 9.0
	c.Scope.Currency = "gems"

	assert.InDelta(t, 2.5, *p.CurrentValue, 1e-9)
	assert.Equal(t, "gold", p.Scope.Currency)
}

func TestConstraint_Apply(t *testing.T) {
	lo, hi := 1.0, 5.0
	c := Constraint{Min: &lo, Max: &hi}

	assert.InDelta(t, 1.0, c.Apply(0.2), 1e-9)
	assert.InDelta(t, 5.0, c.Apply(7.0), 1e-9)
	assert.InDelta(t, 3.0, c.Apply(3.0), 1e-9)

	require.InDelta(t, -4.0, Constraint{}.Apply(-4.0), 1e-9, "unbounded constraint passes through")
}
