package satisfaction

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/warden/internal/domain"
)

func stateAt(tick int64, balances map[string]float64) *domain.EconomyState {
	s := &domain.EconomyState{
		Tick:          tick,
		Currencies:    []string{"gold"},
		AgentBalances: map[string]map[string]float64{},
		AgentRoles:    map[string]string{},
	}
	for id, b := range balances {
		s.AgentBalances[id] = map[string]float64{"gold": b}
	}
	return s
}

func tradeBy(actor string) domain.EconomicEvent {
	return domain.EconomicEvent{Kind: domain.EventTrade, Actor: actor, Currency: "gold", Amount: 1, Price: 1}
}

func TestUpdate_ScoresStayInRange(t *testing.T) {
	e := New(DefaultOptions(), zerolog.Nop())

	for tick := int64(1); tick <= 60; tick++ {
		e.Update(stateAt(tick, map[string]float64{
			"rich":   1e9,
			"poor":   0.0001,
			"middle": 100,
		}), []domain.EconomicEvent{tradeBy("rich")})
	}

	scores := e.Scores()
	require.Len(t, scores, 3)
	for id, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0, id)
		assert.LessOrEqual(t, s, 100.0, id)
	}
}

func TestUpdate_GrowingBalanceBeatsShrinking(t *testing.T) {
	e := New(DefaultOptions(), zerolog.Nop())

	for tick := int64(1); tick <= 30; tick++ {
		e.Update(stateAt(tick, map[string]float64{
			"grower":   float64(100 + tick*10),
			"shrinker": float64(400 - tick*10),
		}), []domain.EconomicEvent{tradeBy("grower"), tradeBy("shrinker")})
	}

	scores := e.Scores()
	assert.Greater(t, scores["grower"], scores["shrinker"])
}

func TestUpdate_InactivityDragsScoreDown(t *testing.T) {
	e := New(DefaultOptions(), zerolog.Nop())

	for tick := int64(1); tick <= 5; tick++ {
		e.Update(stateAt(tick, map[string]float64{"a": 100, "b": 100}),
			[]domain.EconomicEvent{tradeBy("a"), tradeBy("b")})
	}
	// Agent b goes dark well past the inactivity threshold.
	for tick := int64(6); tick <= 40; tick++ {
		e.Update(stateAt(tick, map[string]float64{"a": 100, "b": 100}),
			[]domain.EconomicEvent{tradeBy("a")})
	}

	scores := e.Scores()
	assert.Greater(t, scores["a"], scores["b"]+10)
}

func TestUpdate_StandingAgainstMedian(t *testing.T) {
	e := New(DefaultOptions(), zerolog.Nop())

	balances := map[string]float64{"whale": 1000}
	for i := 0; i < 9; i++ {
		balances[fmt.Sprintf("pleb-%d", i)] = 100
	}
	for tick := int64(1); tick <= 10; tick++ {
		events := make([]domain.EconomicEvent, 0, len(balances))
		for id := range balances {
			events = append(events, tradeBy(id))
		}
		e.Update(stateAt(tick, balances), events)
	}

	scores := e.Scores()
	assert.Greater(t, scores["whale"], scores["pleb-0"])
}

func TestUpdate_PrunesLongGoneAgents(t *testing.T) {
	opts := DefaultOptions()
	opts.WindowTicks = 5
	e := New(opts, zerolog.Nop())

	e.Update(stateAt(1, map[string]float64{"a": 100, "ghost": 100}), nil)
	for tick := int64(2); tick <= 12; tick++ {
		e.Update(stateAt(tick, map[string]float64{"a": 100}), nil)
	}

	scores := e.Scores()
	assert.Contains(t, scores, "a")
	assert.NotContains(t, scores, "ghost", "absent for twice the window")
}

func TestUpdate_SmoothingDampsSingleTickSwings(t *testing.T) {
	e := New(DefaultOptions(), zerolog.Nop())

	for tick := int64(1); tick <= 20; tick++ {
		e.Update(stateAt(tick, map[string]float64{"a": 100}), []domain.EconomicEvent{tradeBy("a")})
	}
	before := e.Scores()["a"]

	// One violent balance drop moves the smoothed score only a little.
	e.Update(stateAt(21, map[string]float64{"a": 1}), []domain.EconomicEvent{tradeBy("a")})
	after := e.Scores()["a"]
	assert.Less(t, after, before)
	assert.Greater(t, after, before-15)
}
