package personas

import (
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
	}
	for id, b := range balances {
		s.AgentBalances[id] = map[string]float64{"gold": b}
	}
	return s
}

func trade(from, to string) domain.EconomicEvent {
	return domain.EconomicEvent{Kind: domain.EventTrade, From: from, To: to, Currency: "gold", Amount: 1, Price: 2}
}

func ping(actor string) domain.EconomicEvent {
	return domain.EconomicEvent{Kind: domain.EventProduce, Actor: actor, Resource: "wood", Amount: 1}
}

func TestDistribution_SumsToOne(t *testing.T) {
	tr := New(DefaultOptions(), zerolog.Nop())
	balances := map[string]float64{"a": 100, "b": 200, "c": 5000, "d": 10}

	for tick := int64(1); tick <= 20; tick++ {
		tr.Update(stateAt(tick, balances), []domain.EconomicEvent{trade("a", "b"), ping("c")})
	}

	sum := 0.0
	for _, share := range tr.Distribution() {
		sum += share
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestClassify_NewEntrantFirst(t *testing.T) {
	tr := New(DefaultOptions(), zerolog.Nop())
	tr.Update(stateAt(100, map[string]float64{"fresh": 50}), nil)

	dist := tr.Distribution()
	assert.Equal(t, 1.0, dist[NewEntrant])
}

func TestClassify_WhaleByBalance(t *testing.T) {
	tr := New(DefaultOptions(), zerolog.Nop())
	balances := map[string]float64{"whale": 10000, "a": 100, "b": 110, "c": 90}

	var dist map[string]float64
	for tick := int64(1); tick <= 15; tick++ {
		events := []domain.EconomicEvent{ping("whale"), ping("a"), ping("b"), ping("c")}
		tr.Update(stateAt(tick, balances), events)
		dist = tr.Distribution()
	}

	require.NotZero(t, dist[Whale])
	assert.InDelta(t, 0.25, dist[Whale], 1e-9)
}

func TestClassify_IdleProgressionToDormant(t *testing.T) {
	opts := DefaultOptions()
	opts.NewEntrantTicks = 1
	tr := New(opts, zerolog.Nop())

	tr.Update(stateAt(1, map[string]float64{"idler": 100}), []domain.EconomicEvent{ping("idler")})

	tr.Update(stateAt(20, map[string]float64{"idler": 100}), nil)
	assert.Equal(t, 1.0, tr.Distribution()[AtRisk], "idle past the at-risk boundary")

	tr.Update(stateAt(40, map[string]float64{"idler": 100}), nil)
	assert.Equal(t, 1.0, tr.Distribution()[Dormant], "idle past the dormant boundary")
}

func TestClassify_ActiveTraderAndPowerUser(t *testing.T) {
	opts := DefaultOptions()
	opts.NewEntrantTicks = 1
	opts.WindowTicks = 5
	tr := New(opts, zerolog.Nop())

	balances := map[string]float64{"trader": 100, "power": 100, "quiet": 100}
	for tick := int64(1); tick <= 10; tick++ {
		events := []domain.EconomicEvent{
			trade("trader", "quiet"),
			trade("power", "trader"),
			trade("power", "quiet"),
			ping("power"),
		}
		tr.Update(stateAt(tick, balances), events)
	}

	dist := tr.Distribution()
	assert.NotZero(t, dist[PowerUser]+dist[ActiveTrader], "heavy traders must not read as Passive")
	assert.Zero(t, dist[Dormant])
}

func TestClassify_SpenderVersusAccumulator(t *testing.T) {
	opts := DefaultOptions()
	opts.NewEntrantTicks = 1
	tr := New(opts, zerolog.Nop())

	balances := map[string]float64{"saver": 100, "burner": 100}
	for tick := int64(1); tick <= 10; tick++ {
		events := []domain.EconomicEvent{
			{Kind: domain.EventProduce, Actor: "saver", Resource: "ore", Amount: 5},
			{Kind: domain.EventConsume, Actor: "burner", Resource: "ore", Amount: 5},
		}
		tr.Update(stateAt(tick, balances), events)
	}

	dist := tr.Distribution()
	assert.InDelta(t, 0.5, dist[Accumulator], 1e-9)
	assert.InDelta(t, 0.5, dist[Spender], 1e-9)
}

func TestUpdate_PrunesDepartedAgents(t *testing.T) {
	opts := DefaultOptions()
	opts.WindowTicks = 3
	tr := New(opts, zerolog.Nop())

	tr.Update(stateAt(1, map[string]float64{"ghost": 100, "a": 100}), nil)
	for tick := int64(2); tick <= 10; tick++ {
		tr.Update(stateAt(tick, map[string]float64{"a": 100}), nil)
	}

	assert.NotContains(t, tr.agents, "ghost")
	assert.Contains(t, tr.agents, "a")
}
