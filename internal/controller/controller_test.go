package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/warden/internal/adapter"
	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/events"
)

func float(v float64) *float64 { return &v }

// stampedeState builds the 208-agent economy where 97 Traders crowd out
// every other role.
func stampedeState(tick int64) *domain.EconomyState {
	byRole := map[string]int{
		"Trader": 97, "consumer": 50, "producer": 23,
		"extractor": 18, "refiner": 9, "MarketMaker": 11,
	}
	s := &domain.EconomyState{
		Tick:              tick,
		Roles:             []string{"Trader", "consumer", "producer", "extractor", "refiner", "MarketMaker"},
		Currencies:        []string{"gold"},
		AgentBalances:     map[string]map[string]float64{},
		AgentRoles:        map[string]string{},
		AgentSatisfaction: map[string]float64{},
	}
	i := 0
	for role, n := range byRole {
		for k := 0; k < n; k++ {
			id := fmt.Sprintf("%s-%d", role, k)
			s.AgentBalances[id] = map[string]float64{"gold": float64(50 + (i%10)*10)}
			s.AgentRoles[id] = role
			s.AgentSatisfaction[id] = 80
			i++
		}
	}
	return s
}

func traderYieldParam() domain.RegisteredParameter {
	return domain.RegisteredParameter{
		Key:          "roles.trader.yield",
		Type:         "yield",
		FlowImpact:   domain.FlowFaucet,
		Scope:        &domain.ParameterScope{Tags: []string{"Trader"}},
		CurrentValue: float(10),
	}
}

func newController(cfg Config) (*Controller, *adapter.Memory) {
	host := adapter.NewMemory(nil)
	c := New(cfg, host, zerolog.Nop())
	c.Start()
	return c, host
}

func TestTick_StoppedControllerIsNoOp(t *testing.T) {
	c, _ := newController(DefaultConfig())
	c.Stop()

	res, err := c.Tick(context.Background(), stampedeState(100))
	require.NoError(t, err)
	assert.Equal(t, 100, res.Health)
	assert.Empty(t, res.Alerts)
}

func TestTick_GracePeriodObservesOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parameters = []domain.RegisteredParameter{traderYieldParam()}
	c, host := newController(cfg)

	res, err := c.Tick(context.Background(), stampedeState(25))
	require.NoError(t, err)
	require.NotNil(t, res.Metrics)
	assert.Empty(t, res.Alerts, "no diagnosis inside the grace period")
	assert.Empty(t, host.SetCalls())
}

func TestTick_CheckIntervalSkipsOffTicks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parameters = []domain.RegisteredParameter{traderYieldParam()}
	c, host := newController(cfg)

	res, err := c.Tick(context.Background(), stampedeState(102))
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
	assert.Empty(t, host.SetCalls())
}

func TestTick_TraderStampedeAppliesOneAdjustment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parameters = []domain.RegisteredParameter{traderYieldParam()}
	c, host := newController(cfg)

	res, err := c.Tick(context.Background(), stampedeState(100))
	require.NoError(t, err)

	require.NotEmpty(t, res.Alerts)
	assert.Equal(t, "P5", res.Alerts[0].PrincipleID)

	require.Len(t, res.Adjustments, 1)
	applied := res.Adjustments[0]
	assert.Equal(t, domain.ResultApplied, applied.Result)
	assert.Contains(t, applied.Reasoning, "Trader")
	require.NotNil(t, applied.Plan)
	assert.Equal(t, "roles.trader.yield", applied.Plan.Parameter)
	assert.InDelta(t, 9.0, applied.Plan.TargetValue, 1e-9)

	calls := host.SetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "roles.trader.yield", calls[0].Key)
	assert.InDelta(t, 9.0, calls[0].Value, 1e-9)

	got, ok := c.Registry().Get("roles.trader.yield")
	require.True(t, ok)
	require.NotNil(t, got.CurrentValue)
	assert.InDelta(t, 9.0, *got.CurrentValue, 1e-9)

	assert.Equal(t, 1, c.ActivePlanCount())
}

func TestTick_RollbackOnSatisfactionCrash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parameters = []domain.RegisteredParameter{traderYieldParam()}
	c, host := newController(cfg)

	_, err := c.Tick(context.Background(), stampedeState(100))
	require.NoError(t, err)
	require.Equal(t, 1, c.ActivePlanCount())

	crashed := stampedeState(120)
	for id := range crashed.AgentSatisfaction {
		crashed.AgentSatisfaction[id] = 10
	}
	res, err := c.Tick(context.Background(), crashed)
	require.NoError(t, err)

	require.Len(t, res.RolledBack, 1)
	assert.Equal(t, 0, c.ActivePlanCount())

	calls := host.SetCalls()
	last := calls[len(calls)-1]
	assert.Equal(t, "roles.trader.yield", last.Key)
	assert.InDelta(t, 10.0, last.Value, 1e-9, "rollback restores the prior value")

	rolled := 0
	for _, e := range c.Decisions().Latest(10) {
		if e.Result == domain.ResultRolledBack {
			rolled++
		}
	}
	assert.Equal(t, 1, rolled)
}

func TestTick_AdvisorModeHoldsPlans(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAdvisor
	cfg.Parameters = []domain.RegisteredParameter{traderYieldParam()}
	c, host := newController(cfg)

	res, err := c.Tick(context.Background(), stampedeState(100))
	require.NoError(t, err)
	assert.Empty(t, res.Adjustments)
	assert.Empty(t, host.SetCalls())

	pending := c.Pending()
	require.Len(t, pending, 1)

	for id := range pending {
		require.NoError(t, c.Approve(context.Background(), id))
	}
	assert.Empty(t, c.Pending())
	require.Len(t, host.SetCalls(), 1)
	assert.InDelta(t, 9.0, host.SetCalls()[0].Value, 1e-9)
}

func TestTick_AdvisorRejectDiscardsPlan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAdvisor
	cfg.Parameters = []domain.RegisteredParameter{traderYieldParam()}
	c, host := newController(cfg)

	_, err := c.Tick(context.Background(), stampedeState(100))
	require.NoError(t, err)

	for id := range c.Pending() {
		require.NoError(t, c.Reject(id, "operator said no"))
	}
	assert.Empty(t, c.Pending())
	assert.Empty(t, host.SetCalls())

	latest := c.Decisions().Latest(1)
	require.Len(t, latest, 1)
	assert.Equal(t, domain.ResultRejected, latest[0].Result)
	assert.Equal(t, "operator said no", latest[0].Reasoning)
}

func TestApproveReject_RequireAdvisorMode(t *testing.T) {
	c, _ := newController(DefaultConfig())
	assert.Error(t, c.Approve(context.Background(), "x"))
	assert.Error(t, c.Reject("x", ""))
}

func TestTick_BeforeActionVeto(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parameters = []domain.RegisteredParameter{traderYieldParam()}
	c, host := newController(cfg)

	require.NoError(t, c.Bus().Subscribe(events.EventBeforeAction, "gate", func(any) error {
		return events.ErrVeto
	}))

	res, err := c.Tick(context.Background(), stampedeState(100))
	require.NoError(t, err)
	assert.Empty(t, res.Adjustments)
	assert.Empty(t, host.SetCalls())

	latest := c.Decisions().Latest(1)
	require.Len(t, latest, 1)
	assert.Equal(t, domain.ResultSkippedOverride, latest[0].Result)
}

func TestIngest_DropsOversizedMetadata(t *testing.T) {
	c, _ := newController(DefaultConfig())

	meta := map[string]any{}
	for i := 0; i <= domain.MaxEventMetadataKeys; i++ {
		meta[fmt.Sprintf("k%d", i)] = i
	}
	c.Ingest(domain.EconomicEvent{Kind: domain.EventTrade, Metadata: meta})
	assert.Empty(t, c.eventBuf)

	c.Ingest(domain.EconomicEvent{Kind: domain.EventTrade})
	assert.Len(t, c.eventBuf, 1)
}

func TestIngest_BufferEvictsOldestPastCap(t *testing.T) {
	c, _ := newController(DefaultConfig())

	for i := 0; i < MaxBufferedEvents+5; i++ {
		c.Ingest(domain.EconomicEvent{Kind: domain.EventTrade, Amount: float64(i)})
	}
	require.Len(t, c.eventBuf, MaxBufferedEvents)
	assert.Equal(t, 5.0, c.eventBuf[0].Amount, "oldest entries evicted first")
}

func TestDrain_EventsDuringTickLandInNextTick(t *testing.T) {
	c, _ := newController(DefaultConfig())

	c.Ingest(domain.EconomicEvent{Kind: domain.EventTrade})
	drained := c.drainEvents()
	assert.Len(t, drained, 1)

	c.Ingest(domain.EconomicEvent{Kind: domain.EventMint})
	assert.Len(t, c.eventBuf, 1, "events ingested after the drain wait for the next tick")
}

// Operator configuration arrives from transport goroutines while ticks are
// in flight; both must serialize on the controller. Run with -race.
func TestTick_ConcurrentOperatorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parameters = []domain.RegisteredParameter{traderYieldParam()}
	c, _ := newController(cfg)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := int64(0); i < 50; i++ {
			_, err := c.Tick(context.Background(), stampedeState(100+i*5))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			c.LockParam("roles.trader.yield")
			_ = c.LockedParams()
			c.SetConstraint("roles.trader.yield", domain.Constraint{})
			c.UnlockParam("roles.trader.yield")
			_ = c.Pending()
			_ = c.ActivePlanCount()
			_ = c.CurrentTick()
		}
	}()

	wg.Wait()
}

func TestHealthOf(t *testing.T) {
	m := domain.EmptyMetrics()
	m.Tick = 10
	m.TotalAgents = 50
	m.AvgSatisfaction = 80
	assert.Equal(t, 100, HealthOf(m))

	m.AvgSatisfaction = 60
	assert.Equal(t, 85, HealthOf(m))

	m.AvgSatisfaction = 40
	assert.Equal(t, 75, HealthOf(m))

	m.GiniCoefficient = 0.7
	assert.Equal(t, 50, HealthOf(m))

	m.NetFlow = -25
	assert.Equal(t, 25, HealthOf(m))

	m.ChurnRate = 0.2
	assert.Equal(t, 10, HealthOf(m))
}

func TestHealthOf_ZeroSatisfaction(t *testing.T) {
	m := domain.EmptyMetrics()
	m.Tick = 10

	// An empty economy reports no satisfaction signal at all.
	assert.Equal(t, 100, HealthOf(m))

	// A populated economy at zero satisfaction is maximally degraded.
	m.TotalAgents = 50
	assert.Equal(t, 75, HealthOf(m))
}

func TestHealthScore_StartsAtHundred(t *testing.T) {
	c, _ := newController(DefaultConfig())
	assert.Equal(t, 100, c.HealthScore())
}
