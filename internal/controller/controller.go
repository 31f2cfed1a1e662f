// Package controller wires the pipeline stages into the per-tick control
// loop: observe, diagnose, simulate, plan, execute. One Controller owns one
// economy; the pipeline itself is single-threaded and the transport shell
// serializes calls into it. Only the event ingest path is cross-goroutine.
package controller

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/adapter"
	"github.com/aristath/warden/internal/decisionlog"
	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/events"
	"github.com/aristath/warden/internal/executor"
	"github.com/aristath/warden/internal/metricstore"
	"github.com/aristath/warden/internal/observer"
	"github.com/aristath/warden/internal/personas"
	"github.com/aristath/warden/internal/planner"
	"github.com/aristath/warden/internal/principles"
	"github.com/aristath/warden/internal/registry"
	"github.com/aristath/warden/internal/satisfaction"
	"github.com/aristath/warden/internal/simulator"
)

// Mode selects how far the pipeline goes.
type Mode string

const (
	// ModeAutonomous applies plans to the host.
	ModeAutonomous Mode = "autonomous"
	// ModeAdvisor records plans as pending recommendations and waits for
	// explicit approval.
	ModeAdvisor Mode = "advisor"
)

// MaxBufferedEvents caps the ingest queue; the oldest events are evicted
// first.
const MaxBufferedEvents = 10000

// Config is the assembled regulator configuration.
type Config struct {
	Mode                  Mode
	GracePeriod           int64
	CheckInterval         int64
	SettlementWindowTicks int64
	CooldownTicks         int64
	ComplexityBudgetMax   int
	DecisionLogEntries    int
	ValidateRegistry      bool
	DominantRoles         []string
	Parameters            []domain.RegisteredParameter
	Thresholds            domain.Thresholds
}

// DefaultConfig mirrors the stock configuration.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeAutonomous,
		GracePeriod:           50,
		CheckInterval:         5,
		SettlementWindowTicks: executor.DefaultSettlementWindowTicks,
		CooldownTicks:         15,
		ComplexityBudgetMax:   20,
		DecisionLogEntries:    1000,
		ValidateRegistry:      true,
		Thresholds:            domain.DefaultThresholds(),
	}
}

// TickResult is what one pipeline pass reports back to the transport.
type TickResult struct {
	Tick        int64                  `json:"tick"`
	Health      int                    `json:"health"`
	Metrics     *domain.EconomyMetrics `json:"metrics,omitempty"`
	Alerts      []domain.Diagnosis     `json:"alerts"`
	Adjustments []domain.DecisionEntry `json:"adjustments"`
	RolledBack  []*domain.ActionPlan   `json:"rolledBack,omitempty"`
}

// Controller drives the five pipeline stages over one host adapter.
type Controller struct {
	cfg  Config
	log  zerolog.Logger
	host adapter.Adapter

	observer  *observer.Observer
	diagnoser *principles.Diagnoser
	simulator *simulator.Simulator
	planner   *planner.Planner
	executor  *executor.Executor
	registry  *registry.Registry
	store     *metricstore.Store
	decisions *decisionlog.Log
	bus       *events.Bus
	personas  *personas.Tracker
	estimator *satisfaction.Estimator

	// opMu serializes every externally reachable mutation: ticks, advisor
	// approvals, and planner configuration. Transports and the cron
	// scheduler call in from their own goroutines, and the pipeline stages
	// carry no locking of their own.
	opMu sync.Mutex

	// Ingest has its own lock so event producers never wait on a tick.
	bufMu    sync.Mutex
	eventBuf []domain.EconomicEvent

	params      map[string]float64
	pending     map[string]*domain.ActionPlan
	currentTick int64
	running     bool
	paused      bool
	startedAt   time.Time
}

// New assembles a controller and seeds the registry from cfg.Parameters.
func New(cfg Config, host adapter.Adapter, log zerolog.Logger) *Controller {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.SettlementWindowTicks <= 0 {
		cfg.SettlementWindowTicks = def.SettlementWindowTicks
	}
	if cfg.CooldownTicks <= 0 {
		cfg.CooldownTicks = def.CooldownTicks
	}
	if cfg.ComplexityBudgetMax <= 0 {
		cfg.ComplexityBudgetMax = def.ComplexityBudgetMax
	}
	if cfg.DecisionLogEntries <= 0 {
		cfg.DecisionLogEntries = def.DecisionLogEntries
	}
	if cfg.Thresholds == (domain.Thresholds{}) {
		cfg.Thresholds = domain.DefaultThresholds()
	}

	log = log.With().Str("component", "controller").Logger()

	reg := registry.New(log)
	for _, p := range cfg.Parameters {
		reg.Register(p)
	}
	if cfg.ValidateRegistry {
		validateRegistry(reg, log)
	}

	diag := principles.NewDiagnoser(log, principles.DefaultLibrary(principles.LibraryOptions{
		DominantRoles: cfg.DominantRoles,
	})...)
	pl := planner.New(reg, planner.Options{
		CooldownTicks:       cfg.CooldownTicks,
		ComplexityBudgetMax: cfg.ComplexityBudgetMax,
	}, log)

	c := &Controller{
		cfg:       cfg,
		log:       log,
		host:      host,
		observer:  observer.New(log),
		diagnoser: diag,
		simulator: simulator.New(diag, log),
		planner:   pl,
		executor:  executor.New(pl, cfg.SettlementWindowTicks, log),
		registry:  reg,
		store:     metricstore.New(metricstore.DefaultOptions(), log),
		decisions: decisionlog.New(cfg.DecisionLogEntries, log),
		bus:       events.NewBus(log),
		personas:  personas.New(personas.DefaultOptions(), log),
		estimator: satisfaction.New(satisfaction.DefaultOptions(), log),
		params:    map[string]float64{},
		pending:   map[string]*domain.ActionPlan{},
		startedAt: time.Now(),
	}
	for _, p := range cfg.Parameters {
		if p.CurrentValue != nil {
			c.params[p.Key] = *p.CurrentValue
		}
	}
	host.OnEvent(c.Ingest)
	return c
}

// Accessors for the transport shell.

func (c *Controller) Registry() *registry.Registry   { return c.registry }
func (c *Controller) Decisions() *decisionlog.Log    { return c.decisions }
func (c *Controller) Metrics() *metricstore.Store    { return c.store }
func (c *Controller) Diagnoser() *principles.Diagnoser { return c.diagnoser }
func (c *Controller) Bus() *events.Bus               { return c.bus }
func (c *Controller) Mode() Mode                     { return c.cfg.Mode }
func (c *Controller) Thresholds() domain.Thresholds  { return c.cfg.Thresholds }
func (c *Controller) Uptime() time.Duration          { return time.Since(c.startedAt) }

func (c *Controller) CurrentTick() int64 {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.currentTick
}

func (c *Controller) ActivePlanCount() int {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.executor.ActiveCount()
}

// Planner configuration passes through the controller so operator requests
// never touch the planner's maps while a tick is reading them.

// LockParam prevents any plan from touching the key.
func (c *Controller) LockParam(key string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.planner.LockParam(key)
}

// UnlockParam lifts a lock. Unknown keys are a no-op.
func (c *Controller) UnlockParam(key string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.planner.UnlockParam(key)
}

// LockedParams lists the currently locked keys.
func (c *Controller) LockedParams() []string {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.planner.LockedParams()
}

// SetConstraint bounds future plan targets for the key.
func (c *Controller) SetConstraint(key string, constraint domain.Constraint) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.planner.SetConstraint(key, constraint)
}

// Start enables the pipeline.
func (c *Controller) Start() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.running = true
}

// Stop disables the pipeline; ticks become no-ops.
func (c *Controller) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.running = false
}

// Pause suspends interventions without losing state.
func (c *Controller) Pause() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.paused = true
}

// Resume lifts a pause.
func (c *Controller) Resume() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.paused = false
}

// IsRunning reports the lifecycle flag.
func (c *Controller) IsRunning() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.running && !c.paused
}

// Ingest queues one host event for the next tick. Events with oversized
// metadata are dropped; a full buffer evicts the oldest entries.
func (c *Controller) Ingest(ev domain.EconomicEvent) {
	if len(ev.Metadata) > domain.MaxEventMetadataKeys {
		c.log.Warn().Str("kind", string(ev.Kind)).Int("keys", len(ev.Metadata)).Msg("event metadata too large, dropped")
		return
	}
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	c.eventBuf = append(c.eventBuf, ev)
	if over := len(c.eventBuf) - MaxBufferedEvents; over > 0 {
		c.eventBuf = c.eventBuf[over:]
	}
}

// drainEvents swaps the buffer with a fresh one. Events ingested during the
// tick land in the next tick's buffer.
func (c *Controller) drainEvents() []domain.EconomicEvent {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	drained := c.eventBuf
	c.eventBuf = nil
	return drained
}

// Tick runs one pipeline pass. A nil state is fetched from the adapter.
// Adapter failures abort the tick and bubble up; observer failures are
// contained and skip the tick.
func (c *Controller) Tick(ctx context.Context, state *domain.EconomyState) (*TickResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.running || c.paused {
		return &TickResult{Tick: c.currentTick, Health: c.HealthScore()}, nil
	}

	if state == nil {
		fetched, err := c.host.GetState(ctx)
		if err != nil {
			return nil, fmt.Errorf("adapter state fetch: %w", err)
		}
		state = fetched
	}
	c.currentTick = state.Tick

	drained := c.drainEvents()

	c.personas.Update(state, drained)
	c.estimator.Update(state, drained)
	if len(state.AgentSatisfaction) == 0 {
		state.AgentSatisfaction = c.estimator.Scores()
	}

	metrics, err := c.observer.Compute(state, drained)
	if err != nil {
		c.log.Error().Err(err).Int64("tick", state.Tick).Msg("observer failed, tick skipped")
		return &TickResult{Tick: state.Tick, Health: c.HealthScore()}, nil
	}
	metrics.PersonaDistribution = c.personas.Distribution()
	c.store.Record(metrics)

	res := &TickResult{
		Tick:        metrics.Tick,
		Metrics:     metrics,
		Alerts:      []domain.Diagnosis{},
		Adjustments: []domain.DecisionEntry{},
	}

	rolledBack, _ := c.executor.CheckRollbacks(ctx, metrics, c.host)
	res.RolledBack = rolledBack
	for _, plan := range rolledBack {
		c.params[plan.Parameter] = plan.CurrentValue
		c.registry.UpdateValue(plan.Parameter, plan.CurrentValue)
		c.decisions.Record(domain.DecisionEntry{
			Tick:      metrics.Tick,
			Diagnosis: &plan.Diagnosis,
			Plan:      plan,
			Result:    domain.ResultRolledBack,
			Reasoning: fmt.Sprintf("%s crossed the rollback threshold", plan.Rollback.Metric),
			Metrics:   metrics,
		})
		c.bus.Emit(events.EventRollback, plan)
	}

	res.Health = HealthOf(metrics)

	if metrics.Tick < c.cfg.GracePeriod {
		return res, nil
	}
	if metrics.Tick%c.cfg.CheckInterval != 0 {
		return res, nil
	}

	diagnoses := c.diagnoser.Diagnose(metrics, &c.cfg.Thresholds)
	for i := range diagnoses {
		diagnoses[i].Tick = metrics.Tick
		c.bus.Emit(events.EventAlert, diagnoses[i])
	}
	res.Alerts = diagnoses
	if len(diagnoses) == 0 {
		return res, nil
	}

	top := diagnoses[0]
	iterations := simulator.MinIterations
	if c.cfg.Thresholds.SimulationMinIterations > iterations {
		iterations = c.cfg.Thresholds.SimulationMinIterations
	}
	var sim domain.SimulationResult
	if top.Suggested != nil {
		sim = c.simulator.Simulate(top.Suggested, metrics, &c.cfg.Thresholds, iterations, simulator.DefaultForwardTicks)
	}

	plan, skipResult, detail := c.planner.Plan(top, metrics, sim, c.params, &c.cfg.Thresholds)
	if plan == nil {
		entry := c.decisions.Record(domain.DecisionEntry{
			Tick:      metrics.Tick,
			Diagnosis: &top,
			Result:    skipResult,
			Reasoning: detail,
			Metrics:   metrics,
		})
		c.bus.Emit(events.EventDecision, entry)
		return res, nil
	}

	if c.cfg.Mode == ModeAdvisor {
		entry := c.decisions.Record(domain.DecisionEntry{
			Tick:      metrics.Tick,
			Diagnosis: &top,
			Plan:      plan,
			Result:    domain.ResultSkippedOverride,
			Reasoning: "advisor mode: plan pending approval",
			Metrics:   metrics,
		})
		c.pending[entry.ID] = plan
		c.bus.Emit(events.EventDecision, entry)
		return res, nil
	}

	if err := c.bus.Emit(events.EventBeforeAction, plan); err != nil {
		entry := c.decisions.Record(domain.DecisionEntry{
			Tick:      metrics.Tick,
			Diagnosis: &top,
			Plan:      plan,
			Result:    domain.ResultSkippedOverride,
			Reasoning: "vetoed by beforeAction handler",
			Metrics:   metrics,
		})
		c.bus.Emit(events.EventDecision, entry)
		return res, nil
	}

	if err := c.applyPlan(ctx, plan, metrics, res); err != nil {
		return nil, err
	}
	return res, nil
}

// applyPlan pushes the plan through the executor and records the decision.
func (c *Controller) applyPlan(ctx context.Context, plan *domain.ActionPlan, metrics *domain.EconomyMetrics, res *TickResult) error {
	if err := c.executor.Apply(ctx, plan, c.host); err != nil {
		return fmt.Errorf("adapter param apply: %w", err)
	}
	c.params[plan.Parameter] = plan.TargetValue
	c.registry.UpdateValue(plan.Parameter, plan.TargetValue)

	entry := c.decisions.Record(domain.DecisionEntry{
		Tick:      plan.Diagnosis.Tick,
		Diagnosis: &plan.Diagnosis,
		Plan:      plan,
		Result:    domain.ResultApplied,
		Reasoning: plan.Diagnosis.Suggested.Reasoning,
		Metrics:   metrics,
	})
	if res != nil {
		res.Adjustments = append(res.Adjustments, entry)
	}
	c.bus.Emit(events.EventDecision, entry)
	c.bus.Emit(events.EventAfterAction, plan)
	return nil
}

// Pending lists the plans awaiting approval in advisor mode, keyed by
// decision id.
func (c *Controller) Pending() map[string]*domain.ActionPlan {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	out := make(map[string]*domain.ActionPlan, len(c.pending))
	for id, p := range c.pending {
		out[id] = p
	}
	return out
}

// Approve applies a pending advisor-mode plan.
func (c *Controller) Approve(ctx context.Context, decisionID string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.cfg.Mode != ModeAdvisor {
		return fmt.Errorf("not in advisor mode")
	}
	plan, ok := c.pending[decisionID]
	if !ok {
		return fmt.Errorf("unknown decision %s", decisionID)
	}
	delete(c.pending, decisionID)

	metrics := c.store.Latest(metricstore.Fine)
	if err := c.applyPlan(ctx, plan, metrics, nil); err != nil {
		return err
	}
	return nil
}

// Reject discards a pending advisor-mode plan.
func (c *Controller) Reject(decisionID, reason string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.cfg.Mode != ModeAdvisor {
		return fmt.Errorf("not in advisor mode")
	}
	plan, ok := c.pending[decisionID]
	if !ok {
		return fmt.Errorf("unknown decision %s", decisionID)
	}
	delete(c.pending, decisionID)

	if reason == "" {
		reason = "rejected by operator"
	}
	entry := c.decisions.Record(domain.DecisionEntry{
		Tick:      c.currentTick,
		Diagnosis: &plan.Diagnosis,
		Plan:      plan,
		Result:    domain.ResultRejected,
		Reasoning: reason,
	})
	c.bus.Emit(events.EventDecision, entry)
	return nil
}

// HealthScore reports the health of the latest snapshot, 100 when nothing
// has been observed yet.
func (c *Controller) HealthScore() int {
	latest := c.store.Latest(metricstore.Fine)
	if latest == nil || latest.Tick == 0 {
		return 100
	}
	return HealthOf(latest)
}

// HealthOf folds the snapshot into a 0..100 score by subtracting fixed
// penalties per degraded vital sign.
func HealthOf(m *domain.EconomyMetrics) int {
	score := 100.0
	if m.AvgSatisfaction < 65 && m.TotalAgents > 0 {
		score -= 15
		if m.AvgSatisfaction < 50 {
			score -= 10
		}
	}
	if m.GiniCoefficient > 0.45 {
		score -= 15
		if m.GiniCoefficient > 0.60 {
			score -= 10
		}
	}
	if math.Abs(m.NetFlow) > 10 {
		score -= 15
		if math.Abs(m.NetFlow) > 20 {
			score -= 10
		}
	}
	if m.ChurnRate > 0.05 {
		score -= 15
	}
	return int(math.Max(0, math.Min(100, score)))
}

// validateRegistry logs suspicious registrations at startup.
func validateRegistry(reg *registry.Registry, log zerolog.Logger) {
	for _, p := range reg.GetAll() {
		if p.Type == "" {
			log.Warn().Str("key", p.Key).Msg("registered parameter has no type, resolution will never pick it")
		}
		if p.FlowImpact == "" {
			log.Warn().Str("key", p.Key).Msg("registered parameter has no flow impact, treating as neutral")
		}
	}
}
