// Package planner turns a diagnosis plus its simulation into a concrete,
// bounded ActionPlan, or declines with a skip result. It owns the cooldown
// books, parameter locks, per-parameter constraints and the complexity
// budget.
package planner

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/registry"
)

// Options tunes planning behavior.
type Options struct {
	// CooldownTicks is the minimum tick gap between two adjustments of the
	// same parameter key, and of the same type+scope pair.
	CooldownTicks int64
	// ComplexityBudgetMax caps concurrently active plans.
	ComplexityBudgetMax int
}

// DefaultOptions mirrors the stock configuration.
func DefaultOptions() Options {
	return Options{CooldownTicks: 15, ComplexityBudgetMax: 20}
}

// Planner is driven only from the controller tick; no internal locking.
type Planner struct {
	reg  *registry.Registry
	log  zerolog.Logger
	opts Options

	lastAppliedByKey       map[string]int64
	lastAppliedByTypeScope map[string]int64
	locked                 map[string]bool
	constraints            map[string]domain.Constraint

	activePlans int
}

// New creates a planner over the given registry.
func New(reg *registry.Registry, opts Options, log zerolog.Logger) *Planner {
	if opts.CooldownTicks <= 0 {
		opts.CooldownTicks = DefaultOptions().CooldownTicks
	}
	if opts.ComplexityBudgetMax <= 0 {
		opts.ComplexityBudgetMax = DefaultOptions().ComplexityBudgetMax
	}
	return &Planner{
		reg:                    reg,
		log:                    log.With().Str("component", "planner").Logger(),
		opts:                   opts,
		lastAppliedByKey:       map[string]int64{},
		lastAppliedByTypeScope: map[string]int64{},
		locked:                 map[string]bool{},
		constraints:            map[string]domain.Constraint{},
	}
}

// LockParam prevents any plan from touching the key.
func (p *Planner) LockParam(key string) { p.locked[key] = true }

// UnlockParam lifts a lock. Unknown keys are a no-op.
func (p *Planner) UnlockParam(key string) { delete(p.locked, key) }

// LockedParams lists the currently locked keys.
func (p *Planner) LockedParams() []string {
	out := make([]string, 0, len(p.locked))
	for k := range p.locked {
		out = append(out, k)
	}
	return out
}

// SetConstraint bounds future targets for the key.
func (p *Planner) SetConstraint(key string, c domain.Constraint) { p.constraints[key] = c }

// ActivePlanCount reports plans applied but not yet rolled back or settled.
func (p *Planner) ActivePlanCount() int { return p.activePlans }

// Plan resolves the diagnosis to a registered parameter and runs the hard
// checks. On refusal the plan is nil and the returned result says which
// class of check failed, with a human-readable detail.
func (p *Planner) Plan(diag domain.Diagnosis, m *domain.EconomyMetrics, sim domain.SimulationResult, params map[string]float64, th *domain.Thresholds) (*domain.ActionPlan, domain.DecisionResult, string) {
	action := diag.Suggested
	if action == nil {
		return nil, domain.ResultSkippedCooldown, "diagnosis carries no suggested action"
	}

	cand := p.reg.Resolve(action.ParameterType, action.Scope)
	if cand == nil {
		return nil, domain.ResultSkippedCooldown,
			fmt.Sprintf("no registered parameter of type %q matches the scope", action.ParameterType)
	}
	key := cand.Key

	tsKey := typeScopeKey(action.ParameterType, action.Scope)
	if last, ok := p.lastAppliedByTypeScope[tsKey]; ok && m.Tick-last < p.opts.CooldownTicks {
		return nil, domain.ResultSkippedCooldown,
			fmt.Sprintf("type %s is on cooldown until tick %d", action.ParameterType, last+p.opts.CooldownTicks)
	}
	if last, ok := p.lastAppliedByKey[key]; ok && m.Tick-last < p.opts.CooldownTicks {
		return nil, domain.ResultSkippedCooldown,
			fmt.Sprintf("parameter %s is on cooldown until tick %d", key, last+p.opts.CooldownTicks)
	}
	if p.locked[key] {
		return nil, domain.ResultSkippedLocked, fmt.Sprintf("parameter %s is locked", key)
	}
	if !sim.NetImprovement {
		return nil, domain.ResultSkippedSimFailed, "simulation projects no net improvement"
	}
	if !sim.NoNewProblems {
		return nil, domain.ResultSkippedSimFailed, "simulation projects new principle violations"
	}
	if p.activePlans >= p.opts.ComplexityBudgetMax {
		return nil, domain.ResultSkippedCooldown,
			fmt.Sprintf("complexity budget exhausted (%d active plans)", p.activePlans)
	}

	current := p.currentValue(cand, params, action)
	magnitude := action.Magnitude
	if magnitude <= 0 {
		magnitude = 0.10
	}
	if magnitude > th.MaxAdjustmentPercent {
		magnitude = th.MaxAdjustmentPercent
	}

	var target float64
	switch {
	case action.Direction == domain.DirectionSet && action.AbsoluteValue != nil:
		target = *action.AbsoluteValue
	case action.Direction == domain.DirectionDecrease:
		target = current * (1 - magnitude)
	default:
		target = current * (1 + magnitude)
	}
	if c, ok := p.constraints[key]; ok {
		target = c.Apply(target)
	}
	if math.Abs(target-current) < 0.001 {
		return nil, domain.ResultSkippedCooldown,
			fmt.Sprintf("adjustment to %s is below the actionable delta", key)
	}

	lag := sim.EstimatedEffectTick - m.Tick
	if lag <= 0 {
		lagMult := th.LagMultiplierMin
		if lagMult < 1 {
			lagMult = 1
		}
		lag = int64(5 * lagMult)
	}

	plan := &domain.ActionPlan{
		ID:               uuid.New().String(),
		Diagnosis:        diag,
		Parameter:        key,
		Scope:            cand.Scope.Clone(),
		CurrentValue:     current,
		TargetValue:      target,
		MaxChangePercent: magnitude,
		CooldownTicks:    p.opts.CooldownTicks,
		Rollback: domain.RollbackCondition{
			Metric:         "avgSatisfaction",
			Direction:      domain.RollbackBelow,
			Threshold:      math.Max(20, m.AvgSatisfaction-10),
			CheckAfterTick: m.Tick + lag + 3,
		},
		Simulation:   sim,
		EstimatedLag: lag,
		AppliedAt:    -1,
	}
	return plan, domain.ResultApplied, ""
}

// RecordApplied books the cooldowns and bumps the active plan count. The
// executor calls this right after a successful apply.
func (p *Planner) RecordApplied(plan *domain.ActionPlan, tick int64) {
	p.lastAppliedByKey[plan.Parameter] = tick
	if act := plan.Diagnosis.Suggested; act != nil {
		p.lastAppliedByTypeScope[typeScopeKey(act.ParameterType, act.Scope)] = tick
	}
	p.activePlans++
	p.log.Debug().Str("plan", plan.ID).Str("parameter", plan.Parameter).Int64("tick", tick).Msg("plan applied")
}

// RecordRolledBack releases one budget slot.
func (p *Planner) RecordRolledBack(plan *domain.ActionPlan) {
	p.releaseSlot()
	p.log.Debug().Str("plan", plan.ID).Str("parameter", plan.Parameter).Msg("plan rolled back")
}

// RecordSettled releases one budget slot.
func (p *Planner) RecordSettled(plan *domain.ActionPlan) {
	p.releaseSlot()
	p.log.Debug().Str("plan", plan.ID).Str("parameter", plan.Parameter).Msg("plan settled")
}

func (p *Planner) releaseSlot() {
	if p.activePlans > 0 {
		p.activePlans--
	}
}

// currentValue prefers the registry's live value, then the host's reported
// params map, then the action's absolute value, then 1.0.
func (p *Planner) currentValue(cand *domain.RegisteredParameter, params map[string]float64, action *domain.SuggestedAction) float64 {
	if cand.CurrentValue != nil {
		return *cand.CurrentValue
	}
	if v, ok := params[cand.Key]; ok {
		return v
	}
	if action.AbsoluteValue != nil {
		return *action.AbsoluteValue
	}
	return 1.0
}

func typeScopeKey(paramType string, scope *domain.ParameterScope) string {
	return paramType + "#" + scope.Key()
}
