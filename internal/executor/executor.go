// Package executor owns applied plans for their whole lifetime: it pushes
// the target value to the host, watches the rollback condition each tick,
// and retires every plan as either rolled back or settled.
package executor

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/planner"
)

// DefaultSettlementWindowTicks is how long an applied plan is watched
// before it is considered permanent.
const DefaultSettlementWindowTicks = 200

// ParamSetter is the slice of the host adapter the executor needs.
type ParamSetter interface {
	SetParam(ctx context.Context, key string, value float64, scope *domain.ParameterScope) error
}

// Executor is driven only from the controller tick; no internal locking.
type Executor struct {
	log              zerolog.Logger
	planner          *planner.Planner
	settlementWindow int64

	active []*domain.ActionPlan
}

// New creates an executor that reports plan retirement to the planner.
func New(pl *planner.Planner, settlementWindowTicks int64, log zerolog.Logger) *Executor {
	if settlementWindowTicks <= 0 {
		settlementWindowTicks = DefaultSettlementWindowTicks
	}
	return &Executor{
		log:              log.With().Str("component", "executor").Logger(),
		planner:          pl,
		settlementWindow: settlementWindowTicks,
	}
}

// ActivePlans returns the live plans in apply order. Callers must not
// mutate the returned plans.
func (e *Executor) ActivePlans() []*domain.ActionPlan {
	return append([]*domain.ActionPlan(nil), e.active...)
}

// ActiveCount reports the number of live plans.
func (e *Executor) ActiveCount() int { return len(e.active) }

// Apply pushes the plan's target value to the host and takes ownership of
// the plan. The host call failing leaves the plan unapplied.
func (e *Executor) Apply(ctx context.Context, plan *domain.ActionPlan, setter ParamSetter) error {
	plan.AppliedAt = plan.Diagnosis.Tick
	if err := setter.SetParam(ctx, plan.Parameter, plan.TargetValue, plan.Scope); err != nil {
		plan.AppliedAt = -1
		return err
	}
	e.active = append(e.active, plan)
	e.planner.RecordApplied(plan, plan.AppliedAt)
	e.log.Info().
		Str("plan", plan.ID).
		Str("parameter", plan.Parameter).
		Float64("from", plan.CurrentValue).
		Float64("to", plan.TargetValue).
		Int64("tick", plan.AppliedAt).
		Msg("plan applied")
	return nil
}

// CheckRollbacks walks the active set against the latest snapshot and
// returns the plans retired this tick, split into rolled back and settled.
// An unresolvable or NaN watch metric rolls the plan back; staying blind
// past the check tick is worse than reverting a change that may have been
// fine.
func (e *Executor) CheckRollbacks(ctx context.Context, m *domain.EconomyMetrics, setter ParamSetter) (rolledBack, settled []*domain.ActionPlan) {
	remaining := e.active[:0]

	for _, plan := range e.active {
		if m.Tick-plan.AppliedAt > domain.PlanTTLTicks {
			settled = append(settled, plan)
			e.planner.RecordSettled(plan)
			e.log.Warn().Str("plan", plan.ID).Str("parameter", plan.Parameter).Msg("plan hit hard TTL, force settled")
			continue
		}
		if m.Tick < plan.Rollback.CheckAfterTick {
			remaining = append(remaining, plan)
			continue
		}

		value, ok := m.Resolve(plan.Rollback.Metric)
		trigger := !ok || math.IsNaN(value)
		if !trigger {
			switch plan.Rollback.Direction {
			case domain.RollbackBelow:
				trigger = value < plan.Rollback.Threshold
			case domain.RollbackAbove:
				trigger = value > plan.Rollback.Threshold
			}
		}

		if trigger {
			if err := setter.SetParam(ctx, plan.Parameter, plan.CurrentValue, plan.Scope); err != nil {
				e.log.Error().Err(err).Str("plan", plan.ID).Str("parameter", plan.Parameter).
					Msg("host rejected rollback, dropping plan anyway")
			}
			rolledBack = append(rolledBack, plan)
			e.planner.RecordRolledBack(plan)
			e.log.Info().
				Str("plan", plan.ID).
				Str("parameter", plan.Parameter).
				Str("metric", plan.Rollback.Metric).
				Bool("metricResolved", ok).
				Msg("plan rolled back")
			continue
		}

		if m.Tick > plan.AppliedAt+e.settlementWindow {
			settled = append(settled, plan)
			e.planner.RecordSettled(plan)
			e.log.Info().Str("plan", plan.ID).Str("parameter", plan.Parameter).Msg("plan settled")
			continue
		}
		remaining = append(remaining, plan)
	}

	// Zero the tail so retired plans do not linger in the backing array.
	for i := len(remaining); i < len(e.active); i++ {
		e.active[i] = nil
	}
	e.active = remaining
	return rolledBack, settled
}
