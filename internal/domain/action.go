package domain

// Direction is the sense of a suggested adjustment.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionSet      Direction = "set"
)

// SuggestedAction is the abstract corrective a principle proposes. The
// planner resolves it to a concrete registered parameter key.
type SuggestedAction struct {
	ParameterType string          `json:"parameterType"`
	Direction     Direction       `json:"direction"`
	Magnitude     float64         `json:"magnitude,omitempty"` // fractional, 0 = default
	AbsoluteValue *float64        `json:"absoluteValue,omitempty"`
	Scope         *ParameterScope `json:"scope,omitempty"`
	Reasoning     string          `json:"reasoning"`
}

// RollbackDirection tells which side of the threshold triggers a rollback.
type RollbackDirection string

const (
	RollbackAbove RollbackDirection = "above"
	RollbackBelow RollbackDirection = "below"
)

// RollbackCondition watches one metric key path after a plan is applied.
type RollbackCondition struct {
	Metric         string            `json:"metric"`
	Direction      RollbackDirection `json:"direction"`
	Threshold      float64           `json:"threshold"`
	CheckAfterTick int64             `json:"checkAfterTick"`
}

// SimulationResult summarizes a Monte-Carlo projection of one candidate
// action.
type SimulationResult struct {
	Iterations         int     `json:"iterations"`
	ForwardTicks       int     `json:"forwardTicks"`
	P10Satisfaction    float64 `json:"p10Satisfaction"`
	P50Satisfaction    float64 `json:"p50Satisfaction"`
	MeanSatisfaction   float64 `json:"meanSatisfaction"`
	BeforeSatisfaction float64 `json:"beforeSatisfaction"`
	ConfidenceLow      float64 `json:"confidenceLow"`
	ConfidenceHigh     float64 `json:"confidenceHigh"`
	EstimatedEffectTick int64  `json:"estimatedEffectTick"`
	OvershootRisk      float64 `json:"overshootRisk"`

	// Medians of the per-currency trajectories at the projection horizon.
	P50NetFlowByCurrency map[string]float64 `json:"p50NetFlowByCurrency,omitempty"`
	P50GiniByCurrency    map[string]float64 `json:"p50GiniByCurrency,omitempty"`

	NetImprovement bool `json:"netImprovement"`
	NoNewProblems  bool `json:"noNewProblems"`
}

// PlanTTLTicks is the hard ceiling on how long a plan may stay active past
// its apply tick. Guarantees liveness even when the watched rollback metric
// never resolves.
const PlanTTLTicks = 200

// ActionPlan is a concrete, validated adjustment ready for the executor.
// After apply the executor owns the plan; the decision log keeps value
// snapshots only.
type ActionPlan struct {
	ID               string            `json:"id"`
	Diagnosis        Diagnosis         `json:"diagnosis"`
	Parameter        string            `json:"parameter"`
	Scope            *ParameterScope   `json:"scope,omitempty"`
	CurrentValue     float64           `json:"currentValue"`
	TargetValue      float64           `json:"targetValue"`
	MaxChangePercent float64           `json:"maxChangePercent"`
	CooldownTicks    int64             `json:"cooldownTicks"`
	Rollback         RollbackCondition `json:"rollbackCondition"`
	Simulation       SimulationResult  `json:"simulationResult"`
	EstimatedLag     int64             `json:"estimatedLag"`

	// AppliedAt is -1 until the executor applies the plan.
	AppliedAt int64 `json:"appliedAt"`
}
