package domain

import "time"

// DecisionResult is the terminal disposition of one pipeline pass.
type DecisionResult string

const (
	ResultApplied          DecisionResult = "applied"
	ResultSkippedCooldown  DecisionResult = "skipped_cooldown"
	ResultSkippedSimFailed DecisionResult = "skipped_simulation_failed"
	ResultSkippedLocked    DecisionResult = "skipped_locked"
	ResultSkippedOverride  DecisionResult = "skipped_override"
	ResultRolledBack       DecisionResult = "rolled_back"
	ResultRejected         DecisionResult = "rejected"
)

// DecisionEntry is one record in the decision log. Plan and Metrics are
// value snapshots; mutating the live plan after apply cannot reach the log.
type DecisionEntry struct {
	ID        string          `json:"id"`
	Tick      int64           `json:"tick"`
	Timestamp time.Time       `json:"timestamp"`
	Diagnosis *Diagnosis      `json:"diagnosis,omitempty"`
	Plan      *ActionPlan     `json:"plan,omitempty"`
	Result    DecisionResult  `json:"result"`
	Reasoning string          `json:"reasoning,omitempty"`
	Metrics   *EconomyMetrics `json:"metricsSnapshot,omitempty"`
}
