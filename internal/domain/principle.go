package domain

// Principle is one pluggable economic invariant. Implementations are pure
// predicates over a metrics snapshot; they must not hold state between
// checks and must not panic on degenerate inputs (the registry contains
// panics regardless, treating them as not-violated).
type Principle interface {
	ID() string
	Name() string
	Category() string
	Description() string
	Check(m *EconomyMetrics, t *Thresholds) PrincipleResult
}

// PrincipleResult is the outcome of one principle check. The zero value
// means not violated.
type PrincipleResult struct {
	Violated        bool             `json:"violated"`
	Severity        float64          `json:"severity,omitempty"` // 1..10
	Evidence        map[string]any   `json:"evidence,omitempty"`
	SuggestedAction *SuggestedAction `json:"suggestedAction,omitempty"`
	Confidence      float64          `json:"confidence,omitempty"` // 0..1
	EstimatedLag    int64            `json:"estimatedLag,omitempty"`
}

// Ok is the non-violation result.
func Ok() PrincipleResult { return PrincipleResult{} }

// Violated builds a violation result with severity clamped to [1,10] and
// confidence clamped to [0,1].
func Violated(severity float64, confidence float64, evidence map[string]any, action *SuggestedAction) PrincipleResult {
	if severity < 1 {
		severity = 1
	}
	if severity > 10 {
		severity = 10
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return PrincipleResult{
		Violated:        true,
		Severity:        severity,
		Confidence:      confidence,
		Evidence:        evidence,
		SuggestedAction: action,
	}
}

// Diagnosis is a violation paired with the principle that raised it, ready
// for the simulator and planner stages.
type Diagnosis struct {
	PrincipleID   string           `json:"principleId"`
	PrincipleName string           `json:"principleName"`
	Category      string           `json:"category"`
	Tick          int64            `json:"tick"`
	Severity      float64          `json:"severity"`
	Confidence    float64          `json:"confidence"`
	Evidence      map[string]any   `json:"evidence,omitempty"`
	Suggested     *SuggestedAction `json:"suggestedAction,omitempty"`
	EstimatedLag  int64            `json:"estimatedLag,omitempty"`
}

// FuncPrinciple adapts a plain check function into a Principle. The default
// library is built from these; hosts may register their own implementations
// of the interface directly.
type FuncPrinciple struct {
	PID     string
	PName   string
	PCat    string
	PDesc   string
	CheckFn func(m *EconomyMetrics, t *Thresholds) PrincipleResult
}

func (p *FuncPrinciple) ID() string          { return p.PID }
func (p *FuncPrinciple) Name() string        { return p.PName }
func (p *FuncPrinciple) Category() string    { return p.PCat }
func (p *FuncPrinciple) Description() string { return p.PDesc }

func (p *FuncPrinciple) Check(m *EconomyMetrics, t *Thresholds) PrincipleResult {
	return p.CheckFn(m, t)
}
