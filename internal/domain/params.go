package domain

// FlowImpact statically classifies how a parameter moves net currency flow.
type FlowImpact string

const (
	FlowFaucet  FlowImpact = "faucet"
	FlowSink    FlowImpact = "sink"
	FlowNeutral FlowImpact = "neutral"
	FlowMixed   FlowImpact = "mixed"
)

// ParameterScope narrows which host knob a parameter key addresses.
type ParameterScope struct {
	System   string   `json:"system,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Matches reports whether a currency falls inside the scope. A nil or
// currency-less scope matches everything.
func (s *ParameterScope) MatchesCurrency(currency string) bool {
	if s == nil || s.Currency == "" {
		return true
	}
	return s.Currency == currency
}

// Clone returns a value copy so registry entries cannot be mutated from
// outside.
func (s *ParameterScope) Clone() *ParameterScope {
	if s == nil {
		return nil
	}
	c := *s
	if s.Tags != nil {
		c.Tags = append([]string(nil), s.Tags...)
	}
	return &c
}

// Key renders a stable composite used for type+scope cooldown tracking.
func (s *ParameterScope) Key() string {
	if s == nil {
		return ""
	}
	k := s.System + "|" + s.Currency
	for _, t := range s.Tags {
		k += "|" + t
	}
	return k
}

// RegisteredParameter describes one adjustable host knob.
type RegisteredParameter struct {
	Key          string          `json:"key"`
	Type         string          `json:"type"`
	FlowImpact   FlowImpact      `json:"flowImpact"`
	Scope        *ParameterScope `json:"scope,omitempty"`
	CurrentValue *float64        `json:"currentValue,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// Clone makes a deep value copy.
func (p RegisteredParameter) Clone() RegisteredParameter {
	c := p
	c.Scope = p.Scope.Clone()
	if p.CurrentValue != nil {
		v := *p.CurrentValue
		c.CurrentValue = &v
	}
	return c
}

// Constraint bounds the target value the planner may set for a parameter.
type Constraint struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Apply clamps v into the constraint.
func (c Constraint) Apply(v float64) float64 {
	if c.Min != nil && v < *c.Min {
		v = *c.Min
	}
	if c.Max != nil && v > *c.Max {
		v = *c.Max
	}
	return v
}
