package domain

import (
	"encoding/json"
	"math"
	"strings"
)

// PinchPoint classifies a resource's supply/demand balance.
type PinchPoint string

const (
	PinchScarce      PinchPoint = "scarce"
	PinchOptimal     PinchPoint = "optimal"
	PinchOversupplied PinchPoint = "oversupplied"
)

// CustomMetrics holds developer-registered metric values. Failed metric
// callables leave NaN behind, which encoding/json refuses to marshal, so the
// map serializes NaN as null instead of failing the whole response.
type CustomMetrics map[string]float64

// MarshalJSON renders NaN values as null.
func (c CustomMetrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]*float64, len(c))
	for k, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[k] = nil
			continue
		}
		vv := v
		out[k] = &vv
	}
	return json.Marshal(out)
}

// EconomyMetrics is the dense per-tick metrics snapshot the Observer derives
// from an EconomyState plus the buffered event stream. Snapshots are never
// mutated after creation; the metric store retains them as-is.
type EconomyMetrics struct {
	Tick int64 `json:"tick"`

	// Per-currency breakdowns.
	SupplyByCurrency             map[string]float64            `json:"supplyByCurrency"`
	NetFlowByCurrency            map[string]float64            `json:"netFlowByCurrency"`
	VelocityByCurrency           map[string]float64            `json:"velocityByCurrency"`
	InflationByCurrency          map[string]float64            `json:"inflationByCurrency"`
	FaucetVolumeByCurrency       map[string]float64            `json:"faucetVolumeByCurrency"`
	SinkVolumeByCurrency         map[string]float64            `json:"sinkVolumeByCurrency"`
	TapSinkRatioByCurrency       map[string]float64            `json:"tapSinkRatioByCurrency"`
	AnchorDriftByCurrency        map[string]float64            `json:"anchorDriftByCurrency"`
	GiniByCurrency               map[string]float64            `json:"giniByCurrency"`
	MeanBalanceByCurrency        map[string]float64            `json:"meanBalanceByCurrency"`
	MedianBalanceByCurrency      map[string]float64            `json:"medianBalanceByCurrency"`
	Top10PctShareByCurrency      map[string]float64            `json:"top10PctShareByCurrency"`
	MeanMedianDivergenceByCurrency map[string]float64          `json:"meanMedianDivergenceByCurrency"`
	PriceIndexByCurrency         map[string]float64            `json:"priceIndexByCurrency"`
	PricesByCurrency             map[string]map[string]float64 `json:"pricesByCurrency"`
	VolatilityByCurrency         map[string]map[string]float64 `json:"volatilityByCurrency"`
	ArbitrageIndexByCurrency     map[string]float64            `json:"arbitrageIndexByCurrency"`
	GiftTradeRatioByCurrency     map[string]float64            `json:"giftTradeRatioByCurrency"`
	DisposalTradeRatioByCurrency map[string]float64            `json:"disposalTradeRatioByCurrency"`
	PoolSizes                    map[string]map[string]float64 `json:"poolSizes,omitempty"`

	// Scalar aggregates: arithmetic means of the per-currency maps, except
	// TotalSupply which is the sum.
	TotalSupply          float64 `json:"totalSupply"`
	NetFlow              float64 `json:"netFlow"`
	Velocity             float64 `json:"velocity"`
	InflationRate        float64 `json:"inflationRate"`
	TapSinkRatio         float64 `json:"tapSinkRatio"`
	AnchorRatioDrift     float64 `json:"anchorRatioDrift"`
	GiniCoefficient      float64 `json:"giniCoefficient"`
	MeanBalance          float64 `json:"meanBalance"`
	MedianBalance        float64 `json:"medianBalance"`
	Top10PctShare        float64 `json:"top10PctShare"`
	MeanMedianDivergence float64 `json:"meanMedianDivergence"`
	PriceIndex           float64 `json:"priceIndex"`
	ArbitrageIndex       float64 `json:"arbitrageIndex"`

	// Population.
	TotalAgents      int                `json:"totalAgents"`
	PopulationByRole map[string]int     `json:"populationByRole"`
	RoleShares       map[string]float64 `json:"roleShares"`
	ChurnRate        float64            `json:"churnRate"`
	ChurnByRole      map[string]int     `json:"churnByRole"`

	// Personas.
	PersonaDistribution map[string]float64 `json:"personaDistribution,omitempty"`

	// Market scalars.
	ProductionIndex float64 `json:"productionIndex"`
	CapacityUsage   float64 `json:"capacityUsage"`

	// Resources.
	ResourceSupply map[string]float64    `json:"resourceSupply"`
	ResourceDemand map[string]float64    `json:"resourceDemand"`
	PinchPoints    map[string]PinchPoint `json:"pinchPoints"`

	// Satisfaction.
	AvgSatisfaction float64 `json:"avgSatisfaction"`
	BlockedAgents   int     `json:"blockedAgents"`

	// Per-system tracking.
	FlowBySystem         map[string]float64 `json:"flowBySystem"`
	ActivityBySystem     map[string]int     `json:"activityBySystem"`
	ParticipantsBySystem map[string]int     `json:"participantsBySystem"`

	// Per-source / per-sink tracking.
	FlowBySource map[string]float64 `json:"flowBySource"`
	FlowBySink   map[string]float64 `json:"flowBySink"`
	SourceShare  map[string]float64 `json:"sourceShare"`
	SinkShare    map[string]float64 `json:"sinkShare"`

	// Reserved fields: initialized to zero until a principle check is
	// extended to populate them. Downstream checks skip zero values.
	SmokeTestRatio      float64 `json:"smokeTestRatio"`
	ExtractionRatio     float64 `json:"extractionRatio"`
	NewUserDependency   float64 `json:"newUserDependency"`
	EventCompletionRate float64 `json:"eventCompletionRate"`
	CurrencyInsulation  float64 `json:"currencyInsulation"`

	// Ticks since the last produce event flagged as a content drop.
	ContentDropAge int64 `json:"contentDropAge"`

	Custom CustomMetrics `json:"custom,omitempty"`
}

// EmptyMetrics returns a zero-valued snapshot at tick 0 with all maps
// allocated. The metric store hands this out when nothing has been recorded.
func EmptyMetrics() *EconomyMetrics {
	return &EconomyMetrics{
		SupplyByCurrency:               map[string]float64{},
		NetFlowByCurrency:              map[string]float64{},
		VelocityByCurrency:             map[string]float64{},
		InflationByCurrency:            map[string]float64{},
		FaucetVolumeByCurrency:         map[string]float64{},
		SinkVolumeByCurrency:           map[string]float64{},
		TapSinkRatioByCurrency:         map[string]float64{},
		AnchorDriftByCurrency:          map[string]float64{},
		GiniByCurrency:                 map[string]float64{},
		MeanBalanceByCurrency:          map[string]float64{},
		MedianBalanceByCurrency:        map[string]float64{},
		Top10PctShareByCurrency:        map[string]float64{},
		MeanMedianDivergenceByCurrency: map[string]float64{},
		PriceIndexByCurrency:           map[string]float64{},
		PricesByCurrency:               map[string]map[string]float64{},
		VolatilityByCurrency:           map[string]map[string]float64{},
		ArbitrageIndexByCurrency:       map[string]float64{},
		GiftTradeRatioByCurrency:       map[string]float64{},
		DisposalTradeRatioByCurrency:   map[string]float64{},
		PopulationByRole:               map[string]int{},
		RoleShares:                     map[string]float64{},
		ChurnByRole:                    map[string]int{},
		ResourceSupply:                 map[string]float64{},
		ResourceDemand:                 map[string]float64{},
		PinchPoints:                    map[string]PinchPoint{},
		FlowBySystem:                   map[string]float64{},
		ActivityBySystem:               map[string]int{},
		ParticipantsBySystem:           map[string]int{},
		FlowBySource:                   map[string]float64{},
		FlowBySink:                     map[string]float64{},
		SourceShare:                    map[string]float64{},
		SinkShare:                      map[string]float64{},
	}
}

// scalarFields maps dotted metric key paths to scalar accessors. Rollback
// conditions and metric store queries resolve watched metrics through this
// table; nested map fields are resolved by Resolve below.
var scalarFields = map[string]func(*EconomyMetrics) float64{
	"tick":                 func(m *EconomyMetrics) float64 { return float64(m.Tick) },
	"totalSupply":          func(m *EconomyMetrics) float64 { return m.TotalSupply },
	"netFlow":              func(m *EconomyMetrics) float64 { return m.NetFlow },
	"velocity":             func(m *EconomyMetrics) float64 { return m.Velocity },
	"inflationRate":        func(m *EconomyMetrics) float64 { return m.InflationRate },
	"tapSinkRatio":         func(m *EconomyMetrics) float64 { return m.TapSinkRatio },
	"anchorRatioDrift":     func(m *EconomyMetrics) float64 { return m.AnchorRatioDrift },
	"giniCoefficient":      func(m *EconomyMetrics) float64 { return m.GiniCoefficient },
	"meanBalance":          func(m *EconomyMetrics) float64 { return m.MeanBalance },
	"medianBalance":        func(m *EconomyMetrics) float64 { return m.MedianBalance },
	"top10PctShare":        func(m *EconomyMetrics) float64 { return m.Top10PctShare },
	"meanMedianDivergence": func(m *EconomyMetrics) float64 { return m.MeanMedianDivergence },
	"priceIndex":           func(m *EconomyMetrics) float64 { return m.PriceIndex },
	"arbitrageIndex":       func(m *EconomyMetrics) float64 { return m.ArbitrageIndex },
	"totalAgents":          func(m *EconomyMetrics) float64 { return float64(m.TotalAgents) },
	"churnRate":            func(m *EconomyMetrics) float64 { return m.ChurnRate },
	"productionIndex":      func(m *EconomyMetrics) float64 { return m.ProductionIndex },
	"capacityUsage":        func(m *EconomyMetrics) float64 { return m.CapacityUsage },
	"avgSatisfaction":      func(m *EconomyMetrics) float64 { return m.AvgSatisfaction },
	"blockedAgents":        func(m *EconomyMetrics) float64 { return float64(m.BlockedAgents) },
	"smokeTestRatio":       func(m *EconomyMetrics) float64 { return m.SmokeTestRatio },
	"extractionRatio":      func(m *EconomyMetrics) float64 { return m.ExtractionRatio },
	"newUserDependency":    func(m *EconomyMetrics) float64 { return m.NewUserDependency },
	"eventCompletionRate":  func(m *EconomyMetrics) float64 { return m.EventCompletionRate },
	"currencyInsulation":   func(m *EconomyMetrics) float64 { return m.CurrencyInsulation },
	"contentDropAge":       func(m *EconomyMetrics) float64 { return float64(m.ContentDropAge) },
}

// floatMapFields exposes the currency/label-indexed float maps for dotted
// key-path resolution ("netFlowByCurrency.gold").
func (m *EconomyMetrics) floatMapFields() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"supplyByCurrency":               m.SupplyByCurrency,
		"netFlowByCurrency":              m.NetFlowByCurrency,
		"velocityByCurrency":             m.VelocityByCurrency,
		"inflationByCurrency":            m.InflationByCurrency,
		"faucetVolumeByCurrency":         m.FaucetVolumeByCurrency,
		"sinkVolumeByCurrency":           m.SinkVolumeByCurrency,
		"tapSinkRatioByCurrency":         m.TapSinkRatioByCurrency,
		"anchorDriftByCurrency":          m.AnchorDriftByCurrency,
		"giniByCurrency":                 m.GiniByCurrency,
		"meanBalanceByCurrency":          m.MeanBalanceByCurrency,
		"medianBalanceByCurrency":        m.MedianBalanceByCurrency,
		"top10PctShareByCurrency":        m.Top10PctShareByCurrency,
		"meanMedianDivergenceByCurrency": m.MeanMedianDivergenceByCurrency,
		"priceIndexByCurrency":           m.PriceIndexByCurrency,
		"arbitrageIndexByCurrency":       m.ArbitrageIndexByCurrency,
		"giftTradeRatioByCurrency":       m.GiftTradeRatioByCurrency,
		"disposalTradeRatioByCurrency":   m.DisposalTradeRatioByCurrency,
		"roleShares":                     m.RoleShares,
		"personaDistribution":            m.PersonaDistribution,
		"resourceSupply":                 m.ResourceSupply,
		"resourceDemand":                 m.ResourceDemand,
		"flowBySystem":                   m.FlowBySystem,
		"flowBySource":                   m.FlowBySource,
		"flowBySink":                     m.FlowBySink,
		"sourceShare":                    m.SourceShare,
		"sinkShare":                      m.SinkShare,
		"custom":                         map[string]float64(m.Custom),
	}
}

// Resolve walks a dotted key path into the snapshot and returns the numeric
// value at that path. The second return is false when the path does not
// resolve to a number; callers treat that the same as NaN (fail-safe).
func (m *EconomyMetrics) Resolve(path string) (float64, bool) {
	if m == nil || path == "" {
		return 0, false
	}
	if fn, ok := scalarFields[path]; ok {
		return fn(m), true
	}

	parts := strings.SplitN(path, ".", 2)
	if len(parts) != 2 {
		return 0, false
	}
	head, rest := parts[0], parts[1]

	if mm, ok := m.floatMapFields()[head]; ok {
		v, ok := mm[rest]
		return v, ok
	}

	// Two-level maps: pricesByCurrency.gold.iron, volatilityByCurrency.gold.iron,
	// poolSizes.arena.gold; integer maps flattened to float.
	switch head {
	case "pricesByCurrency", "volatilityByCurrency", "poolSizes":
		var outer map[string]map[string]float64
		switch head {
		case "pricesByCurrency":
			outer = m.PricesByCurrency
		case "volatilityByCurrency":
			outer = m.VolatilityByCurrency
		case "poolSizes":
			outer = m.PoolSizes
		}
		sub := strings.SplitN(rest, ".", 2)
		if len(sub) != 2 {
			return 0, false
		}
		inner, ok := outer[sub[0]]
		if !ok {
			return 0, false
		}
		v, ok := inner[sub[1]]
		return v, ok
	case "populationByRole":
		v, ok := m.PopulationByRole[rest]
		return float64(v), ok
	case "churnByRole":
		v, ok := m.ChurnByRole[rest]
		return float64(v), ok
	case "activityBySystem":
		v, ok := m.ActivityBySystem[rest]
		return float64(v), ok
	case "participantsBySystem":
		v, ok := m.ParticipantsBySystem[rest]
		return float64(v), ok
	}
	return 0, false
}
