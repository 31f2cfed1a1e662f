package domain

// Thresholds carries the cutoffs the principle library and the pipeline
// stages evaluate against. All fields have defaults; hosts override them
// through the regulator configuration.
type Thresholds struct {
	// Currency flow.
	InflationMax    float64 `json:"inflationMax" mapstructure:"inflation_max"`
	DeflationMin    float64 `json:"deflationMin" mapstructure:"deflation_min"`
	TapSinkRatioMax float64 `json:"tapSinkRatioMax" mapstructure:"tap_sink_ratio_max"`
	TapSinkRatioMin float64 `json:"tapSinkRatioMin" mapstructure:"tap_sink_ratio_min"`
	NetFlowMax      float64 `json:"netFlowMax" mapstructure:"net_flow_max"`
	AnchorDriftMax  float64 `json:"anchorDriftMax" mapstructure:"anchor_drift_max"`

	// Wealth distribution.
	GiniMax                 float64 `json:"giniMax" mapstructure:"gini_max"`
	Top10PctShareMax        float64 `json:"top10PctShareMax" mapstructure:"top10_pct_share_max"`
	MeanMedianDivergenceMax float64 `json:"meanMedianDivergenceMax" mapstructure:"mean_median_divergence_max"`

	// Market health.
	VelocityMin           float64 `json:"velocityMin" mapstructure:"velocity_min"`
	PriceVolatilityMax    float64 `json:"priceVolatilityMax" mapstructure:"price_volatility_max"`
	ArbitrageIndexMax     float64 `json:"arbitrageIndexMax" mapstructure:"arbitrage_index_max"`
	GiftTradeRatioMax     float64 `json:"giftTradeRatioMax" mapstructure:"gift_trade_ratio_max"`
	DisposalTradeRatioMax float64 `json:"disposalTradeRatioMax" mapstructure:"disposal_trade_ratio_max"`

	// Population.
	RoleDominanceShare float64 `json:"roleDominanceShare" mapstructure:"role_dominance_share"`
	ChurnRateMax       float64 `json:"churnRateMax" mapstructure:"churn_rate_max"`

	// Satisfaction.
	SatisfactionMin         float64 `json:"satisfactionMin" mapstructure:"satisfaction_min"`
	SatisfactionCriticalMin float64 `json:"satisfactionCriticalMin" mapstructure:"satisfaction_critical_min"`

	// Pipeline knobs referenced by planner and simulator.
	MaxAdjustmentPercent    float64 `json:"maxAdjustmentPercent" mapstructure:"max_adjustment_percent"`
	SimulationMinIterations int     `json:"simulationMinIterations" mapstructure:"simulation_min_iterations"`
	LagMultiplierMin        int     `json:"lagMultiplierMin" mapstructure:"lag_multiplier_min"`
}

// DefaultThresholds returns the stock cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		InflationMax:            0.05,
		DeflationMin:            -0.05,
		TapSinkRatioMax:         1.5,
		TapSinkRatioMin:         0.5,
		NetFlowMax:              10,
		AnchorDriftMax:          0.3,
		GiniMax:                 0.45,
		Top10PctShareMax:        0.6,
		MeanMedianDivergenceMax: 1.0,
		VelocityMin:             0.01,
		PriceVolatilityMax:      0.25,
		ArbitrageIndexMax:       0.5,
		GiftTradeRatioMax:       0.3,
		DisposalTradeRatioMax:   0.3,
		RoleDominanceShare:      0.35,
		ChurnRateMax:            0.05,
		SatisfactionMin:         65,
		SatisfactionCriticalMin: 50,
		MaxAdjustmentPercent:    0.15,
		SimulationMinIterations: 100,
		LagMultiplierMin:        1,
	}
}
