package core

// OutcomeMeasurement is the measured effect of an intervention after it
// has run (or expired).
type OutcomeMeasurement struct {
	InterventionID    string   `json:"intervention_id"`
	MeasuredAt        int64    `json:"measured_at"`
	SuccessRateChange float64  `json:"success_rate_change"`
	LatencyChange     float64  `json:"latency_change"`
	CostChange        float64  `json:"cost_change"`
	RiskChange        float64  `json:"risk_change"`
	UnexpectedEffects []string `json:"unexpected_effects,omitempty"`
}

// ModelAdjustment recommends a change to one tunable parameter.
type ModelAdjustment struct {
	Parameter        string  `json:"parameter"`
	CurrentValue     float64 `json:"current_value"`
	RecommendedValue float64 `json:"recommended_value"`
	Rationale        string  `json:"rationale"`
}

// Evaluation compares what an intervention promised against what it
// delivered.
type Evaluation struct {
	InterventionID         string             `json:"intervention_id"`
	ExpectedOutcome        OutcomeEstimate    `json:"expected_outcome"`
	ActualOutcome          OutcomeMeasurement `json:"actual_outcome"`
	AccuracyScore          float64            `json:"accuracy_score"`
	Success                bool               `json:"success"`
	Learnings              []string           `json:"learnings,omitempty"`
	RecommendedAdjustments []ModelAdjustment  `json:"recommended_adjustments,omitempty"`
}
