package core

// ImpactEstimate is the expected system impact if a hypothesis holds.
type ImpactEstimate struct {
	SuccessRateImpact float64 `json:"success_rate_impact"`
	LatencyImpact     float64 `json:"latency_impact"`
	CostImpact        float64 `json:"cost_impact"`
	RiskImpact        float64 `json:"risk_impact"`
}

// Hypothesis is a candidate root cause for a detected pattern.
type Hypothesis struct {
	ID                    string         `json:"id"`
	Description           string         `json:"description"`
	RootCause             string         `json:"root_cause"`
	Confidence            float64        `json:"confidence"`
	SupportingEvidence    []Evidence     `json:"supporting_evidence"`
	ContradictingEvidence []Evidence     `json:"contradicting_evidence,omitempty"`
	ExpectedImpact        ImpactEstimate `json:"expected_impact"`
}

// BeliefState is the agent's current view of the system.
type BeliefState struct {
	ActiveHypotheses  []Hypothesis `json:"active_hypotheses"`
	SystemHealthScore float64      `json:"system_health_score"`
	UncertaintyLevel  float64      `json:"uncertainty_level"`
	LastUpdated       int64        `json:"last_updated"`
}
