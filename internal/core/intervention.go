package core

// InterventionKind names an action the agent can take on traffic.
type InterventionKind string

const (
	InterventionAdjustRetry         InterventionKind = "adjust_retry"
	InterventionSuppressPath        InterventionKind = "suppress_path"
	InterventionRerouteTraffic      InterventionKind = "reroute_traffic"
	InterventionReduceRetryAttempts InterventionKind = "reduce_retry_attempts"
	InterventionAlertOps            InterventionKind = "alert_ops"
	InterventionNoAction            InterventionKind = "no_action"
)

// Tradeoffs is the multi-dimensional cost/benefit profile of an option.
type Tradeoffs struct {
	SuccessRateImpact  float64 `json:"success_rate_impact"`
	LatencyImpact      float64 `json:"latency_impact"`
	CostImpact         float64 `json:"cost_impact"`
	RiskImpact         float64 `json:"risk_impact"`
	UserFrictionImpact float64 `json:"user_friction_impact"`
}

// OutcomeEstimate is what the planner expects an option to achieve.
type OutcomeEstimate struct {
	ExpectedSuccessRateChange float64 `json:"expected_success_rate_change"`
	ExpectedLatencyChange     float64 `json:"expected_latency_change"`
	ExpectedCostChange        float64 `json:"expected_cost_change"`
	Confidence                float64 `json:"confidence"`
}

// Params is a free-form parameter bag on an intervention option.
// Numeric values may arrive as int, int64 or float64 depending on
// whether they round-tripped through JSON.
type Params map[string]interface{}

// Int reads an integer parameter, tolerating the numeric types JSON
// decoding produces. ok is false when the key is absent or non-numeric.
func (p Params) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// DurationMS reads the conventional duration_ms parameter.
func (p Params) DurationMS() (int64, bool) {
	return p.Int("duration_ms")
}

// String reads a string parameter.
func (p Params) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// InterventionOption is one possible action with its projected effects.
type InterventionOption struct {
	Kind            InterventionKind `json:"type"`
	Target          string           `json:"target"`
	Parameters      Params           `json:"parameters"`
	ExpectedOutcome OutcomeEstimate  `json:"expected_outcome"`
	Tradeoffs       Tradeoffs        `json:"tradeoffs"`
	Reversible      bool             `json:"reversible"`
	BlastRadius     float64          `json:"blast_radius"`
}

// IsAction reports whether the option actually changes traffic,
// as opposed to NO_ACTION.
func (o *InterventionOption) IsAction() bool {
	return o.Kind != InterventionNoAction
}

// Decision is the policy's verdict for one cycle.
type Decision struct {
	ShouldAct              bool                 `json:"should_act"`
	SelectedOption         *InterventionOption  `json:"selected_option,omitempty"`
	Rationale              string               `json:"rationale"`
	AlternativesConsidered []InterventionOption `json:"alternatives_considered,omitempty"`
	RequiresHumanApproval  bool                 `json:"requires_human_approval"`
}
