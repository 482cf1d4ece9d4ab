package core

// RollbackCondition triggers automatic or manual reversal of an
// intervention.
type RollbackCondition struct {
	Type        string   `json:"type"`
	Threshold   *float64 `json:"threshold,omitempty"`
	Metric      string   `json:"metric,omitempty"`
	Description string   `json:"description"`
}

const (
	RollbackTimeBased   = "time_based"
	RollbackMetricBased = "metric_based"
	RollbackManual      = "manual"
)

// ExecutionResult records one execution attempt. Guardrail rejections
// are reported here with Success=false rather than as errors.
type ExecutionResult struct {
	Success            bool                `json:"success"`
	InterventionID     string              `json:"intervention_id"`
	InterventionKind   InterventionKind    `json:"intervention_type,omitempty"`
	Target             string              `json:"target,omitempty"`
	ExecutedAt         int64               `json:"executed_at"`
	ExpiresAt          *int64              `json:"expires_at,omitempty"`
	RollbackConditions []RollbackCondition `json:"rollback_conditions"`
	ActualParameters   Params              `json:"actual_parameters"`
	Error              string              `json:"error,omitempty"`
}

// GuardrailConfig bounds what the executor will accept without a human.
type GuardrailConfig struct {
	MaxRetryAdjustment       int      `json:"max_retry_adjustment" yaml:"max_retry_adjustment"`
	MaxSuppressionDurationMS int64    `json:"max_suppression_duration_ms" yaml:"max_suppression_duration_ms"`
	ProtectedMerchants       []string `json:"protected_merchants,omitempty" yaml:"protected_merchants"`
	ProtectedMethods         []string `json:"protected_methods,omitempty" yaml:"protected_methods"`
	RequireApprovalThreshold float64  `json:"require_approval_threshold" yaml:"require_approval_threshold"`
}

// DefaultGuardrails returns the executor limits used when the config
// file leaves them out.
func DefaultGuardrails() GuardrailConfig {
	return GuardrailConfig{
		MaxRetryAdjustment:       5,
		MaxSuppressionDurationMS: 600000,
		RequireApprovalThreshold: 0.3,
	}
}
