package learning

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/payops/sentinel/internal/core"
)

// ConsequenceDetector spots unintended effects that warrant rollback.
type ConsequenceDetector struct {
	degradationThreshold float64
	latencyLimitMS       float64
	riskLimit            float64
	log                  *slog.Logger
}

// NewConsequenceDetector builds a detector; a non-positive threshold
// takes the 5% default.
func NewConsequenceDetector(degradationThreshold float64, log *slog.Logger) *ConsequenceDetector {
	if degradationThreshold <= 0 {
		degradationThreshold = 0.05
	}
	if log == nil {
		log = slog.Default()
	}
	return &ConsequenceDetector{
		degradationThreshold: degradationThreshold,
		latencyLimitMS:       100.0,
		riskLimit:            0.1,
		log:                  log,
	}
}

// DetectDegradation decides whether a measured outcome calls for
// rollback, and why.
func (d *ConsequenceDetector) DetectDegradation(outcome core.OutcomeMeasurement) (bool, string) {
	var reasons []string

	if outcome.SuccessRateChange < -d.degradationThreshold {
		reasons = append(reasons, fmt.Sprintf(
			"Success rate degraded by %.1f%% (threshold: %.1f%%)",
			abs(outcome.SuccessRateChange)*100, d.degradationThreshold*100))
	}
	if outcome.LatencyChange > d.latencyLimitMS {
		reasons = append(reasons, fmt.Sprintf("Latency increased by %.0fms", outcome.LatencyChange))
	}
	if outcome.RiskChange > d.riskLimit {
		reasons = append(reasons, fmt.Sprintf("Risk increased by %.1f%%", outcome.RiskChange*100))
	}
	if len(outcome.UnexpectedEffects) > 0 {
		reasons = append(reasons, fmt.Sprintf(
			"Unexpected effects detected: %s", strings.Join(outcome.UnexpectedEffects, ", ")))
	}

	if len(reasons) == 0 {
		return false, ""
	}
	reason := strings.Join(reasons, "; ")
	d.log.Warn("degradation detected", "intervention_id", outcome.InterventionID, "reason", reason)
	return true, reason
}

// Severity grades a deviation from the expected success-rate change.
func (d *ConsequenceDetector) Severity(outcome core.OutcomeMeasurement, expectedSRChange float64) string {
	switch {
	case outcome.SuccessRateChange < -d.degradationThreshold:
		return "critical"
	case len(outcome.UnexpectedEffects) > 0:
		return "moderate"
	case abs(outcome.SuccessRateChange-expectedSRChange) > 0.05:
		return "minor"
	default:
		return "none"
	}
}
