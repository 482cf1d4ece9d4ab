package memory

import (
	"fmt"
	"log/slog"
)

// Playbook is an operational recipe for handling an incident.
type Playbook struct {
	RecommendedAction          string   `json:"recommended_action"`
	Confidence                 float64  `json:"confidence"`
	Reasoning                  string   `json:"reasoning"`
	ExpectedOutcome            string   `json:"expected_outcome"`
	EstimatedResolutionMinutes int      `json:"estimated_resolution_minutes"`
	KeyLearningsApplied        []string `json:"key_learnings_applied"`
	RiskFactors                []string `json:"risk_factors"`
	RollbackPlan               string   `json:"rollback_plan"`
	MonitoringMetrics          []string `json:"monitoring_metrics"`
}

// PlaybookRetriever derives a playbook for the current incident from
// historical precedent.
type PlaybookRetriever interface {
	Retrieve(sig Signature, similar []Match, telemetry map[string]interface{}) Playbook
}

// LocalRetriever derives playbooks from the similarity matches alone,
// with no external service. It is the default retriever.
type LocalRetriever struct {
	log *slog.Logger
}

// NewLocalRetriever builds a retriever.
func NewLocalRetriever(log *slog.Logger) *LocalRetriever {
	if log == nil {
		log = slog.Default()
	}
	return &LocalRetriever{log: log}
}

// Retrieve builds a playbook from the best historical match, or a
// conservative alert-ops playbook when nothing matches.
func (r *LocalRetriever) Retrieve(sig Signature, similar []Match, telemetry map[string]interface{}) Playbook {
	if len(similar) == 0 {
		r.log.Info("no similar incidents, defaulting to alert_ops",
			"error_code", sig.ErrorCode, "issuer", sig.Issuer)
		return Playbook{
			RecommendedAction:          "alert_ops",
			Confidence:                 0.3,
			Reasoning:                  "No similar historical incidents found. Alerting operations team for manual review.",
			ExpectedOutcome:            "Operations team will investigate and determine appropriate action",
			EstimatedResolutionMinutes: 30,
			KeyLearningsApplied:        []string{},
			RiskFactors:                []string{"Unknown incident pattern", "No historical precedent"},
			RollbackPlan:               "N/A - observation only",
			MonitoringMetrics:          []string{"failure_rate", "latency_p95", "retry_count"},
		}
	}

	best := similar[0].Incident
	r.log.Info("playbook derived from precedent",
		"incident_id", best.IncidentID, "similarity", similar[0].Similarity)
	return Playbook{
		RecommendedAction:          best.InterventionTaken,
		Confidence:                 0.7,
		Reasoning:                  fmt.Sprintf("Based on similar incident %s: %s", best.IncidentID, best.Description),
		ExpectedOutcome:            best.Outcome,
		EstimatedResolutionMinutes: best.ResolutionTimeMinutes,
		KeyLearningsApplied:        best.LessonsLearned,
		RiskFactors:                []string{"Historical precedent may not match current conditions"},
		RollbackPlan:               "Monitor for 5 minutes, rollback if no improvement",
		MonitoringMetrics:          []string{"failure_rate", "latency_p95", "success_rate"},
	}
}
