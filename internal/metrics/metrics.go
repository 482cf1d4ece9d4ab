// Package metrics exposes the agent's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the control loop.
type Metrics struct {
	// Observation metrics
	TransactionsObserved *prometheus.CounterVec
	IssuerSuccessRate    *prometheus.GaugeVec
	IssuerLatencyP95     *prometheus.GaugeVec

	// Reasoning metrics
	PatternsDetected  *prometheus.CounterVec
	AnomalyZScore     *prometheus.HistogramVec
	BeliefUncertainty prometheus.Gauge

	// Decision metrics
	CycleDuration  prometheus.Histogram
	DecisionsTotal *prometheus.CounterVec
	NRVProjection  prometheus.Gauge

	// Action metrics
	InterventionsTotal  *prometheus.CounterVec
	ActiveInterventions prometheus.Gauge
	RollbacksTotal      *prometheus.CounterVec

	// Learning metrics
	OutcomeAccuracy prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		TransactionsObserved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_transactions_observed_total",
				Help: "Total transactions ingested into the observation window",
			},
			[]string{"issuer", "outcome"}, // outcome: success, soft_fail, hard_fail
		),

		IssuerSuccessRate: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_issuer_success_rate",
				Help: "Windowed success rate per issuer",
			},
			[]string{"issuer"},
		),

		IssuerLatencyP95: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_issuer_latency_p95_ms",
				Help: "Windowed p95 latency per issuer in milliseconds",
			},
			[]string{"issuer"},
		),

		PatternsDetected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_patterns_detected_total",
				Help: "Total behavioral patterns detected",
			},
			[]string{"type", "dimension"},
		),

		AnomalyZScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_anomaly_z_score",
				Help:    "Z-scores of anomalies against rolling baselines",
				Buckets: []float64{1.0, 1.5, 2.0, 2.5, 3.0, 4.0, 5.0, 7.5, 10.0},
			},
			[]string{"metric"}, // metric: success_rate, latency_ms, retry_count
		),

		BeliefUncertainty: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_belief_uncertainty",
				Help: "Current uncertainty level of the belief state",
			},
		),

		CycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_cycle_duration_seconds",
				Help:    "Duration of one observe-reason-decide-act-learn cycle",
				Buckets: prometheus.DefBuckets,
			},
		),

		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_decisions_total",
				Help: "Total decisions by verdict",
			},
			[]string{"verdict"}, // verdict: act, no_action, needs_approval
		),

		NRVProjection: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_nrv_projection",
				Help: "Net recoverable value of the selected option in currency units",
			},
		),

		InterventionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_interventions_total",
				Help: "Total interventions executed or blocked",
			},
			[]string{"type", "status"}, // status: executed, blocked, failed
		),

		ActiveInterventions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_active_interventions",
				Help: "Number of interventions currently shaping traffic",
			},
		),

		RollbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_rollbacks_total",
				Help: "Total intervention rollbacks",
			},
			[]string{"reason"}, // reason: expired, degradation, manual
		),

		OutcomeAccuracy: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_outcome_accuracy",
				Help:    "Prediction accuracy of evaluated interventions",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),
	}
}

// RecordTransaction counts one observed transaction.
func (m *Metrics) RecordTransaction(issuer, outcome string) {
	m.TransactionsObserved.WithLabelValues(issuer, outcome).Inc()
}

// RecordIssuerStats updates per-issuer gauges from windowed stats.
func (m *Metrics) RecordIssuerStats(issuer string, successRate, latencyP95 float64) {
	m.IssuerSuccessRate.WithLabelValues(issuer).Set(successRate)
	m.IssuerLatencyP95.WithLabelValues(issuer).Set(latencyP95)
}

// RecordPattern counts a detected pattern and its z-score when known.
func (m *Metrics) RecordPattern(patternType, dimension, metric string, zScore float64) {
	m.PatternsDetected.WithLabelValues(patternType, dimension).Inc()
	if zScore != 0 {
		m.AnomalyZScore.WithLabelValues(metric).Observe(zScore)
	}
}

// RecordDecision counts a cycle verdict.
func (m *Metrics) RecordDecision(shouldAct, needsApproval bool, nrv float64) {
	verdict := "no_action"
	switch {
	case needsApproval:
		verdict = "needs_approval"
	case shouldAct:
		verdict = "act"
	}
	m.DecisionsTotal.WithLabelValues(verdict).Inc()
	m.NRVProjection.Set(nrv)
}

// RecordIntervention counts an execution attempt.
func (m *Metrics) RecordIntervention(interventionType string, executed bool, errored bool) {
	status := "executed"
	switch {
	case errored:
		status = "failed"
	case !executed:
		status = "blocked"
	}
	m.InterventionsTotal.WithLabelValues(interventionType, status).Inc()
}

// RecordRollback counts a rollback.
func (m *Metrics) RecordRollback(reason string) {
	m.RollbacksTotal.WithLabelValues(reason).Inc()
}
