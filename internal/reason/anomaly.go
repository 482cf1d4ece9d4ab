package reason

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/observe"
)

// minDetectionSample is the smallest window a detector will judge.
const minDetectionSample = 10

// latencySpikeFactor flags p95 latency this far above the rolling mean.
const latencySpikeFactor = 1.5

// AnomalyDetector finds statistical deviations from rolling baselines.
type AnomalyDetector struct {
	threshold float64
	scorer    *ConfidenceScorer
	log       *slog.Logger
}

// NewAnomalyDetector builds a detector firing at the given z-score
// threshold.
func NewAnomalyDetector(threshold float64, log *slog.Logger) *AnomalyDetector {
	if log == nil {
		log = slog.Default()
	}
	return &AnomalyDetector{
		threshold: threshold,
		scorer:    NewConfidenceScorer(DefaultMinSampleSize, log),
		log:       log,
	}
}

// DetectSuccessRateAnomaly compares the window's success rate against
// the dimension's rolling baseline. Severity is the multi-factor
// confidence when transactions are supplied, otherwise a scaled
// z-score; the raw z-score always rides along in the evidence.
func (d *AnomalyDetector) DetectSuccessRateAnomaly(
	stats core.AggregateStats,
	baseline *observe.RollingBaseline,
	dimension string,
	timestamp int64,
	txns []core.Transaction,
) *core.DetectedPattern {
	if stats.TotalTransactions < minDetectionSample || baseline == nil {
		return nil
	}

	currentRate := stats.SuccessRate
	baselineRate := baseline.SuccessRateEWMA
	baselineStd := baseline.Std(observe.MetricSuccessRate)
	z := math.Abs(currentRate-baselineRate) / baselineStd
	if z < d.threshold {
		return nil
	}

	deviation := math.Abs(currentRate - baselineRate)
	evidence := []core.Evidence{
		{
			Type: core.EvidenceStatistical,
			Description: fmt.Sprintf("Success rate deviation: %.2f%% (current=%.2f%%, baseline=%.2f%%)",
				deviation*100, currentRate*100, baselineRate*100),
			Value:     deviation,
			Timestamp: timestamp,
			Source:    "anomaly_detector",
		},
		{
			Type:        core.EvidenceStatistical,
			Description: fmt.Sprintf("Z-score %.2f against threshold %.1f", z, d.threshold),
			Value:       z,
			Timestamp:   timestamp,
			Source:      "z_score",
		},
		{
			Type: core.EvidenceStatistical,
			Description: fmt.Sprintf("Baseline mean=%.3f std=%.3f samples=%d",
				baselineRate, baselineStd, baseline.SampleCount),
			Value:     baselineStd,
			Timestamp: timestamp,
			Source:    "rolling_baseline",
		},
	}

	var severity float64
	if len(txns) > 0 {
		failed := int(float64(stats.TotalTransactions) * (1 - currentRate))
		breakdown := d.scorer.Score(
			failed, txns,
			1-currentRate, 1-baselineRate, baselineStd,
			ConsistencyByErrorCode,
		)
		severity = breakdown.Confidence
		evidence = append(evidence, core.Evidence{
			Type: core.EvidenceStatistical,
			Description: fmt.Sprintf("Confidence %.3f (S=%.2f, C=%.2f, B=%.2f)",
				breakdown.Confidence, breakdown.SampleScore,
				breakdown.ConsistencyScore, breakdown.BaselineScore),
			Value:     breakdown.Confidence,
			Timestamp: timestamp,
			Source:    "confidence_scorer",
		})
	} else {
		severity = math.Min(z/(d.threshold*2), 1.0)
	}

	kind := core.PatternLocalizedFailure
	if core.ParseDimension(dimension).IsIssuer() {
		kind = core.PatternIssuerDegradation
	}

	d.log.Warn("success rate anomaly",
		"dimension", dimension, "z", z,
		"current", currentRate, "baseline", baselineRate)

	return &core.DetectedPattern{
		Kind:       kind,
		Dimension:  dimension,
		Severity:   severity,
		Evidence:   evidence,
		DetectedAt: timestamp,
	}
}

// DetectLatencyAnomaly flags a p95 latency spike against the rolling
// latency mean.
func (d *AnomalyDetector) DetectLatencyAnomaly(
	stats core.AggregateStats,
	baseline *observe.RollingBaseline,
	dimension string,
	timestamp int64,
) *core.DetectedPattern {
	if stats.TotalTransactions < minDetectionSample || baseline == nil {
		return nil
	}
	baseLatency := baseline.LatencyEWMA
	if baseLatency <= 0 {
		return nil
	}
	currentP95 := stats.P95LatencyMS
	if currentP95 <= baseLatency*latencySpikeFactor {
		return nil
	}

	severity := math.Min((currentP95/baseLatency-1)/2, 1.0)
	d.log.Warn("latency anomaly",
		"dimension", dimension, "p95", currentP95, "baseline", baseLatency)

	return &core.DetectedPattern{
		Kind:      core.PatternLatencySpike,
		Dimension: dimension,
		Severity:  severity,
		Evidence: []core.Evidence{{
			Type: core.EvidenceStatistical,
			Description: fmt.Sprintf("P95 latency spike: %.0fms vs rolling mean %.0fms",
				currentP95, baseLatency),
			Value:     currentP95 - baseLatency,
			Timestamp: timestamp,
			Source:    "anomaly_detector",
		}},
		DetectedAt: timestamp,
	}
}

// Detect runs every anomaly check for one dimension.
func (d *AnomalyDetector) Detect(
	stats core.AggregateStats,
	baseline *observe.RollingBaseline,
	dimension string,
	timestamp int64,
	txns []core.Transaction,
) []core.DetectedPattern {
	var out []core.DetectedPattern
	if p := d.DetectSuccessRateAnomaly(stats, baseline, dimension, timestamp, txns); p != nil {
		out = append(out, *p)
	}
	if p := d.DetectLatencyAnomaly(stats, baseline, dimension, timestamp); p != nil {
		out = append(out, *p)
	}
	return out
}
