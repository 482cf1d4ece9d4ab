package reason

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/payops/sentinel/internal/core"
)

// Pattern detector thresholds.
const (
	retryStormAvgThreshold  = 2.0
	retryStormHighShare     = 0.20
	retryStormHighCount     = 3
	retryStormMinSample     = 5
	issuerFailureThreshold  = 0.20
	issuerMinSample         = 5
	methodFailureThreshold  = 0.40
	methodMinSample         = 10
	dimensionSystem         = "system"
)

// PatternDetector finds behavioral patterns (as opposed to the purely
// statistical deviations the anomaly detector covers).
type PatternDetector struct {
	log *slog.Logger
}

// NewPatternDetector builds a detector.
func NewPatternDetector(log *slog.Logger) *PatternDetector {
	if log == nil {
		log = slog.Default()
	}
	return &PatternDetector{log: log}
}

// DetectRetryStorm fires when average retries exceed the threshold or
// more than 20% of transactions carry 3+ retries.
func (d *PatternDetector) DetectRetryStorm(txns []core.Transaction, timestamp int64) []core.DetectedPattern {
	if len(txns) < retryStormMinSample {
		return nil
	}
	var retrySum float64
	high := 0
	for _, t := range txns {
		retrySum += float64(t.RetryCount)
		if t.RetryCount >= retryStormHighCount {
			high++
		}
	}
	avg := retrySum / float64(len(txns))
	highShare := float64(high) / float64(len(txns))
	if avg <= retryStormAvgThreshold && highShare <= retryStormHighShare {
		return nil
	}

	severity := math.Min(math.Max(avg/(retryStormAvgThreshold*2), highShare), 1.0)
	d.log.Info("retry storm detected", "avg_retry", avg, "high_retry_share", highShare)
	return []core.DetectedPattern{{
		Kind:      core.PatternRetryStorm,
		Dimension: dimensionSystem,
		Severity:  severity,
		Evidence: []core.Evidence{{
			Type: core.EvidenceStatistical,
			Description: fmt.Sprintf("Average retry count %.2f, %.1f%% with %d+ retries",
				avg, highShare*100, retryStormHighCount),
			Value:     avg,
			Timestamp: timestamp,
			Source:    "pattern_detector",
		}},
		DetectedAt: timestamp,
	}}
}

// DetectIssuerDegradation flags issuers whose failure rate tops 20%
// with at least 5 observations.
func (d *PatternDetector) DetectIssuerDegradation(txns []core.Transaction, timestamp int64) []core.DetectedPattern {
	if len(txns) < issuerMinSample {
		return nil
	}
	type tally struct{ total, failed int }
	stats := make(map[string]*tally)
	order := make([]string, 0)
	for _, t := range txns {
		s, ok := stats[t.Issuer]
		if !ok {
			s = &tally{}
			stats[t.Issuer] = s
			order = append(order, t.Issuer)
		}
		s.total++
		if t.Outcome != core.OutcomeSuccess {
			s.failed++
		}
	}

	var out []core.DetectedPattern
	for _, issuer := range order {
		s := stats[issuer]
		if s.total < issuerMinSample {
			continue
		}
		rate := float64(s.failed) / float64(s.total)
		if rate <= issuerFailureThreshold {
			continue
		}
		d.log.Info("issuer degradation detected", "issuer", issuer, "failure_rate", rate)
		out = append(out, core.DetectedPattern{
			Kind:      core.PatternIssuerDegradation,
			Dimension: core.IssuerDimension(issuer),
			Severity:  rate,
			Evidence: []core.Evidence{{
				Type: core.EvidenceStatistical,
				Description: fmt.Sprintf("Failure rate %.2f%% (%d/%d transactions)",
					rate*100, s.failed, s.total),
				Value:     rate,
				Timestamp: timestamp,
				Source:    "pattern_detector",
			}},
			DetectedAt: timestamp,
		})
	}
	return out
}

// DetectMethodFatigue flags payment methods failing above 40% with at
// least 10 observations.
func (d *PatternDetector) DetectMethodFatigue(txns []core.Transaction, timestamp int64) []core.DetectedPattern {
	type tally struct{ total, failed int }
	stats := make(map[core.PaymentMethod]*tally)
	order := make([]core.PaymentMethod, 0)
	for _, t := range txns {
		s, ok := stats[t.Method]
		if !ok {
			s = &tally{}
			stats[t.Method] = s
			order = append(order, t.Method)
		}
		s.total++
		if t.Outcome != core.OutcomeSuccess {
			s.failed++
		}
	}

	var out []core.DetectedPattern
	for _, method := range order {
		s := stats[method]
		if s.total < methodMinSample {
			continue
		}
		rate := float64(s.failed) / float64(s.total)
		if rate <= methodFailureThreshold {
			continue
		}
		out = append(out, core.DetectedPattern{
			Kind:      core.PatternMethodFatigue,
			Dimension: core.MethodDimension(method),
			Severity:  rate,
			Evidence: []core.Evidence{{
				Type:        core.EvidenceStatistical,
				Description: fmt.Sprintf("Method failure rate %.2f%%", rate*100),
				Value:       rate,
				Timestamp:   timestamp,
				Source:      "pattern_detector",
			}},
			DetectedAt: timestamp,
		})
	}
	return out
}

// Detect runs every pattern check over the window.
func (d *PatternDetector) Detect(txns []core.Transaction, timestamp int64) []core.DetectedPattern {
	var out []core.DetectedPattern
	out = append(out, d.DetectRetryStorm(txns, timestamp)...)
	out = append(out, d.DetectIssuerDegradation(txns, timestamp)...)
	out = append(out, d.DetectMethodFatigue(txns, timestamp)...)
	return out
}
