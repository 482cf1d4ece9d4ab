// Package reason turns windowed observations into detected patterns,
// root-cause hypotheses and an updated belief state.
package reason

import (
	"log/slog"

	"github.com/payops/sentinel/internal/core"
)

// DefaultMinSampleSize is the failed-transaction count at which the
// sample-size factor saturates.
const DefaultMinSampleSize = 50

// Consistency dimensions for the clustering factor.
const (
	ConsistencyByErrorCode = "error_code"
	ConsistencyByIssuer    = "issuer"
)

// Confidence factor weights.
const (
	weightSampleSize  = 0.3
	weightConsistency = 0.4
	weightBaseline    = 0.3
)

// ConfidenceBreakdown carries the combined score and its factors.
type ConfidenceBreakdown struct {
	Confidence       float64 `json:"confidence"`
	SampleScore      float64 `json:"sample_score"`
	ConsistencyScore float64 `json:"consistency_score"`
	BaselineScore    float64 `json:"baseline_score"`
	ZScore           float64 `json:"z_score"`
}

// ConfidenceScorer combines sample size, signal consistency and
// baseline deviation into one score:
// confidence = 0.3*S + 0.4*C + 0.3*B.
type ConfidenceScorer struct {
	minSampleSize int
	log           *slog.Logger
}

// NewConfidenceScorer builds a scorer; minSampleSize <= 0 uses the
// default.
func NewConfidenceScorer(minSampleSize int, log *slog.Logger) *ConfidenceScorer {
	if minSampleSize <= 0 {
		minSampleSize = DefaultMinSampleSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &ConfidenceScorer{minSampleSize: minSampleSize, log: log}
}

// SampleSizeScore is S = min(1, failed/minSampleSize).
func (s *ConfidenceScorer) SampleSizeScore(failed int) float64 {
	v := float64(failed) / float64(s.minSampleSize)
	if v > 1 {
		v = 1
	}
	return v
}

// SignalConsistencyScore is C: the share of failed transactions whose
// clustering dimension takes the modal value.
func (s *ConfidenceScorer) SignalConsistencyScore(txns []core.Transaction, dimension string) float64 {
	counts := make(map[string]int)
	failed := 0
	for _, t := range txns {
		if !t.Outcome.Failed() {
			continue
		}
		failed++
		var v string
		switch dimension {
		case ConsistencyByIssuer:
			v = t.Issuer
		default:
			v = t.ErrorCode
		}
		if v != "" {
			counts[v]++
		}
	}
	if failed == 0 || len(counts) == 0 {
		return 0
	}
	modal := 0
	for _, c := range counts {
		if c > modal {
			modal = c
		}
	}
	return float64(modal) / float64(failed)
}

// ZScore is the signed deviation (current-mean)/std, 0 when std is 0.
func (s *ConfidenceScorer) ZScore(currentFailureRate, historicalMean, historicalStd float64) float64 {
	if historicalStd == 0 {
		return 0
	}
	return (currentFailureRate - historicalMean) / historicalStd
}

// BaselineScore maps a z-score onto [0,1]: 0 below 1 sigma, 1 above 3,
// linear in between.
func (s *ConfidenceScorer) BaselineScore(z float64) float64 {
	switch {
	case z > 3:
		return 1
	case z < 1:
		return 0
	}
	return (z - 1) / 2
}

// Score computes the full breakdown for a failure cluster.
func (s *ConfidenceScorer) Score(
	failed int,
	txns []core.Transaction,
	currentFailureRate, historicalMean, historicalStd float64,
	dimension string,
) ConfidenceBreakdown {
	b := ConfidenceBreakdown{
		SampleScore:      s.SampleSizeScore(failed),
		ConsistencyScore: s.SignalConsistencyScore(txns, dimension),
		ZScore:           s.ZScore(currentFailureRate, historicalMean, historicalStd),
	}
	b.BaselineScore = s.BaselineScore(b.ZScore)
	b.Confidence = weightSampleSize*b.SampleScore +
		weightConsistency*b.ConsistencyScore +
		weightBaseline*b.BaselineScore
	s.log.Debug("confidence scored",
		"confidence", b.Confidence, "sample", b.SampleScore,
		"consistency", b.ConsistencyScore, "baseline", b.BaselineScore, "z", b.ZScore)
	return b
}
