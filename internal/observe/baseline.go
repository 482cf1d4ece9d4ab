package observe

import (
	"log/slog"
	"math"

	"github.com/payops/sentinel/internal/core"
)

// Metric names accepted by RollingBaseline.
const (
	MetricSuccessRate = "success_rate"
	MetricLatency     = "latency"
	MetricRetryCount  = "retry_count"
)

// Std floors keep z-scores finite on flat baselines.
const (
	minSuccessStd = 0.01
	minLatencyStd = 10.0
	minRetryStd   = 0.1
)

// readySampleCount is how many folds a baseline needs before detectors
// trust it.
const readySampleCount = 3

// DefaultAlpha is the EWMA smoothing factor.
const DefaultAlpha = 0.2

// RollingBaseline tracks EWMA mean and variance of one dimension's
// success rate, latency and retry count.
type RollingBaseline struct {
	Dimension string `json:"dimension"`

	SuccessRateEWMA float64 `json:"success_rate_ewma"`
	LatencyEWMA     float64 `json:"latency_ewma"`
	RetryCountEWMA  float64 `json:"retry_count_ewma"`

	SuccessRateVariance float64 `json:"success_rate_variance"`
	LatencyVariance     float64 `json:"latency_variance"`
	RetryCountVariance  float64 `json:"retry_count_variance"`

	SampleCount int     `json:"sample_count"`
	LastUpdated int64   `json:"last_updated"`
	Alpha       float64 `json:"alpha"`
}

// NewRollingBaseline seeds a baseline with the nominal priors.
func NewRollingBaseline(dimension string, alpha float64) *RollingBaseline {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &RollingBaseline{
		Dimension:           dimension,
		SuccessRateEWMA:     0.95,
		LatencyEWMA:         200.0,
		RetryCountEWMA:      0.5,
		SuccessRateVariance: 0.0025,
		LatencyVariance:     2500.0,
		RetryCountVariance:  0.25,
		Alpha:               alpha,
	}
}

// Update folds one window observation into the baseline. The first
// sample replaces the priors outright.
func (b *RollingBaseline) Update(successRate, latency, retryCount float64, timestamp int64) {
	if b.SampleCount == 0 {
		b.SuccessRateEWMA = successRate
		b.LatencyEWMA = latency
		b.RetryCountEWMA = retryCount
	} else {
		a := b.Alpha
		b.SuccessRateEWMA = a*successRate + (1-a)*b.SuccessRateEWMA
		b.LatencyEWMA = a*latency + (1-a)*b.LatencyEWMA
		b.RetryCountEWMA = a*retryCount + (1-a)*b.RetryCountEWMA

		// variance uses the freshly updated mean
		b.SuccessRateVariance = a*sq(successRate-b.SuccessRateEWMA) + (1-a)*b.SuccessRateVariance
		b.LatencyVariance = a*sq(latency-b.LatencyEWMA) + (1-a)*b.LatencyVariance
		b.RetryCountVariance = a*sq(retryCount-b.RetryCountEWMA) + (1-a)*b.RetryCountVariance
	}
	b.SampleCount++
	b.LastUpdated = timestamp
}

// Ready reports whether enough samples accumulated for detection.
func (b *RollingBaseline) Ready() bool {
	return b.SampleCount >= readySampleCount
}

// Std returns the floored standard deviation for a metric.
func (b *RollingBaseline) Std(metric string) float64 {
	switch metric {
	case MetricSuccessRate:
		return math.Max(math.Sqrt(b.SuccessRateVariance), minSuccessStd)
	case MetricLatency:
		return math.Max(math.Sqrt(b.LatencyVariance), minLatencyStd)
	case MetricRetryCount:
		return math.Max(math.Sqrt(b.RetryCountVariance), minRetryStd)
	}
	return 1.0
}

// Mean returns the EWMA mean for a metric.
func (b *RollingBaseline) Mean(metric string) float64 {
	switch metric {
	case MetricSuccessRate:
		return b.SuccessRateEWMA
	case MetricLatency:
		return b.LatencyEWMA
	case MetricRetryCount:
		return b.RetryCountEWMA
	}
	return 0
}

// ZScore is the absolute deviation of value from the metric's mean in
// floored standard deviations.
func (b *RollingBaseline) ZScore(value float64, metric string) float64 {
	return math.Abs(value-b.Mean(metric)) / b.Std(metric)
}

func sq(v float64) float64 { return v * v }

// BaselineManager keeps rolling baselines per issuer, per method and
// globally.
type BaselineManager struct {
	alpha     float64
	log       *slog.Logger
	baselines map[string]*RollingBaseline
}

// NewBaselineManager builds a manager with the given EWMA alpha.
func NewBaselineManager(alpha float64, log *slog.Logger) *BaselineManager {
	if log == nil {
		log = slog.Default()
	}
	return &BaselineManager{
		alpha:     alpha,
		log:       log,
		baselines: make(map[string]*RollingBaseline),
	}
}

// UpdateAll folds a transaction batch into the issuer, method and
// global baselines.
func (m *BaselineManager) UpdateAll(txns []core.Transaction, timestamp int64) {
	if len(txns) == 0 {
		return
	}
	byIssuer := make(map[string][]core.Transaction)
	byMethod := make(map[string][]core.Transaction)
	for _, t := range txns {
		ik := core.IssuerDimension(t.Issuer)
		mk := core.MethodDimension(t.Method)
		byIssuer[ik] = append(byIssuer[ik], t)
		byMethod[mk] = append(byMethod[mk], t)
	}
	for dim, group := range byIssuer {
		m.updateDimension(dim, group, timestamp)
	}
	for dim, group := range byMethod {
		m.updateDimension(dim, group, timestamp)
	}
	m.updateDimension(core.DimensionGlobal, txns, timestamp)
}

func (m *BaselineManager) updateDimension(dim string, txns []core.Transaction, timestamp int64) {
	if len(txns) == 0 {
		return
	}
	var success, latSum, retrySum float64
	for _, t := range txns {
		if t.Outcome == core.OutcomeSuccess {
			success++
		}
		latSum += float64(t.LatencyMS)
		retrySum += float64(t.RetryCount)
	}
	n := float64(len(txns))

	b, ok := m.baselines[dim]
	if !ok {
		b = NewRollingBaseline(dim, m.alpha)
		m.baselines[dim] = b
	}
	b.Update(success/n, latSum/n, retrySum/n, timestamp)
	m.log.Debug("baseline updated",
		"dimension", dim, "success_ewma", b.SuccessRateEWMA,
		"latency_ewma", b.LatencyEWMA, "samples", b.SampleCount)
}

// Baseline returns the rolling baseline for a dimension, nil when none
// exists yet.
func (m *BaselineManager) Baseline(dim string) *RollingBaseline {
	return m.baselines[dim]
}

// Dimensions lists every dimension with a baseline.
func (m *BaselineManager) Dimensions() []string {
	out := make([]string, 0, len(m.baselines))
	for dim := range m.baselines {
		out = append(out, dim)
	}
	return out
}
