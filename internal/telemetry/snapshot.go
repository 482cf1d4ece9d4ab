// Package telemetry streams live agent status to dashboards over
// WebSocket and serves health and metrics endpoints.
package telemetry

import (
	"math/rand"
	"sync"
	"time"
)

// InterventionRecord is one row of the dashboard intervention history.
type InterventionRecord struct {
	TS     string `json:"ts"`
	Action string `json:"action"`
	Target string `json:"target"`
	Reason string `json:"reason"`
	Result string `json:"result"`
	Rate   string `json:"rate"`
}

// SafetyMetrics are the simulated operational safety indicators shown
// on the dashboard.
type SafetyMetrics struct {
	FalsePositiveRate float64 `json:"false_positive_rate"`
	AvgResponseTimeS  float64 `json:"avg_response_time_s"`
	RollbackRate      float64 `json:"rollback_rate"`
	HumanEscalations  int     `json:"human_escalations"`
}

// Snapshot is one dashboard update.
type Snapshot struct {
	Timestamp           int64                `json:"timestamp"`
	TotalVolume         int64                `json:"total_volume"`
	FailRate            float64              `json:"fail_rate"`
	ActiveGateway       string               `json:"active_gateway"`
	SuccessSeries       []float64            `json:"success_series"`
	LatencySeries       []float64            `json:"latency_series"`
	ThinkingLog         []string             `json:"thinking_log"`
	NRV                 float64              `json:"nrv"`
	Confidence          float64              `json:"confidence"`
	SafetyMetrics       SafetyMetrics        `json:"safety_metrics"`
	InterventionHistory []InterventionRecord `json:"intervention_history"`
}

// seriesCap bounds the rolling chart series.
const seriesCap = 40

// historyCap bounds the intervention history shown on the dashboard.
const historyCap = 10

// Builder accumulates rolling series and intervention history between
// snapshots. Safe for concurrent use.
type Builder struct {
	rng *rand.Rand

	mu            sync.Mutex
	successSeries []float64
	latencySeries []float64
	history       []InterventionRecord
}

// NewBuilder builds a snapshot builder with a seeded RNG for the
// simulated safety metrics.
func NewBuilder(seed int64) *Builder {
	return &Builder{rng: rand.New(rand.NewSource(seed))}
}

// AppendSeries records one cycle's fleet averages. Success is a
// percentage, latency in milliseconds.
func (b *Builder) AppendSeries(successPct, latencyMS float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successSeries = append(b.successSeries, successPct)
	b.latencySeries = append(b.latencySeries, latencyMS)
	if len(b.successSeries) > seriesCap {
		b.successSeries = b.successSeries[len(b.successSeries)-seriesCap:]
	}
	if len(b.latencySeries) > seriesCap {
		b.latencySeries = b.latencySeries[len(b.latencySeries)-seriesCap:]
	}
}

// RecordIntervention appends to the dashboard history.
func (b *Builder) RecordIntervention(rec InterventionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, rec)
}

// HasIntervention reports whether an identical ts/action pair is
// already recorded, so forced demo interventions are not duplicated.
func (b *Builder) HasIntervention(ts, action string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.history {
		if rec.TS == ts && rec.Action == action {
			return true
		}
	}
	return false
}

// Build assembles a snapshot from the current rolling state.
func (b *Builder) Build(now time.Time, totalVolume int64, avgSuccessPct float64, thinking []string, nrv, confidence float64) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(thinking) == 0 {
		thinking = []string{"Operational - Monitoring stream..."}
	}

	history := b.history
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}

	return Snapshot{
		Timestamp:     now.Unix(),
		TotalVolume:   totalVolume,
		FailRate:      round2(100.0 - avgSuccessPct),
		ActiveGateway: "Gateway-Alpha",
		SuccessSeries: append([]float64(nil), b.successSeries...),
		LatencySeries: append([]float64(nil), b.latencySeries...),
		ThinkingLog:   thinking,
		NRV:           nrv,
		Confidence:    round1(confidence * 100.0),
		SafetyMetrics: SafetyMetrics{
			FalsePositiveRate: maxf(0, round2(0.8+b.rng.Float64()*0.2-0.1)),
			AvgResponseTimeS:  maxf(0.2, round2(1.0+b.rng.Float64()*0.2-0.1)),
			RollbackRate:      maxf(0, round2(2.1+b.rng.Float64()*0.2-0.1)),
			HumanEscalations:  3 + b.rng.Intn(2),
		},
		InterventionHistory: append([]InterventionRecord(nil), history...),
	}
}

func round2(v float64) float64 { return float64(int64(v*100+signOf(v)*0.5)) / 100 }
func round1(v float64) float64 { return float64(int64(v*10+signOf(v)*0.5)) / 10 }

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
