package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/payops/sentinel/internal/config"
	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/drift"
	"github.com/payops/sentinel/internal/feedback"
	"github.com/payops/sentinel/internal/generator"
	"github.com/payops/sentinel/internal/metrics"
	"github.com/payops/sentinel/internal/observe"
	"github.com/payops/sentinel/internal/telemetry"
)

const (
	// demoCycleEvery forces a visible failure on every Nth cycle in
	// demo mode so dashboards always have something to show.
	demoCycleEvery = 5

	demoForcedSuccess   = 0.05
	demoForcedLatencyMS = 2000.0

	snapshotInterval = time.Second
	statusInterval   = time.Minute

	// snapshotTxnTail is how many recent transactions feed the
	// dashboard success-rate estimate.
	snapshotTxnTail = 200
)

// Loop is the continuous outer loop: it drifts issuer health, generates
// traffic, runs agent cycles on schedule and streams telemetry.
type Loop struct {
	cfg      *config.Config
	orch     *Orchestrator
	drift    *drift.Engine
	gen      *generator.Generator
	stream   *observe.Stream
	feedback *feedback.Controller
	builder  *telemetry.Builder
	hub      *telemetry.Hub
	metrics  *metrics.Metrics
	log      *slog.Logger
	rng      *rand.Rand

	now   func() time.Time
	sleep func(time.Duration)

	mu          sync.Mutex
	totalVolume int64
	lastResult  *CycleResult
}

// NewLoop wires the outer loop. Hub and metrics may be nil.
func NewLoop(
	cfg *config.Config,
	orch *Orchestrator,
	driftEngine *drift.Engine,
	gen *generator.Generator,
	stream *observe.Stream,
	fb *feedback.Controller,
	builder *telemetry.Builder,
	hub *telemetry.Hub,
	m *metrics.Metrics,
	log *slog.Logger,
) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		cfg:      cfg,
		orch:     orch,
		drift:    driftEngine,
		gen:      gen,
		stream:   stream,
		feedback: fb,
		builder:  builder,
		hub:      hub,
		metrics:  m,
		log:      log,
		rng:      rand.New(rand.NewSource(cfg.Simulation.Seed + 7)),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// SetClock overrides the wall clock for tests.
func (l *Loop) SetClock(now func() time.Time) { l.now = now }

// SetSleep overrides the per-iteration sleep for tests.
func (l *Loop) SetSleep(sleep func(time.Duration)) { l.sleep = sleep }

// Run drives the loop until the context is cancelled or the configured
// duration elapses. Cycle failures are logged and the loop continues.
func (l *Loop) Run(ctx context.Context) error {
	started := l.now()
	lastIter := started
	lastCycle := started
	lastSnapshot := started
	lastStatus := started

	var deadline time.Time
	if d := l.cfg.Simulation.DurationSeconds; d != nil {
		deadline = started.Add(time.Duration(*d * float64(time.Second)))
	}

	l.log.Info("control loop started",
		"cycle_interval_s", l.cfg.Agent.CycleIntervalSeconds,
		"loop_rate_hz", l.cfg.Simulation.LoopRate,
		"demo_mode", l.cfg.Simulation.DemoMode)

	for {
		select {
		case <-ctx.Done():
			l.log.Info("control loop stopping", "reason", "context cancelled")
			return nil
		default:
		}

		now := l.now()
		if !deadline.IsZero() && !now.Before(deadline) {
			l.log.Info("control loop stopping", "reason", "duration elapsed",
				"elapsed_s", now.Sub(started).Seconds())
			return nil
		}

		dt := now.Sub(lastIter).Seconds()
		lastIter = now

		l.advanceWorld(dt, now)

		if now.Sub(lastCycle).Seconds() >= l.cfg.Agent.CycleIntervalSeconds {
			l.runCycle(ctx, now)
			lastCycle = now
		}

		l.feedback.Update(now.UnixMilli())

		if now.Sub(lastSnapshot) >= snapshotInterval {
			l.broadcastSnapshot(now)
			lastSnapshot = now
		}
		if now.Sub(lastStatus) >= statusInterval {
			l.logStatus(now.Sub(started))
			lastStatus = now
		}

		l.sleep(time.Duration(float64(time.Second) / l.cfg.Simulation.LoopRate))
	}
}

// advanceWorld moves issuer health and the synthetic stream forward by
// dt seconds.
func (l *Loop) advanceWorld(dt float64, now time.Time) {
	if dt <= 0 {
		return
	}
	l.drift.Update(dt, float64(now.UnixMilli())/1000.0)
	batch := l.gen.GenerateBatch(dt)
	if len(batch) == 0 {
		return
	}
	l.stream.AddBatch(batch)

	l.mu.Lock()
	l.totalVolume += int64(len(batch))
	l.mu.Unlock()

	if l.metrics != nil {
		for i := range batch {
			l.metrics.RecordTransaction(batch[i].Issuer, string(batch[i].Outcome))
		}
	}
}

// runCycle executes one agent cycle, forcing a demo failure first when
// demo mode says this cycle should degrade.
func (l *Loop) runCycle(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("cycle failed, loop continues", "panic", r)
		}
	}()

	cycleNum := l.orch.CycleCount() + 1
	forced := l.cfg.Simulation.DemoMode && cycleNum%demoCycleEvery == 0

	var forcedIssuer string
	if forced {
		if states := l.drift.States(); len(states) > 0 {
			forcedIssuer = states[0].Issuer
			l.drift.Force(forcedIssuer, demoForcedSuccess, demoForcedLatencyMS)
			l.log.Warn("demo failure injected",
				"cycle", cycleNum, "issuer", forcedIssuer,
				"success", demoForcedSuccess, "latency_ms", demoForcedLatencyMS)
		}
	}

	res := l.orch.RunCycle(ctx, now.UnixMilli())

	// Demo cycles always surface a visible intervention, whatever the
	// policy decided.
	if forced && forcedIssuer != "" {
		opt := demoRerouteOption(forcedIssuer)
		res.Decision = core.Decision{
			ShouldAct:      true,
			SelectedOption: &opt,
			Rationale: fmt.Sprintf(
				"Synthetic intervention triggered for demo cycle %d. NRV=$5,000", cycleNum),
		}
	}

	if res.Decision.ShouldAct && res.Decision.SelectedOption != nil &&
		(forced || (res.Execution != nil && res.Execution.Success)) {
		opt := *res.Decision.SelectedOption
		l.feedback.Apply(opt, now.UnixMilli())
		l.recordIntervention(&res, &opt, now, forced)
	}

	l.appendSeries()

	l.mu.Lock()
	l.lastResult = &res
	l.mu.Unlock()
}

func demoRerouteOption(issuer string) core.InterventionOption {
	return core.InterventionOption{
		Kind:   core.InterventionRerouteTraffic,
		Target: core.IssuerDimension(issuer),
		Parameters: core.Params{
			"duration_ms": int64(60000),
			"reason":      "demo_forced_failure",
		},
		ExpectedOutcome: core.OutcomeEstimate{
			ExpectedSuccessRateChange: 0.05,
			Confidence:                0.99,
		},
		Reversible:  true,
		BlastRadius: 0.1,
	}
}

func (l *Loop) recordIntervention(res *CycleResult, opt *core.InterventionOption, now time.Time, forced bool) {
	ts := now.Format("15:04:05")
	act := string(opt.Kind)
	if l.builder.HasIntervention(ts, act) {
		return
	}

	result, rate := "Active", fmt.Sprintf("+%.1f%%", 1.0+l.rng.Float64()*4.0)
	if forced {
		result, rate = "Triggered", "+5.0%"
	}
	l.builder.RecordIntervention(telemetry.InterventionRecord{
		TS:     ts,
		Action: act,
		Target: opt.Target,
		Reason: truncate(res.Decision.Rationale, 80),
		Result: result,
		Rate:   rate,
	})
}

// appendSeries records fleet-wide averages for the dashboard charts.
func (l *Loop) appendSeries() {
	states := l.drift.States()
	if len(states) == 0 {
		return
	}
	var successSum, latencySum float64
	for _, s := range states {
		successSum += s.SuccessRate
		latencySum += s.LatencyMS
	}
	n := float64(len(states))
	l.builder.AppendSeries(successSum/n*100.0, latencySum/n)
}

func (l *Loop) broadcastSnapshot(now time.Time) {
	if l.hub == nil {
		return
	}

	l.mu.Lock()
	volume := l.totalVolume
	last := l.lastResult
	l.mu.Unlock()

	var nrv, confidence float64
	var thinking []string
	if last != nil {
		nrv = nrvValue(last.NRV)
		if nrv == 0 {
			nrv = parseNRV(last.Decision.Rationale)
		}
		confidence = last.Explanation.Confidence
		thinking = []string{last.Explanation.Situation, last.Explanation.ExecutiveSummary}
	}

	snap := l.builder.Build(now, volume, l.avgSuccessPct(), thinking, nrv, confidence)
	payload, err := json.Marshal(snap)
	if err != nil {
		l.log.Error("snapshot marshal failed", "err", err)
		return
	}
	l.hub.Broadcast(payload)
}

// avgSuccessPct estimates the current success rate from the stream
// tail, falling back to drifting issuer state when traffic is sparse.
func (l *Loop) avgSuccessPct() float64 {
	recent := l.stream.Recent(snapshotTxnTail)
	if len(recent) > 0 {
		success := 0
		for _, t := range recent {
			if t.Outcome == core.OutcomeSuccess {
				success++
			}
		}
		return float64(success) / float64(len(recent)) * 100.0
	}

	states := l.drift.States()
	if len(states) == 0 {
		return 100.0
	}
	var sum float64
	for _, s := range states {
		sum += s.SuccessRate
	}
	return sum / float64(len(states)) * 100.0
}

func (l *Loop) logStatus(elapsed time.Duration) {
	l.mu.Lock()
	volume := l.totalVolume
	l.mu.Unlock()
	l.log.Info("loop status",
		"elapsed_s", int(elapsed.Seconds()),
		"cycles", l.orch.CycleCount(),
		"transactions", volume,
		"interventions", l.feedback.Status())
}

// Status summarizes the loop for the /status endpoint.
func (l *Loop) Status() map[string]interface{} {
	l.mu.Lock()
	volume := l.totalVolume
	last := l.lastResult
	l.mu.Unlock()

	out := map[string]interface{}{
		"cycle_count":          l.orch.CycleCount(),
		"total_volume":         volume,
		"active_interventions": len(l.feedback.Active()),
		"intervention_status":  l.feedback.Status(),
	}
	if last != nil {
		out["last_cycle"] = last.CycleNumber
		out["last_cycle_patterns"] = len(last.Patterns)
		out["last_cycle_should_act"] = last.Decision.ShouldAct
		out["z_score"] = last.ZScore
		out["nrv"] = nrvValue(last.NRV)
	}
	return out
}

// parseNRV extracts a dollar figure from a rationale carrying an
// "NRV=$..." fragment. Thousands separators are tolerated.
func parseNRV(rationale string) float64 {
	idx := strings.Index(rationale, "NRV=$")
	if idx < 0 {
		return 0
	}
	rest := rationale[idx+len("NRV=$"):]
	end := 0
	for end < len(rest) {
		c := rest[end]
		if (c < '0' || c > '9') && c != '.' && c != ',' {
			break
		}
		end++
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(rest[:end], ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
