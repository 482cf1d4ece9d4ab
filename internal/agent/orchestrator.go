// Package agent runs the closed control loop: observe the transaction
// stream, reason about anomalies, decide on an intervention, act
// through the executor and learn from measured outcomes.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/payops/sentinel/internal/action"
	"github.com/payops/sentinel/internal/audit"
	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/decision"
	"github.com/payops/sentinel/internal/events"
	"github.com/payops/sentinel/internal/explain"
	"github.com/payops/sentinel/internal/learning"
	"github.com/payops/sentinel/internal/memory"
	"github.com/payops/sentinel/internal/metrics"
	"github.com/payops/sentinel/internal/observe"
	"github.com/payops/sentinel/internal/reason"
	"github.com/payops/sentinel/internal/safety"
	"github.com/payops/sentinel/internal/statestore"
)

// minGroupSample is the smallest per-issuer group the reasoning stage
// will run detection on.
const minGroupSample = 5

// stateTxnTail is how many window transactions ride along in the
// persisted state snapshot.
const stateTxnTail = 10

// eventSource identifies this service in emitted CloudEvents.
const eventSource = "sentinel-agent"

// Components are the orchestrator's injected dependencies. Audit,
// States, Metrics and Events are optional; a nil Events falls back to
// the null emitter.
type Components struct {
	Stream      *observe.Stream
	Window      *observe.Window
	Baselines   *observe.BaselineManager
	Anomaly     *reason.AnomalyDetector
	Patterns    *reason.PatternDetector
	Hypotheses  *reason.HypothesisGenerator
	Beliefs     *reason.BeliefManager
	Planner     *decision.Planner
	Policy      *decision.Policy
	NRV         *decision.NRVCalculator
	Constraints *safety.Constraints
	Executor    *action.Executor
	Incidents   *memory.Store
	Playbooks   memory.PlaybookRetriever
	Evaluator   *learning.Evaluator
	Updater     *learning.ModelUpdater
	Audit       *audit.Log
	States      *statestore.Store
	Explain     *explain.Generator
	Events      events.EventEmitter
	Metrics     *metrics.Metrics
	Log         *slog.Logger
}

// CycleResult is everything one pass through the loop produced.
type CycleResult struct {
	CycleNumber int                    `json:"cycle_number"`
	Timestamp   int64                  `json:"timestamp"`
	Stats       core.AggregateStats    `json:"stats"`
	Patterns    []core.DetectedPattern `json:"patterns"`
	Hypotheses  []core.Hypothesis      `json:"hypotheses"`
	Beliefs     core.BeliefState       `json:"beliefs"`
	Playbook    *memory.Playbook       `json:"playbook,omitempty"`
	Decision    core.Decision          `json:"decision"`
	NRV         *decision.NRVResult    `json:"nrv,omitempty"`
	ZScore      float64                `json:"z_score"`
	Execution   *core.ExecutionResult  `json:"execution,omitempty"`
	PreMortem   *safety.Analysis       `json:"pre_mortem,omitempty"`
	Explanation explain.Explanation    `json:"explanation"`
	DurationS   float64                `json:"duration_s"`
}

// Orchestrator drives one observe-reason-decide-act-learn cycle at a
// time. Owned by the loop goroutine.
type Orchestrator struct {
	c          Components
	log        *slog.Logger
	cycleCount int
}

// NewOrchestrator wires the components together. Log falls back to
// slog.Default, Events to the null emitter.
func NewOrchestrator(c Components) *Orchestrator {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.Events == nil {
		c.Events = events.NullEmitter{}
	}
	return &Orchestrator{c: c, log: c.Log}
}

// CycleCount reports how many cycles have run.
func (o *Orchestrator) CycleCount() int { return o.cycleCount }

// RunCycle executes one full cycle against the stream state at nowMS.
func (o *Orchestrator) RunCycle(ctx context.Context, nowMS int64) CycleResult {
	started := time.Now()
	o.cycleCount++
	res := CycleResult{CycleNumber: o.cycleCount, Timestamp: nowMS}

	o.observe(&res, nowMS)
	o.reason(&res, nowMS)
	o.decide(&res)
	o.act(ctx, &res, nowMS)
	o.learn(ctx, &res, nowMS)

	res.Explanation = o.c.Explain.Generate(explain.Input{
		Patterns:   res.Patterns,
		Hypotheses: res.Hypotheses,
		Decision:   &res.Decision,
		NRV:        nrvValue(res.NRV),
		ZScore:     res.ZScore,
		PreMortem:  res.PreMortem,
	})

	o.persistState(&res, nowMS)

	res.DurationS = time.Since(started).Seconds()
	if o.c.Metrics != nil {
		o.c.Metrics.CycleDuration.Observe(res.DurationS)
	}
	o.c.Events.Emit(events.TypeCycleCompleted, eventSource, "", map[string]interface{}{
		"cycle":      res.CycleNumber,
		"patterns":   len(res.Patterns),
		"should_act": res.Decision.ShouldAct,
		"duration_s": res.DurationS,
	})
	o.log.Info("cycle completed",
		"cycle", res.CycleNumber, "window", res.Stats.TotalTransactions,
		"patterns", len(res.Patterns), "should_act", res.Decision.ShouldAct,
		"duration_s", res.DurationS)
	return res
}

func (o *Orchestrator) observe(res *CycleResult, nowMS int64) {
	recent := o.c.Stream.Recent(0)
	o.c.Window.Update(recent, nowMS)
	res.Stats = o.c.Window.Stats()
}

func (o *Orchestrator) reason(res *CycleResult, nowMS int64) {
	txns := o.c.Window.Transactions()
	o.c.Baselines.UpdateAll(txns, nowMS)

	var patterns []core.DetectedPattern
	for dim, group := range o.c.Window.GroupByIssuer() {
		if len(group) < minGroupSample {
			continue
		}
		baseline := o.c.Baselines.Baseline(dim)
		if baseline == nil || !baseline.Ready() {
			continue
		}
		groupStats := core.Aggregate(group)
		patterns = append(patterns, o.c.Anomaly.Detect(groupStats, baseline, dim, nowMS, group)...)
		if o.c.Metrics != nil {
			d := core.ParseDimension(dim)
			o.c.Metrics.RecordIssuerStats(d.Value, groupStats.SuccessRate, groupStats.P95LatencyMS)
		}
	}
	patterns = append(patterns, o.c.Patterns.Detect(txns, nowMS)...)
	res.Patterns = patterns

	for i := range patterns {
		p := &patterns[i]
		if p.ZScore() > res.ZScore {
			res.ZScore = p.ZScore()
		}
		if o.c.Metrics != nil {
			o.c.Metrics.RecordPattern(string(p.Kind), p.Dimension, observe.MetricSuccessRate, p.ZScore())
		}
		o.c.Events.Emit(events.TypePatternDetected, eventSource, p.Dimension, map[string]interface{}{
			"type":     string(p.Kind),
			"severity": p.Severity,
			"z_score":  p.ZScore(),
		})
	}

	if len(patterns) > 0 && o.c.Incidents != nil && o.c.Playbooks != nil {
		sig := o.signature(&patterns[0], res.Stats, nowMS)
		similar := o.c.Incidents.FindSimilar(sig, 0, 0)
		pb := o.c.Playbooks.Retrieve(sig, similar, map[string]interface{}{
			"window_size":  res.Stats.TotalTransactions,
			"success_rate": res.Stats.SuccessRate,
			"p95_latency":  res.Stats.P95LatencyMS,
		})
		res.Playbook = &pb
	}

	res.Hypotheses = o.c.Hypotheses.Generate(patterns)
	res.Beliefs = o.c.Beliefs.Update(res.Hypotheses, nowMS)
	if o.c.Metrics != nil {
		o.c.Metrics.BeliefUncertainty.Set(res.Beliefs.UncertaintyLevel)
	}
}

// signature derives the incident lookup key from the primary pattern
// and the window's dominant error code.
func (o *Orchestrator) signature(primary *core.DetectedPattern, stats core.AggregateStats, nowMS int64) memory.Signature {
	issuer := core.ParseDimension(primary.Dimension).Value
	return memory.NewSignature(
		o.dominantErrorCode(),
		issuer,
		string(core.MethodCard),
		stats.FailureRate(),
		nowMS,
	)
}

func (o *Orchestrator) dominantErrorCode() string {
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, t := range o.c.Window.Transactions() {
		if t.ErrorCode == "" {
			continue
		}
		counts[t.ErrorCode]++
		if counts[t.ErrorCode] > bestCount {
			best, bestCount = t.ErrorCode, counts[t.ErrorCode]
		}
	}
	return best
}

func (o *Orchestrator) decide(res *CycleResult) {
	options := o.c.Planner.GenerateOptions(res.Patterns, res.Hypotheses)
	allowed, blocked := o.c.Constraints.Apply(options, 0.0, 0.0)
	for _, why := range blocked {
		o.c.Events.Emit(events.TypeInterventionBlocked, eventSource, "", map[string]interface{}{
			"reason": why,
		})
	}

	res.Decision = o.c.Policy.Decide(allowed, res.Beliefs, res.Stats.TotalTransactions)
	if res.Decision.SelectedOption != nil && res.Decision.SelectedOption.IsAction() {
		nrv := o.c.NRV.Calculate(res.Decision.SelectedOption, res.Stats.TotalTransactions)
		res.NRV = &nrv
	}

	confidence := 1.0 - res.Beliefs.UncertaintyLevel
	if o.c.Metrics != nil {
		o.c.Metrics.RecordDecision(res.Decision.ShouldAct, res.Decision.RequiresHumanApproval, nrvValue(res.NRV))
	}
	if o.c.Audit != nil && res.Decision.ShouldAct {
		o.c.Audit.LogDecision(res.Patterns, res.Hypotheses, options, &res.Decision, confidence, res.NRV)
	}
}

func (o *Orchestrator) act(ctx context.Context, res *CycleResult, nowMS int64) {
	d := &res.Decision
	if !d.ShouldAct || d.SelectedOption == nil {
		return
	}
	if d.RequiresHumanApproval {
		o.log.Warn("intervention held for human approval",
			"type", d.SelectedOption.Kind, "target", d.SelectedOption.Target)
		o.c.Events.Emit(events.TypeAlertRaised, eventSource, d.SelectedOption.Target, map[string]interface{}{
			"type":   string(d.SelectedOption.Kind),
			"reason": "requires human approval",
		})
		return
	}

	result, analysis := o.c.Executor.Execute(ctx, d.SelectedOption)
	res.Execution = &result
	res.PreMortem = &analysis

	if o.c.Metrics != nil {
		errored := !result.Success && result.Error != "" && result.Error != "Guardrail violation"
		o.c.Metrics.RecordIntervention(string(result.InterventionKind), result.Success, errored)
		o.c.Metrics.ActiveInterventions.Set(float64(len(o.c.Executor.Active())))
	}
	if o.c.Audit != nil {
		o.c.Audit.LogAction(result, analysis.RiskScore)
	}

	eventType := events.TypeInterventionExecuted
	if !result.Success {
		eventType = events.TypeInterventionBlocked
	}
	o.c.Events.Emit(eventType, eventSource, result.Target, map[string]interface{}{
		"intervention_id": result.InterventionID,
		"type":            string(result.InterventionKind),
		"success":         result.Success,
		"error":           result.Error,
	})
}

// learn expires overdue interventions and scores each one against the
// outcome it promised. Outcome measurement uses the current window
// against the pre-intervention baseline.
func (o *Orchestrator) learn(ctx context.Context, res *CycleResult, nowMS int64) {
	expired := o.c.Executor.Expire(nowMS)
	for _, r := range expired {
		o.c.Events.Emit(events.TypeInterventionRolledBack, eventSource, r.Target, map[string]interface{}{
			"intervention_id": r.InterventionID,
			"reason":          "expired",
		})
		if o.c.Metrics != nil {
			o.c.Metrics.RecordRollback("expired")
		}
		if o.c.Audit != nil {
			o.c.Audit.LogRollback(r.InterventionID, "intervention expired", true)
		}
		o.evaluateOutcome(&r, res, nowMS)
	}
	if o.c.Metrics != nil {
		o.c.Metrics.ActiveInterventions.Set(float64(len(o.c.Executor.Active())))
	}
}

func (o *Orchestrator) evaluateOutcome(r *core.ExecutionResult, res *CycleResult, nowMS int64) {
	if o.c.Evaluator == nil {
		return
	}
	baseline := o.c.Baselines.Baseline(core.DimensionGlobal)
	if baseline == nil {
		return
	}
	measured := core.OutcomeMeasurement{
		InterventionID:    r.InterventionID,
		MeasuredAt:        nowMS,
		SuccessRateChange: res.Stats.SuccessRate - baseline.SuccessRateEWMA,
		LatencyChange:     res.Stats.AvgLatencyMS - baseline.LatencyEWMA,
	}

	// Expected outcome travels with the active intervention's option
	// only while it runs; after expiry the promise is reconstructed
	// from the parameter bag's recorded estimates when present.
	expected := core.OutcomeEstimate{Confidence: 0.7}
	ev := o.c.Evaluator.Evaluate(r.InterventionID, expected, measured)

	if o.c.Updater != nil {
		ev.RecommendedAdjustments = o.c.Updater.UpdateThresholds(ev)
	}
	if o.c.Metrics != nil {
		o.c.Metrics.OutcomeAccuracy.Observe(ev.AccuracyScore)
	}
	if o.c.Audit != nil {
		o.c.Audit.LogLearning(r.InterventionID,
			map[string]interface{}{
				"success_rate_change": expected.ExpectedSuccessRateChange,
				"latency_change":      expected.ExpectedLatencyChange,
			},
			map[string]interface{}{
				"success_rate_change": measured.SuccessRateChange,
				"latency_change":      measured.LatencyChange,
			},
			ev.AccuracyScore, ev.Success, ev.Learnings)
	}
}

func (o *Orchestrator) persistState(res *CycleResult, nowMS int64) {
	if o.c.States == nil {
		return
	}
	txns := o.c.Window.Transactions()
	if len(txns) > stateTxnTail {
		txns = txns[len(txns)-stateTxnTail:]
	}
	lo, hi := o.c.Window.TimeRange()

	state := &core.AgentState{
		CurrentBeliefs:      res.Beliefs,
		ActiveInterventions: o.c.Executor.Active(),
		RecentObservations: core.ObservationWindow{
			Transactions:   append([]core.Transaction(nil), txns...),
			TimeRangeMS:    [2]int64{lo, hi},
			AggregateStats: res.Stats,
		},
		ModelParameters:  core.DefaultModelParameters(),
		LastUpdated:      nowMS,
		NRVProjection:    nrvValue(res.NRV),
		ZScore:           res.ZScore,
		RiskAcknowledged: res.PreMortem != nil,
	}
	if err := o.c.States.Save(state); err != nil {
		o.log.Warn("state persistence failed", "err", err)
	}
}

func nrvValue(r *decision.NRVResult) float64 {
	if r == nil {
		return 0
	}
	return r.NRV
}
