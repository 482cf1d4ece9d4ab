package agent

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/payops/sentinel/internal/action"
	"github.com/payops/sentinel/internal/audit"
	"github.com/payops/sentinel/internal/config"
	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/decision"
	"github.com/payops/sentinel/internal/drift"
	"github.com/payops/sentinel/internal/events"
	"github.com/payops/sentinel/internal/explain"
	"github.com/payops/sentinel/internal/feedback"
	"github.com/payops/sentinel/internal/generator"
	"github.com/payops/sentinel/internal/learning"
	"github.com/payops/sentinel/internal/memory"
	"github.com/payops/sentinel/internal/metrics"
	"github.com/payops/sentinel/internal/observe"
	"github.com/payops/sentinel/internal/reason"
	"github.com/payops/sentinel/internal/safety"
	"github.com/payops/sentinel/internal/statestore"
	"github.com/payops/sentinel/internal/telemetry"
)

// Runtime bundles everything a running agent needs. Built once at
// startup from the configuration.
type Runtime struct {
	Drift        *drift.Engine
	Generator    *generator.Generator
	Stream       *observe.Stream
	Feedback     *feedback.Controller
	Incidents    *memory.Store
	Orchestrator *Orchestrator
	Loop         *Loop
	Builder      *telemetry.Builder
	Hub          *telemetry.Hub
}

// NewRuntime assembles the full agent from configuration. Emitter and
// m may be nil; persistence is enabled only when the configured
// directories are non-empty.
func NewRuntime(cfg *config.Config, emitter events.EventEmitter, m *metrics.Metrics, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}
	seed := cfg.Simulation.Seed

	engine := drift.NewEngine(cfg.Drift, seed, log)
	names := make([]string, 0, len(cfg.Issuers))
	for name := range cfg.Issuers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ic := cfg.Issuers[name]
		engine.AddIssuer(name, ic.InitialSuccess, ic.InitialLatency, ic.InitialRetryProb)
	}
	engine.SetTimeScale(cfg.Simulation.TimeScale)

	gen := generator.New(engine, cfg.Generator.TransactionRate, cfg.Generator.BufferSize, seed+1, log)
	stream := observe.NewStream(cfg.Generator.BufferSize, log)
	window := observe.NewWindow(cfg.Agent.WindowDurationMS)
	baselines := observe.NewBaselineManager(observe.DefaultAlpha, log)

	nrv := decision.NewNRVCalculator(0, 0, 0, log)
	policy := decision.NewPolicy(
		cfg.Agent.MinConfidence, cfg.Agent.MaxBlastRadius,
		cfg.Agent.MinActionFrequencyCycles, nrv, log)

	executor := action.NewExecutor(core.DefaultGuardrails(), action.NewSimulatedEffector(gen, log), log)
	incidents := memory.NewStore(log)

	var auditLog *audit.Log
	if cfg.Infra.AuditDir != "" {
		var err error
		auditLog, err = audit.NewLog(cfg.Infra.AuditDir, log)
		if err != nil {
			return nil, fmt.Errorf("audit log: %w", err)
		}
	}
	var states *statestore.Store
	if cfg.Infra.StateDir != "" {
		var err error
		states, err = statestore.NewStore(cfg.Infra.StateDir, log)
		if err != nil {
			return nil, fmt.Errorf("state store: %w", err)
		}
	}

	orch := NewOrchestrator(Components{
		Stream:      stream,
		Window:      window,
		Baselines:   baselines,
		Anomaly:     reason.NewAnomalyDetector(cfg.Agent.AnomalyThreshold, log),
		Patterns:    reason.NewPatternDetector(log),
		Hypotheses:  reason.NewHypothesisGenerator(),
		Beliefs:     reason.NewBeliefManager(),
		Planner:     decision.NewPlanner(),
		Policy:      policy,
		NRV:         nrv,
		Constraints: safety.NewConstraints(log),
		Executor:    executor,
		Incidents:   incidents,
		Playbooks:   memory.NewLocalRetriever(log),
		Evaluator:   learning.NewEvaluator(log),
		Updater:     learning.NewModelUpdater(0, log),
		Audit:       auditLog,
		States:      states,
		Explain:     explain.NewGenerator(log),
		Events:      emitter,
		Metrics:     m,
		Log:         log,
	})

	fb := feedback.NewController(gen, log)
	builder := telemetry.NewBuilder(seed + 3)
	hub := telemetry.NewHub(log)
	loop := NewLoop(cfg, orch, engine, gen, stream, fb, builder, hub, m, log)

	return &Runtime{
		Drift:        engine,
		Generator:    gen,
		Stream:       stream,
		Feedback:     fb,
		Incidents:    incidents,
		Orchestrator: orch,
		Loop:         loop,
		Builder:      builder,
		Hub:          hub,
	}, nil
}
