package action

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/safety"
)

// Executor runs interventions through guardrails, pre-mortem analysis
// and an Effector. Guardrail rejections come back as failed
// ExecutionResults, not errors.
type Executor struct {
	guardrails core.GuardrailConfig
	effector   Effector
	preMortem  *safety.PreMortem
	log        *slog.Logger
	nowMS      func() int64

	mu     sync.Mutex
	active map[string]core.ExecutionResult
}

// NewExecutor builds an executor. A nil effector falls back to
// NullEffector.
func NewExecutor(guardrails core.GuardrailConfig, effector Effector, log *slog.Logger) *Executor {
	if effector == nil {
		effector = NullEffector{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		guardrails: guardrails,
		effector:   effector,
		preMortem:  safety.NewPreMortem(log),
		log:        log,
		nowMS:      func() int64 { return time.Now().UnixMilli() },
		active:     make(map[string]core.ExecutionResult),
	}
}

// SetClock overrides the wall clock for tests.
func (e *Executor) SetClock(nowMS func() int64) { e.nowMS = nowMS }

// Execute runs one intervention. The pre-mortem analysis is always
// returned so the caller can audit and escalate.
func (e *Executor) Execute(ctx context.Context, opt *core.InterventionOption) (core.ExecutionResult, safety.Analysis) {
	id := uuid.NewString()
	now := e.nowMS()

	analysis := e.preMortem.Analyze(opt)
	if analysis.RequiresAcknowledgment {
		e.log.Warn("high-risk intervention requires explicit acknowledgment",
			"type", opt.Kind, "risk_score", analysis.RiskScore)
	}

	if reason := e.checkGuardrails(opt); reason != "" {
		e.log.Warn("guardrail violation", "type", opt.Kind, "reason", reason)
		return core.ExecutionResult{
			InterventionID:   id,
			InterventionKind: opt.Kind,
			Target:           opt.Target,
			ExecutedAt:       now,
			ActualParameters: core.Params{},
			Error:            "Guardrail violation",
		}, analysis
	}

	var expiresAt *int64
	description := "Manual rollback only"
	if d, ok := opt.Parameters.DurationMS(); ok && d > 0 {
		exp := now + d
		expiresAt = &exp
		description = fmt.Sprintf("Expires at %d", exp)
	}

	if err := e.effector.Apply(ctx, opt); err != nil {
		e.log.Error("effector apply failed", "type", opt.Kind, "err", err)
		return core.ExecutionResult{
			InterventionID:   id,
			InterventionKind: opt.Kind,
			Target:           opt.Target,
			ExecutedAt:       now,
			ActualParameters: core.Params{},
			Error:            err.Error(),
		}, analysis
	}

	result := core.ExecutionResult{
		Success:          true,
		InterventionID:   id,
		InterventionKind: opt.Kind,
		Target:           opt.Target,
		ExecutedAt:       now,
		ExpiresAt:        expiresAt,
		RollbackConditions: []core.RollbackCondition{
			{Type: core.RollbackTimeBased, Description: description},
		},
		ActualParameters: opt.Parameters,
	}

	e.mu.Lock()
	e.active[id] = result
	e.mu.Unlock()

	e.log.Info("intervention executed", "id", id, "type", opt.Kind, "target", opt.Target)
	return result, analysis
}

func (e *Executor) checkGuardrails(opt *core.InterventionOption) string {
	if opt.BlastRadius > e.guardrails.RequireApprovalThreshold {
		return fmt.Sprintf("blast radius %.2f exceeds threshold %.2f",
			opt.BlastRadius, e.guardrails.RequireApprovalThreshold)
	}
	if d, ok := opt.Parameters.DurationMS(); ok && d > e.guardrails.MaxSuppressionDurationMS {
		return fmt.Sprintf("duration %dms exceeds maximum %dms",
			d, e.guardrails.MaxSuppressionDurationMS)
	}
	dim := core.ParseDimension(opt.Target)
	for _, m := range e.guardrails.ProtectedMethods {
		if dim.IsMethod() && dim.Value == m {
			return fmt.Sprintf("method %s is protected", m)
		}
	}
	for _, m := range e.guardrails.ProtectedMerchants {
		if dim.Kind == "merchant" && dim.Value == m {
			return fmt.Sprintf("merchant %s is protected", m)
		}
	}
	return ""
}

// Rollback reverses an active intervention by id.
func (e *Executor) Rollback(ctx context.Context, id string) bool {
	e.mu.Lock()
	result, ok := e.active[id]
	if ok {
		delete(e.active, id)
	}
	e.mu.Unlock()
	if !ok {
		e.log.Warn("intervention not found for rollback", "id", id)
		return false
	}

	opt := core.InterventionOption{
		Kind:       result.InterventionKind,
		Target:     result.Target,
		Parameters: result.ActualParameters,
	}
	if err := e.effector.Revert(ctx, &opt); err != nil {
		e.log.Error("effector revert failed", "id", id, "err", err)
	}
	e.log.Info("intervention rolled back", "id", id)
	return true
}

// Active lists currently active interventions.
func (e *Executor) Active() []core.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.ExecutionResult, 0, len(e.active))
	for _, r := range e.active {
		out = append(out, r)
	}
	return out
}

// Expire removes interventions whose expiry has passed and returns
// them so the caller can revert side effects.
func (e *Executor) Expire(nowMS int64) []core.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	var expired []core.ExecutionResult
	for id, r := range e.active {
		if r.ExpiresAt != nil && *r.ExpiresAt <= nowMS {
			expired = append(expired, r)
			delete(e.active, id)
		}
	}
	return expired
}
