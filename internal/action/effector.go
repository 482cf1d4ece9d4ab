// Package action executes interventions behind guardrails. The actual
// side effect goes through an Effector so the same executor drives
// simulated traffic, real payment rails or nothing at all.
package action

import (
	"context"
	"log/slog"

	"github.com/payops/sentinel/internal/core"
)

// Effector applies and reverses interventions on a concrete target
// system.
type Effector interface {
	// Apply puts the intervention into effect.
	Apply(ctx context.Context, opt *core.InterventionOption) error
	// Revert undoes a previously applied intervention.
	Revert(ctx context.Context, opt *core.InterventionOption) error
}

// TrafficShaper is what the simulated effector drives: the generator's
// feedback surface.
type TrafficShaper interface {
	SetSuccessMultiplier(issuer string, m float64)
	SetVolumeMultiplier(issuer string, m float64)
	SetRetryMultiplier(m float64)
	ClearMultipliers()
}

// SimulatedEffector shapes the synthetic traffic generator instead of
// touching real payment infrastructure.
type SimulatedEffector struct {
	shaper TrafficShaper
	log    *slog.Logger
}

// NewSimulatedEffector builds an effector over the traffic shaper.
func NewSimulatedEffector(shaper TrafficShaper, log *slog.Logger) *SimulatedEffector {
	if log == nil {
		log = slog.Default()
	}
	return &SimulatedEffector{shaper: shaper, log: log}
}

// Apply translates the intervention into generator multipliers.
func (e *SimulatedEffector) Apply(ctx context.Context, opt *core.InterventionOption) error {
	dim := core.ParseDimension(opt.Target)
	switch opt.Kind {
	case core.InterventionSuppressPath:
		if dim.IsIssuer() {
			e.shaper.SetVolumeMultiplier(dim.Value, 0.1)
			e.shaper.SetSuccessMultiplier(dim.Value, 0.1)
		}
	case core.InterventionReduceRetryAttempts:
		e.shaper.SetRetryMultiplier(0.5)
	case core.InterventionRerouteTraffic:
		if dim.IsIssuer() {
			e.shaper.SetVolumeMultiplier(dim.Value, 0.3)
		}
	case core.InterventionAdjustRetry:
		e.shaper.SetRetryMultiplier(1.5)
	}
	e.log.Info("simulated effect applied", "type", opt.Kind, "target", opt.Target)
	return nil
}

// Revert clears all multipliers; the feedback controller reapplies the
// surviving interventions.
func (e *SimulatedEffector) Revert(ctx context.Context, opt *core.InterventionOption) error {
	e.shaper.ClearMultipliers()
	e.log.Info("simulated effect reverted", "type", opt.Kind, "target", opt.Target)
	return nil
}

// ProductionEffector is the shim that would call real payment-system
// APIs. It currently records intent only.
type ProductionEffector struct {
	log *slog.Logger
}

// NewProductionEffector builds the production shim.
func NewProductionEffector(log *slog.Logger) *ProductionEffector {
	if log == nil {
		log = slog.Default()
	}
	return &ProductionEffector{log: log}
}

// Apply logs what would hit the live rails.
func (e *ProductionEffector) Apply(ctx context.Context, opt *core.InterventionOption) error {
	// TODO: wire to the gateway routing-control API once it exists
	e.log.Info("production effect requested", "type", opt.Kind, "target", opt.Target, "params", opt.Parameters)
	return nil
}

// Revert logs the rollback request.
func (e *ProductionEffector) Revert(ctx context.Context, opt *core.InterventionOption) error {
	e.log.Info("production rollback requested", "type", opt.Kind, "target", opt.Target)
	return nil
}

// NullEffector does nothing. Used by tests and dry planning runs.
type NullEffector struct{}

// Apply is a no-op.
func (NullEffector) Apply(ctx context.Context, opt *core.InterventionOption) error { return nil }

// Revert is a no-op.
func (NullEffector) Revert(ctx context.Context, opt *core.InterventionOption) error { return nil }
