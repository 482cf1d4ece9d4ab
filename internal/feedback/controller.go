// Package feedback closes the loop between executed interventions and
// the traffic they shape. The controller tracks which interventions are
// active and re-derives the full multiplier set whenever that changes.
package feedback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/payops/sentinel/internal/action"
	"github.com/payops/sentinel/internal/core"
)

// defaultDurationMS applies when an intervention carries no duration
// parameter.
const defaultDurationMS = 300000

// ActiveIntervention is one intervention currently shaping traffic.
type ActiveIntervention struct {
	Option  core.InterventionOption `json:"option"`
	StartMS int64                   `json:"start_ms"`
	EndMS   int64                   `json:"end_ms"`
}

// Controller applies interventions to a TrafficShaper and expires them
// on schedule. Multipliers are always re-derived from the complete
// active set so overlapping interventions compose predictably.
type Controller struct {
	shaper action.TrafficShaper
	log    *slog.Logger

	mu     sync.Mutex
	active []ActiveIntervention
}

// NewController builds a controller over the shaper.
func NewController(shaper action.TrafficShaper, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{shaper: shaper, log: log}
}

// Apply registers an intervention and reshapes traffic.
func (c *Controller) Apply(opt core.InterventionOption, nowMS int64) {
	duration := int64(defaultDurationMS)
	if d, ok := opt.Parameters.DurationMS(); ok && d > 0 {
		duration = d
	}

	c.mu.Lock()
	c.active = append(c.active, ActiveIntervention{
		Option:  opt,
		StartMS: nowMS,
		EndMS:   nowMS + duration,
	})
	c.reapplyLocked()
	c.mu.Unlock()

	c.log.Info("feedback applied",
		"type", opt.Kind, "target", opt.Target, "duration_ms", duration)
}

// Update drops interventions past their end time. Multipliers are only
// re-derived when the active set actually shrank.
func (c *Controller) Update(nowMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.active)
	kept := c.active[:0]
	for _, ai := range c.active {
		if ai.EndMS > nowMS {
			kept = append(kept, ai)
		}
	}
	c.active = kept

	if len(c.active) != before {
		c.log.Info("interventions expired",
			"expired", before-len(c.active), "remaining", len(c.active))
		c.reapplyLocked()
	}
}

// reapplyLocked rebuilds the multiplier set from scratch. Caller holds
// the mutex.
func (c *Controller) reapplyLocked() {
	c.shaper.ClearMultipliers()
	for _, ai := range c.active {
		dim := core.ParseDimension(ai.Option.Target)
		switch ai.Option.Kind {
		case core.InterventionSuppressPath:
			if dim.IsIssuer() {
				c.shaper.SetVolumeMultiplier(dim.Value, 0.1)
				c.shaper.SetSuccessMultiplier(dim.Value, 0.1)
			}
		case core.InterventionReduceRetryAttempts:
			c.shaper.SetRetryMultiplier(0.5)
		case core.InterventionRerouteTraffic:
			if dim.IsIssuer() {
				c.shaper.SetVolumeMultiplier(dim.Value, 0.3)
			}
		case core.InterventionAdjustRetry:
			c.shaper.SetRetryMultiplier(1.5)
		}
	}
}

// ClearAll drops every intervention and resets the shaper.
func (c *Controller) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
	c.shaper.ClearMultipliers()
	c.log.Info("all interventions cleared")
}

// Active returns a copy of the active intervention set.
func (c *Controller) Active() []ActiveIntervention {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActiveIntervention, len(c.active))
	copy(out, c.active)
	return out
}

// Status summarizes the active set for logs and dashboards.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.active) == 0 {
		return "No active interventions"
	}
	s := fmt.Sprintf("%d active intervention(s):", len(c.active))
	for _, ai := range c.active {
		s += fmt.Sprintf(" %s on %s;", ai.Option.Kind, ai.Option.Target)
	}
	return s
}
