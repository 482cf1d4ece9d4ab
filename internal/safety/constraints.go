// Package safety enforces the hard constraints and adversarial
// pre-mortem checks that sit between the decision policy and the
// executor.
package safety

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/payops/sentinel/internal/core"
)

// Risk levels above which fraud/compliance concerns start blocking.
const (
	riskBlockThreshold    = 0.3
	revenueBlockFraudRisk = 0.1
	revenueBlockLift      = 0.1
)

// Constraints applies the fraud/compliance override, the
// minimal-intervention preference and the reversibility preference.
type Constraints struct {
	FraudComplianceOverride   bool
	PreferMinimalIntervention bool
	PreferReversible          bool
	log                       *slog.Logger
}

// NewConstraints builds constraints with every preference enabled.
func NewConstraints(log *slog.Logger) *Constraints {
	if log == nil {
		log = slog.Default()
	}
	return &Constraints{
		FraudComplianceOverride:   true,
		PreferMinimalIntervention: true,
		PreferReversible:          true,
		log:                       log,
	}
}

// CheckFraudCompliance decides whether an option must be blocked given
// the current fraud and compliance risk levels. Fraud and compliance
// always outrank revenue.
func (c *Constraints) CheckFraudCompliance(opt *core.InterventionOption, fraudRisk, complianceRisk float64) (bool, string) {
	if !c.FraudComplianceOverride {
		return false, ""
	}
	if fraudRisk > riskBlockThreshold && opt.Tradeoffs.RiskImpact > 0 {
		return true, fmt.Sprintf("Fraud risk %.2f too high, cannot increase risk further", fraudRisk)
	}
	if complianceRisk > riskBlockThreshold && opt.Tradeoffs.RiskImpact > 0 {
		return true, fmt.Sprintf("Compliance risk %.2f too high, cannot increase risk further", complianceRisk)
	}
	if fraudRisk > revenueBlockFraudRisk && opt.Tradeoffs.SuccessRateImpact > revenueBlockLift {
		c.log.Warn("blocking revenue optimization", "fraud_risk", fraudRisk)
		return true, "Fraud/compliance takes priority over revenue optimization"
	}
	return false, ""
}

// Magnitude scores how heavy-handed an option is; no-action is 0.
func Magnitude(opt *core.InterventionOption) float64 {
	if opt.Kind == core.InterventionNoAction {
		return 0
	}
	return opt.BlastRadius*0.5 +
		math.Abs(opt.Tradeoffs.SuccessRateImpact)*0.2 +
		math.Abs(opt.Tradeoffs.LatencyImpact)/1000.0*0.1 +
		opt.Tradeoffs.UserFrictionImpact*0.2
}

// Apply filters and reorders options: blocked options are removed with
// reasons, survivors sort by ascending magnitude, then reversible
// options move ahead of irreversible ones. Both sorts are stable.
func (c *Constraints) Apply(options []core.InterventionOption, fraudRisk, complianceRisk float64) ([]core.InterventionOption, []string) {
	allowed := make([]core.InterventionOption, 0, len(options))
	var blocked []string
	for i := range options {
		if block, reason := c.CheckFraudCompliance(&options[i], fraudRisk, complianceRisk); block {
			blocked = append(blocked, fmt.Sprintf("%s: %s", options[i].Kind, reason))
			c.log.Warn("option blocked", "type", options[i].Kind, "reason", reason)
			continue
		}
		allowed = append(allowed, options[i])
	}

	if c.PreferMinimalIntervention {
		sort.SliceStable(allowed, func(i, j int) bool {
			return Magnitude(&allowed[i]) < Magnitude(&allowed[j])
		})
	}
	if c.PreferReversible {
		sort.SliceStable(allowed, func(i, j int) bool {
			return allowed[i].Reversible && !allowed[j].Reversible
		})
	}

	c.log.Info("safety constraints applied",
		"in", len(options), "allowed", len(allowed), "blocked", len(blocked))
	return allowed, blocked
}
