// Package decision plans intervention options, prices them with Net
// Recovery Value and selects one under the decision policy.
package decision

import (
	"github.com/payops/sentinel/internal/core"
)

// Planner maps detected patterns onto concrete intervention options.
type Planner struct{}

// NewPlanner builds a planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// GenerateOptions produces the option set for one cycle. A no-action
// option always leads the list.
func (p *Planner) GenerateOptions(patterns []core.DetectedPattern, hypotheses []core.Hypothesis) []core.InterventionOption {
	options := []core.InterventionOption{NoActionOption()}
	for i := range patterns {
		pattern := &patterns[i]
		switch pattern.Kind {
		case core.PatternIssuerDegradation:
			options = append(options, p.suppressPathOption(pattern))
		case core.PatternRetryStorm:
			options = append(options, p.reduceRetryOption(pattern))
		case core.PatternMethodFatigue:
			options = append(options, p.rerouteOption(pattern))
		case core.PatternLatencySpike:
			options = append(options, p.alertOpsOption(pattern))
		}
	}
	return options
}

// NoActionOption is the baseline do-nothing option.
func NoActionOption() core.InterventionOption {
	return core.InterventionOption{
		Kind:            core.InterventionNoAction,
		Target:          "none",
		Parameters:      core.Params{},
		ExpectedOutcome: core.OutcomeEstimate{Confidence: 1.0},
		Reversible:      true,
		BlastRadius:     0,
	}
}

func (p *Planner) suppressPathOption(pattern *core.DetectedPattern) core.InterventionOption {
	return core.InterventionOption{
		Kind:   core.InterventionSuppressPath,
		Target: pattern.Dimension,
		Parameters: core.Params{
			"duration_ms": int64(300000),
			"reason":      "issuer_degradation",
		},
		ExpectedOutcome: core.OutcomeEstimate{
			ExpectedSuccessRateChange: 0.1,
			ExpectedLatencyChange:     -50,
			ExpectedCostChange:        0.05,
			Confidence:                0.7,
		},
		Tradeoffs: core.Tradeoffs{
			SuccessRateImpact:  0.1,
			LatencyImpact:      -50,
			CostImpact:         0.05,
			RiskImpact:         0.1,
			UserFrictionImpact: 0.2,
		},
		Reversible:  true,
		BlastRadius: 0.2,
	}
}

func (p *Planner) reduceRetryOption(pattern *core.DetectedPattern) core.InterventionOption {
	return core.InterventionOption{
		Kind:   core.InterventionReduceRetryAttempts,
		Target: "system",
		Parameters: core.Params{
			"max_retries": int64(2),
			"duration_ms": int64(600000),
		},
		ExpectedOutcome: core.OutcomeEstimate{
			ExpectedSuccessRateChange: -0.05,
			ExpectedLatencyChange:     -100,
			ExpectedCostChange:        -0.1,
			Confidence:                0.8,
		},
		Tradeoffs: core.Tradeoffs{
			SuccessRateImpact:  -0.05,
			LatencyImpact:      -100,
			CostImpact:         -0.1,
			RiskImpact:         0.05,
			UserFrictionImpact: 0.1,
		},
		Reversible:  true,
		BlastRadius: 0.5,
	}
}

func (p *Planner) rerouteOption(pattern *core.DetectedPattern) core.InterventionOption {
	return core.InterventionOption{
		Kind:   core.InterventionRerouteTraffic,
		Target: pattern.Dimension,
		Parameters: core.Params{
			"alternative_method": string(core.MethodCard),
			"duration_ms":        int64(300000),
		},
		ExpectedOutcome: core.OutcomeEstimate{
			ExpectedSuccessRateChange: 0.15,
			ExpectedLatencyChange:     20,
			ExpectedCostChange:        0.02,
			Confidence:                0.6,
		},
		Tradeoffs: core.Tradeoffs{
			SuccessRateImpact:  0.15,
			LatencyImpact:      20,
			CostImpact:         0.02,
			RiskImpact:         0.15,
			UserFrictionImpact: 0.3,
		},
		Reversible:  true,
		BlastRadius: 0.3,
	}
}

func (p *Planner) alertOpsOption(pattern *core.DetectedPattern) core.InterventionOption {
	return core.InterventionOption{
		Kind:   core.InterventionAlertOps,
		Target: "ops_team",
		Parameters: core.Params{
			"severity":     "high",
			"pattern_type": string(pattern.Kind),
		},
		ExpectedOutcome: core.OutcomeEstimate{Confidence: 1.0},
		Reversible:      true,
		BlastRadius:     0,
	}
}
