package safety

import (
	"fmt"
	"log/slog"

	"github.com/payops/sentinel/internal/core"
)

// riskAcceptableBelow is the pre-mortem risk threshold; anything at or
// above it needs explicit acknowledgment.
const riskAcceptableBelow = 0.7

// Analysis is the outcome of a pre-mortem pass over one option.
type Analysis struct {
	WorstCaseScenarios     []string `json:"worst_case_scenarios"`
	RiskScore              float64  `json:"risk_score"`
	RiskAcceptable         bool     `json:"risk_acceptable"`
	Mitigations            []string `json:"mitigations"`
	RequiresAcknowledgment bool     `json:"requires_acknowledgment"`
	BlastRadius            float64  `json:"blast_radius"`
	Reversible             bool     `json:"reversible"`
}

// Acknowledgment is the record a human operator signs off on for
// high-risk interventions.
type Acknowledgment struct {
	InterventionKind   core.InterventionKind `json:"intervention_type"`
	Target             string                `json:"target"`
	RiskScore          float64               `json:"risk_score"`
	WorstCaseScenarios []string              `json:"worst_case_scenarios"`
	Mitigations        []string              `json:"mitigations"`
	BlastRadius        float64               `json:"blast_radius"`
	Reversible         bool                  `json:"reversible"`
	RiskAcknowledged   bool                  `json:"risk_acknowledged"`
	AcknowledgedBy     string                `json:"acknowledged_by,omitempty"`
	AcknowledgedAt     *int64                `json:"acknowledged_at,omitempty"`
}

var riskScenarios = map[core.InterventionKind][]string{
	core.InterventionAdjustRetry: {
		"Retry storm amplifies load on already degraded issuer",
		"Increased retries cause cascading failures in payment gateway",
		"User experiences multiple duplicate charges",
	},
	core.InterventionSuppressPath: {
		"Legitimate transactions blocked, revenue loss",
		"Users unable to complete purchases, cart abandonment",
		"Suppression persists beyond recovery, manual intervention needed",
	},
	core.InterventionRerouteTraffic: {
		"Alternative path has lower success rate than original",
		"Rerouting causes unexpected latency spikes",
		"Alternative provider rate limits kick in",
	},
	core.InterventionReduceRetryAttempts: {
		"Transient failures become permanent, success rate drops",
		"Users give up before successful retry",
		"Revenue loss from recoverable transactions",
	},
	core.InterventionAlertOps: {
		"Alert fatigue, genuine issues ignored",
		"Ops team overwhelmed during incident",
		"Delayed response due to unclear alert",
	},
}

// PreMortem runs adversarial analysis on interventions before they
// execute.
type PreMortem struct {
	log *slog.Logger
}

// NewPreMortem builds an analyzer.
func NewPreMortem(log *slog.Logger) *PreMortem {
	if log == nil {
		log = slog.Default()
	}
	return &PreMortem{log: log}
}

// Analyze scores the worst plausible outcome of executing an option.
func (p *PreMortem) Analyze(opt *core.InterventionOption) Analysis {
	scenarios, ok := riskScenarios[opt.Kind]
	if !ok {
		scenarios = []string{"Unknown intervention type, unpredictable risks"}
	}

	risk := p.riskScore(opt)
	a := Analysis{
		WorstCaseScenarios:     scenarios,
		RiskScore:              risk,
		RiskAcceptable:         risk < riskAcceptableBelow,
		Mitigations:            p.mitigations(opt),
		BlastRadius:            opt.BlastRadius,
		Reversible:             opt.Reversible,
	}
	a.RequiresAcknowledgment = !a.RiskAcceptable

	p.log.Info("pre-mortem analysis",
		"type", opt.Kind, "risk_score", risk,
		"acceptable", a.RiskAcceptable, "scenarios", len(scenarios))
	for _, s := range scenarios {
		p.log.Warn("worst case", "scenario", s)
	}
	return a
}

func (p *PreMortem) riskScore(opt *core.InterventionOption) float64 {
	blastRisk := opt.BlastRadius
	reversibilityRisk := 0.0
	if !opt.Reversible {
		reversibilityRisk = 0.3
	}
	tradeoffRisk := abs(opt.Tradeoffs.RiskImpact)*0.4 + abs(opt.Tradeoffs.UserFrictionImpact)*0.3
	uncertaintyRisk := 1.0 - opt.ExpectedOutcome.Confidence

	score := blastRisk*0.3 + reversibilityRisk*0.2 + tradeoffRisk*0.3 + uncertaintyRisk*0.2
	if score > 1 {
		score = 1
	}
	return score
}

func (p *PreMortem) mitigations(opt *core.InterventionOption) []string {
	var out []string
	if opt.BlastRadius > 0.5 {
		out = append(out, "Reduce blast radius to < 50% of traffic")
	}
	if !opt.Reversible {
		out = append(out, "Implement manual rollback procedure")
	}
	if d, ok := opt.Parameters.DurationMS(); ok {
		if mins := d / 60000; mins > 10 {
			out = append(out, fmt.Sprintf("Reduce duration from %d to < 10 minutes", mins))
		}
	}
	out = append(out,
		"Enable real-time monitoring of success rate and latency",
		"Set automatic rollback if success rate drops > 5%")
	return out
}

// CreateAcknowledgment builds the unsigned risk record for an option.
func (p *PreMortem) CreateAcknowledgment(opt *core.InterventionOption, a Analysis) Acknowledgment {
	return Acknowledgment{
		InterventionKind:   opt.Kind,
		Target:             opt.Target,
		RiskScore:          a.RiskScore,
		WorstCaseScenarios: a.WorstCaseScenarios,
		Mitigations:        a.Mitigations,
		BlastRadius:        opt.BlastRadius,
		Reversible:         opt.Reversible,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
