package reason

import (
	"github.com/google/uuid"

	"github.com/payops/sentinel/internal/core"
)

// HypothesisGenerator maps detected patterns onto candidate root
// causes with prior confidences and impact estimates.
type HypothesisGenerator struct{}

// NewHypothesisGenerator builds a generator.
func NewHypothesisGenerator() *HypothesisGenerator {
	return &HypothesisGenerator{}
}

// Generate produces hypotheses for every pattern in order.
func (g *HypothesisGenerator) Generate(patterns []core.DetectedPattern) []core.Hypothesis {
	var out []core.Hypothesis
	for i := range patterns {
		p := &patterns[i]
		switch p.Kind {
		case core.PatternIssuerDegradation:
			out = append(out,
				g.build(p, "Issuer experiencing downtime or degraded service", "issuer_downtime", 0.7,
					core.ImpactEstimate{SuccessRateImpact: -0.2, LatencyImpact: 100, RiskImpact: 0.1}),
				g.build(p, "Network connectivity issues with issuer", "network_issues", 0.5,
					core.ImpactEstimate{SuccessRateImpact: -0.15, LatencyImpact: 200, RiskImpact: 0.05}),
			)
		case core.PatternRetryStorm:
			out = append(out,
				g.build(p, "Excessive retry attempts amplifying load", "retry_storm", 0.8,
					core.ImpactEstimate{SuccessRateImpact: -0.1, LatencyImpact: 150, CostImpact: 0.2, RiskImpact: 0.15}),
			)
		case core.PatternMethodFatigue:
			out = append(out,
				g.build(p, "Payment method experiencing high failure rate", "method_fatigue", 0.6,
					core.ImpactEstimate{SuccessRateImpact: -0.25, LatencyImpact: 50, RiskImpact: 0.1}),
			)
		case core.PatternLatencySpike:
			out = append(out,
				g.build(p, "System overload causing latency spike", "system_overload", 0.6,
					core.ImpactEstimate{SuccessRateImpact: -0.05, LatencyImpact: 300, CostImpact: 0.1, RiskImpact: 0.2}),
			)
		}
	}
	return out
}

func (g *HypothesisGenerator) build(
	p *core.DetectedPattern,
	description, rootCause string,
	confidence float64,
	impact core.ImpactEstimate,
) core.Hypothesis {
	return core.Hypothesis{
		ID:                 uuid.NewString(),
		Description:        description,
		RootCause:          rootCause,
		Confidence:         confidence,
		SupportingEvidence: p.Evidence,
		ExpectedImpact:     impact,
	}
}
