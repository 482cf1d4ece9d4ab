package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payops/sentinel/internal/core"
)

func issuerPattern() core.DetectedPattern {
	return core.DetectedPattern{
		Kind:      core.PatternIssuerDegradation,
		Dimension: "issuer:HDFC",
		Severity:  0.6,
	}
}

func TestGenerateOptionsAlwaysIncludesNoAction(t *testing.T) {
	p := NewPlanner()
	options := p.GenerateOptions(nil, nil)
	require.Len(t, options, 1)
	assert.Equal(t, core.InterventionNoAction, options[0].Kind)
	assert.Equal(t, "none", options[0].Target)
	assert.Equal(t, 1.0, options[0].ExpectedOutcome.Confidence)
}

func TestGenerateOptionsPerPattern(t *testing.T) {
	p := NewPlanner()
	patterns := []core.DetectedPattern{
		issuerPattern(),
		{Kind: core.PatternRetryStorm, Dimension: "system"},
		{Kind: core.PatternMethodFatigue, Dimension: "method:upi"},
		{Kind: core.PatternLatencySpike, Dimension: "issuer:HDFC"},
	}
	options := p.GenerateOptions(patterns, nil)
	require.Len(t, options, 5)

	suppress := options[1]
	assert.Equal(t, core.InterventionSuppressPath, suppress.Kind)
	assert.Equal(t, "issuer:HDFC", suppress.Target)
	d, ok := suppress.Parameters.DurationMS()
	require.True(t, ok)
	assert.Equal(t, int64(300000), d)
	assert.Equal(t, 0.2, suppress.BlastRadius)

	reduce := options[2]
	assert.Equal(t, core.InterventionReduceRetryAttempts, reduce.Kind)
	assert.Equal(t, "system", reduce.Target)
	assert.Equal(t, 0.5, reduce.BlastRadius)
	mr, _ := reduce.Parameters.Int("max_retries")
	assert.Equal(t, int64(2), mr)

	reroute := options[3]
	assert.Equal(t, core.InterventionRerouteTraffic, reroute.Kind)
	assert.Equal(t, "method:upi", reroute.Target)

	alert := options[4]
	assert.Equal(t, core.InterventionAlertOps, alert.Kind)
	assert.Equal(t, "ops_team", alert.Target)
	pt, _ := alert.Parameters.String("pattern_type")
	assert.Equal(t, "latency_spike", pt)
}

func TestNRVCalculation(t *testing.T) {
	c := NewNRVCalculator(0, 0, 0, nil)
	p := NewPlanner()
	pattern := issuerPattern()
	opt := p.suppressPathOption(&pattern)

	r := c.Calculate(&opt, 1000)
	// 0.1 lift * 200 affected * $100 ticket = $2000 recovery
	assert.Equal(t, 200, r.AffectedVolume)
	assert.InDelta(t, 2000.0, r.RevenueRecovery, 1e-9)
	assert.InDelta(t, 5.05, r.DeltaCost, 1e-9)
	assert.InDelta(t, 0.5, r.LatencyPenalty, 1e-9)
	assert.InDelta(t, 1994.45, r.NRV, 1e-9)
	assert.True(t, c.ShouldAct(r.NRV))
}

func TestNRVZeroBlastRadius(t *testing.T) {
	c := NewNRVCalculator(0, 0, 0, nil)
	opt := baselineAlertOption()
	r := c.Calculate(&opt, 1000)
	assert.Zero(t, r.AffectedVolume)
	assert.Zero(t, r.RevenueRecovery)
	// pure cost, never economically positive
	assert.Negative(t, r.NRV)
	assert.False(t, c.ShouldAct(r.NRV))
}

func TestRankOrdersByNRVDescending(t *testing.T) {
	c := NewNRVCalculator(0, 0, 0, nil)
	p := NewPlanner()
	pattern := issuerPattern()
	retry := core.DetectedPattern{Kind: core.PatternRetryStorm, Dimension: "system"}

	options := []core.InterventionOption{
		p.reduceRetryOption(&retry),
		p.suppressPathOption(&pattern),
	}
	ranked := c.Rank(options, 1000)
	require.Len(t, ranked, 2)
	assert.Equal(t, core.InterventionSuppressPath, ranked[0].Option.Kind)
	assert.GreaterOrEqual(t, ranked[0].NRV.NRV, ranked[1].NRV.NRV)
}

func calmBeliefs() core.BeliefState {
	return core.BeliefState{SystemHealthScore: 1, UncertaintyLevel: 0.1}
}

func TestDecidePositiveNRV(t *testing.T) {
	p := NewPlanner()
	pol := NewPolicy(0, 0, 0, nil, nil)
	pattern := issuerPattern()
	options := p.GenerateOptions([]core.DetectedPattern{pattern}, nil)

	d := pol.Decide(options, calmBeliefs(), 1000)
	require.True(t, d.ShouldAct)
	require.NotNil(t, d.SelectedOption)
	assert.Equal(t, core.InterventionSuppressPath, d.SelectedOption.Kind)
	assert.Contains(t, d.Rationale, "NRV=$")
	assert.False(t, d.RequiresHumanApproval)
	assert.Zero(t, pol.CyclesSinceLastAction())
}

func TestDecideNegativeNRVDefers(t *testing.T) {
	pol := NewPolicy(0, 0, 0, nil, nil)
	// alert_ops alone has negative NRV
	pattern := core.DetectedPattern{Kind: core.PatternLatencySpike, Dimension: "issuer:HDFC"}
	options := NewPlanner().GenerateOptions([]core.DetectedPattern{pattern}, nil)

	d := pol.Decide(options, calmBeliefs(), 1000)
	assert.False(t, d.ShouldAct)
	assert.Contains(t, d.Rationale, "no economic value")
	assert.Equal(t, 1, pol.CyclesSinceLastAction())
}

func TestDecideOnlyNoActionIncrementsCounter(t *testing.T) {
	pol := NewPolicy(0, 0, 0, nil, nil)
	options := []core.InterventionOption{NoActionOption()}

	d := pol.Decide(options, calmBeliefs(), 1000)
	assert.False(t, d.ShouldAct)
	assert.Contains(t, d.Rationale, "cycle 1 since last action")
	assert.Equal(t, 1, pol.CyclesSinceLastAction())
}

func TestMinFrequencyRuleSynthesizesAlert(t *testing.T) {
	pol := NewPolicy(0, 0, 6, nil, nil)
	options := []core.InterventionOption{NoActionOption()}

	// five idle cycles, then the sixth forces an action
	for i := 0; i < 5; i++ {
		d := pol.Decide(options, calmBeliefs(), 1000)
		assert.False(t, d.ShouldAct, "cycle %d", i+1)
	}
	d := pol.Decide(options, calmBeliefs(), 1000)
	require.True(t, d.ShouldAct)
	require.NotNil(t, d.SelectedOption)
	assert.Equal(t, core.InterventionAlertOps, d.SelectedOption.Kind)
	sev, _ := d.SelectedOption.Parameters.String("severity")
	assert.Equal(t, "low", sev)
	assert.Contains(t, d.Rationale, "[MIN FREQUENCY RULE]")
	assert.False(t, d.RequiresHumanApproval)
	assert.Zero(t, pol.CyclesSinceLastAction())
}

func TestMinFrequencyRulePicksBestRealOption(t *testing.T) {
	pol := NewPolicy(0, 0, 6, nil, nil)
	noAct := []core.InterventionOption{NoActionOption()}
	for i := 0; i < 5; i++ {
		pol.Decide(noAct, calmBeliefs(), 1000)
	}

	pattern := issuerPattern()
	options := NewPlanner().GenerateOptions([]core.DetectedPattern{pattern}, nil)
	d := pol.Decide(options, calmBeliefs(), 1000)
	require.True(t, d.ShouldAct)
	assert.Equal(t, core.InterventionSuppressPath, d.SelectedOption.Kind)
	assert.Contains(t, d.Rationale, "Guaranteed action after 6 cycles")
}

func TestApprovalOnBlastRadius(t *testing.T) {
	pol := NewPolicy(0.7, 0.3, 6, nil, nil)
	retry := core.DetectedPattern{Kind: core.PatternRetryStorm, Dimension: "system"}
	options := []core.InterventionOption{NewPlanner().reduceRetryOption(&retry)}

	// reduce_retry has negative sr lift, so NRV <= 0; force via frequency rule
	for i := 0; i < 5; i++ {
		pol.Decide([]core.InterventionOption{NoActionOption()}, calmBeliefs(), 1000)
	}
	d := pol.Decide(options, calmBeliefs(), 1000)
	require.True(t, d.ShouldAct)
	// blast radius 0.5 > 0.3 limit
	assert.True(t, d.RequiresHumanApproval)
}

func TestApprovalOnUncertainty(t *testing.T) {
	pol := NewPolicy(0, 0, 0, nil, nil)
	pattern := issuerPattern()
	options := NewPlanner().GenerateOptions([]core.DetectedPattern{pattern}, nil)

	d := pol.Decide(options, core.BeliefState{UncertaintyLevel: 0.8}, 1000)
	require.True(t, d.ShouldAct)
	assert.True(t, d.RequiresHumanApproval)
}

func TestDecideEmptyOptions(t *testing.T) {
	pol := NewPolicy(0, 0, 0, nil, nil)
	d := pol.Decide(nil, calmBeliefs(), 1000)
	assert.False(t, d.ShouldAct)
	assert.Equal(t, "No options available", d.Rationale)
	assert.Equal(t, 1, pol.CyclesSinceLastAction())
}
