package reason

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/observe"
)

const testTS = int64(1700000000000)

func mkTxn(i int, issuer string, outcome core.Outcome, errCode string, latency, retries int) core.Transaction {
	return core.Transaction{
		ID:         fmt.Sprintf("txn_%d", i),
		Timestamp:  testTS,
		Outcome:    outcome,
		ErrorCode:  errCode,
		LatencyMS:  latency,
		RetryCount: retries,
		Method:     core.MethodCard,
		Issuer:     issuer,
		MerchantID: "merchant_1",
		Amount:     100,
	}
}

func TestSampleSizeScore(t *testing.T) {
	s := NewConfidenceScorer(50, nil)
	assert.Zero(t, s.SampleSizeScore(0))
	assert.InDelta(t, 0.5, s.SampleSizeScore(25), 1e-9)
	assert.Equal(t, 1.0, s.SampleSizeScore(50))
	assert.Equal(t, 1.0, s.SampleSizeScore(500))
}

func TestSignalConsistencyScore(t *testing.T) {
	s := NewConfidenceScorer(50, nil)

	var txns []core.Transaction
	for i := 0; i < 8; i++ {
		txns = append(txns, mkTxn(i, "HDFC", core.OutcomeHardFail, "ERR_1001", 500, 0))
	}
	txns = append(txns, mkTxn(8, "HDFC", core.OutcomeSoftFail, "ERR_2002", 500, 0))
	txns = append(txns, mkTxn(9, "HDFC", core.OutcomeSuccess, "", 100, 0))

	// 8 of 9 failures share ERR_1001
	assert.InDelta(t, 8.0/9.0, s.SignalConsistencyScore(txns, ConsistencyByErrorCode), 1e-9)
	assert.InDelta(t, 1.0, s.SignalConsistencyScore(txns, ConsistencyByIssuer), 1e-9)
	assert.Zero(t, s.SignalConsistencyScore(nil, ConsistencyByErrorCode))
}

func TestBaselineScoreMapping(t *testing.T) {
	s := NewConfidenceScorer(50, nil)
	assert.Zero(t, s.BaselineScore(0.5))
	assert.InDelta(t, 0.5, s.BaselineScore(2.0), 1e-9)
	assert.Equal(t, 1.0, s.BaselineScore(3.5))
	assert.Zero(t, s.ZScore(0.3, 0.1, 0))
	assert.InDelta(t, 4.0, s.ZScore(0.3, 0.1, 0.05), 1e-9)
}

func TestScoreCombination(t *testing.T) {
	s := NewConfidenceScorer(50, nil)
	var txns []core.Transaction
	for i := 0; i < 50; i++ {
		txns = append(txns, mkTxn(i, "HDFC", core.OutcomeHardFail, "ERR_1001", 500, 0))
	}
	b := s.Score(50, txns, 0.5, 0.05, 0.05, ConsistencyByErrorCode)
	assert.Equal(t, 1.0, b.SampleScore)
	assert.Equal(t, 1.0, b.ConsistencyScore)
	assert.Equal(t, 1.0, b.BaselineScore)
	assert.InDelta(t, 1.0, b.Confidence, 1e-9)
	assert.InDelta(t, 9.0, b.ZScore, 1e-9)
}

func degradedWindow(n int) []core.Transaction {
	var txns []core.Transaction
	for i := 0; i < n; i++ {
		outcome := core.OutcomeSuccess
		errCode := ""
		if i%2 == 0 {
			outcome = core.OutcomeHardFail
			errCode = "ERR_1001"
		}
		txns = append(txns, mkTxn(i, "HDFC", outcome, errCode, 200, 0))
	}
	return txns
}

func seededBaseline(dim string) *observe.RollingBaseline {
	b := observe.NewRollingBaseline(dim, 0.2)
	for i := 0; i < 10; i++ {
		b.Update(0.95, 200, 0.1, testTS-int64(10-i)*15000)
	}
	return b
}

func TestDetectSuccessRateAnomaly(t *testing.T) {
	d := NewAnomalyDetector(2.0, nil)
	baseline := seededBaseline("issuer:HDFC")
	txns := degradedWindow(100)
	stats := core.Aggregate(txns)

	p := d.DetectSuccessRateAnomaly(stats, baseline, "issuer:HDFC", testTS, txns)
	require.NotNil(t, p)
	assert.Equal(t, core.PatternIssuerDegradation, p.Kind)
	assert.Equal(t, "issuer:HDFC", p.Dimension)
	assert.Greater(t, p.Severity, 0.5)
	assert.Greater(t, p.ZScore(), 2.0)
}

func TestDetectSuccessRateAnomalyQuietWindow(t *testing.T) {
	d := NewAnomalyDetector(2.0, nil)
	baseline := seededBaseline("issuer:HDFC")

	var txns []core.Transaction
	for i := 0; i < 100; i++ {
		outcome := core.OutcomeSuccess
		if i >= 95 {
			outcome = core.OutcomeSoftFail
		}
		txns = append(txns, mkTxn(i, "HDFC", outcome, "", 200, 0))
	}
	assert.Nil(t, d.DetectSuccessRateAnomaly(core.Aggregate(txns), baseline, "issuer:HDFC", testTS, txns))
}

func TestDetectSuccessRateAnomalyNeedsSamples(t *testing.T) {
	d := NewAnomalyDetector(2.0, nil)
	baseline := seededBaseline("issuer:HDFC")
	txns := degradedWindow(5)
	assert.Nil(t, d.DetectSuccessRateAnomaly(core.Aggregate(txns), baseline, "issuer:HDFC", testTS, txns))
}

func TestDetectSuccessRateAnomalyNonIssuerDimension(t *testing.T) {
	d := NewAnomalyDetector(2.0, nil)
	baseline := seededBaseline("method:card")
	txns := degradedWindow(100)
	p := d.DetectSuccessRateAnomaly(core.Aggregate(txns), baseline, "method:card", testTS, txns)
	require.NotNil(t, p)
	assert.Equal(t, core.PatternLocalizedFailure, p.Kind)
}

func TestDetectLatencyAnomaly(t *testing.T) {
	d := NewAnomalyDetector(2.0, nil)
	baseline := seededBaseline("issuer:HDFC")

	var txns []core.Transaction
	for i := 0; i < 50; i++ {
		txns = append(txns, mkTxn(i, "HDFC", core.OutcomeSuccess, "", 1800, 0))
	}
	p := d.DetectLatencyAnomaly(core.Aggregate(txns), baseline, "issuer:HDFC", testTS)
	require.NotNil(t, p)
	assert.Equal(t, core.PatternLatencySpike, p.Kind)
	assert.Equal(t, 1.0, p.Severity)

	// nominal latency does not fire
	var calm []core.Transaction
	for i := 0; i < 50; i++ {
		calm = append(calm, mkTxn(i, "HDFC", core.OutcomeSuccess, "", 210, 0))
	}
	assert.Nil(t, d.DetectLatencyAnomaly(core.Aggregate(calm), baseline, "issuer:HDFC", testTS))
}

func TestDetectRetryStorm(t *testing.T) {
	d := NewPatternDetector(nil)

	var txns []core.Transaction
	for i := 0; i < 30; i++ {
		retries := 0
		if i%3 == 0 {
			retries = 5
		}
		txns = append(txns, mkTxn(i, "HDFC", core.OutcomeSoftFail, "ERR_TIMEOUT", 400, retries))
	}
	patterns := d.DetectRetryStorm(txns, testTS)
	require.Len(t, patterns, 1)
	assert.Equal(t, core.PatternRetryStorm, patterns[0].Kind)
	assert.Equal(t, "system", patterns[0].Dimension)
	assert.Positive(t, patterns[0].Severity)

	assert.Empty(t, d.DetectRetryStorm(txns[:4], testTS))

	var quiet []core.Transaction
	for i := 0; i < 30; i++ {
		quiet = append(quiet, mkTxn(i, "HDFC", core.OutcomeSuccess, "", 100, 0))
	}
	assert.Empty(t, d.DetectRetryStorm(quiet, testTS))
}

func TestDetectIssuerDegradation(t *testing.T) {
	d := NewPatternDetector(nil)

	var txns []core.Transaction
	for i := 0; i < 20; i++ {
		outcome := core.OutcomeSuccess
		if i%2 == 0 {
			outcome = core.OutcomeHardFail
		}
		txns = append(txns, mkTxn(i, "HDFC", outcome, "ERR_1001", 500, 0))
	}
	for i := 20; i < 40; i++ {
		txns = append(txns, mkTxn(i, "ICICI", core.OutcomeSuccess, "", 150, 0))
	}

	patterns := d.DetectIssuerDegradation(txns, testTS)
	require.Len(t, patterns, 1)
	assert.Equal(t, "issuer:HDFC", patterns[0].Dimension)
	assert.InDelta(t, 0.5, patterns[0].Severity, 1e-9)
}

func TestDetectMethodFatigue(t *testing.T) {
	d := NewPatternDetector(nil)

	var txns []core.Transaction
	for i := 0; i < 20; i++ {
		outcome := core.OutcomeSuccess
		if i%2 == 0 {
			outcome = core.OutcomeSoftFail
		}
		txns = append(txns, mkTxn(i, "HDFC", outcome, "ERR_1001", 400, 0))
	}
	patterns := d.DetectMethodFatigue(txns, testTS)
	require.Len(t, patterns, 1)
	assert.Equal(t, core.PatternMethodFatigue, patterns[0].Kind)
	assert.Equal(t, "method:card", patterns[0].Dimension)

	// under the 10-sample floor nothing fires
	assert.Empty(t, d.DetectMethodFatigue(txns[:8], testTS))
}

func TestHypothesisCatalog(t *testing.T) {
	g := NewHypothesisGenerator()
	patterns := []core.DetectedPattern{
		{Kind: core.PatternIssuerDegradation, Dimension: "issuer:HDFC", Severity: 0.6,
			Evidence: []core.Evidence{{Type: core.EvidenceStatistical, Source: "z_score", Value: 3.0}}},
		{Kind: core.PatternRetryStorm, Dimension: "system", Severity: 0.5},
		{Kind: core.PatternLatencySpike, Dimension: "issuer:HDFC", Severity: 0.4},
	}

	hyps := g.Generate(patterns)
	require.Len(t, hyps, 4)

	assert.Equal(t, "issuer_downtime", hyps[0].RootCause)
	assert.Equal(t, 0.7, hyps[0].Confidence)
	assert.Equal(t, -0.2, hyps[0].ExpectedImpact.SuccessRateImpact)
	assert.Len(t, hyps[0].SupportingEvidence, 1)

	assert.Equal(t, "network_issues", hyps[1].RootCause)
	assert.Equal(t, "retry_storm", hyps[2].RootCause)
	assert.Equal(t, 0.8, hyps[2].Confidence)
	assert.Equal(t, "system_overload", hyps[3].RootCause)

	ids := map[string]bool{}
	for _, h := range hyps {
		assert.NotEmpty(t, h.ID)
		ids[h.ID] = true
	}
	assert.Len(t, ids, 4)
}

func TestBeliefManager(t *testing.T) {
	m := NewBeliefManager()
	initial := m.Current()
	assert.Equal(t, 1.0, initial.SystemHealthScore)
	assert.Zero(t, initial.UncertaintyLevel)

	state := m.Update([]core.Hypothesis{
		{ID: "a", Confidence: 0.7},
		{ID: "b", Confidence: 0.5},
	}, testTS)
	assert.Len(t, state.ActiveHypotheses, 2)
	// avg confidence 0.6 -> health 0.7
	assert.InDelta(t, 0.7, state.SystemHealthScore, 1e-9)
	// variance around 0.5: (0.04+0)/2*2 = 0.04
	assert.InDelta(t, 0.04, state.UncertaintyLevel, 1e-9)
	assert.Equal(t, testTS, state.LastUpdated)

	// hypotheses accumulate across updates
	state = m.Update([]core.Hypothesis{{ID: "c", Confidence: 0.8}}, testTS+1)
	assert.Len(t, state.ActiveHypotheses, 3)

	m.Clear(testTS + 2)
	assert.Empty(t, m.Current().ActiveHypotheses)
	assert.Equal(t, 1.0, m.Current().SystemHealthScore)
}

func TestBeliefUpdateEmpty(t *testing.T) {
	m := NewBeliefManager()
	state := m.Update(nil, testTS)
	assert.Equal(t, 1.0, state.SystemHealthScore)
	assert.Zero(t, state.UncertaintyLevel)
}
