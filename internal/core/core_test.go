package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTxn() Transaction {
	return Transaction{
		ID:         "txn_1",
		Timestamp:  1700000000000,
		Outcome:    OutcomeSuccess,
		LatencyMS:  180,
		RetryCount: 0,
		Method:     MethodCard,
		Issuer:     "HDFC",
		MerchantID: "merchant_1",
		Amount:     250,
		Geography:  "US",
	}
}

func TestTransactionValidate(t *testing.T) {
	txn := validTxn()
	require.NoError(t, txn.Validate())

	bad := txn
	bad.ID = ""
	assert.Error(t, bad.Validate())

	bad = txn
	bad.Timestamp = 0
	assert.Error(t, bad.Validate())

	bad = txn
	bad.LatencyMS = -1
	assert.Error(t, bad.Validate())

	bad = txn
	bad.Outcome = "exploded"
	assert.Error(t, bad.Validate())

	// failed transactions may omit the error code
	soft := txn
	soft.Outcome = OutcomeSoftFail
	soft.ErrorCode = ""
	assert.NoError(t, soft.Validate())
}

func TestAggregate(t *testing.T) {
	txns := make([]Transaction, 0, 100)
	for i := 0; i < 100; i++ {
		txn := validTxn()
		txn.LatencyMS = i + 1 // 1..100
		if i < 10 {
			txn.Outcome = OutcomeSoftFail
		}
		txns = append(txns, txn)
	}
	st := Aggregate(txns)
	assert.Equal(t, 100, st.TotalTransactions)
	assert.Equal(t, 90, st.SuccessCount)
	assert.Equal(t, 10, st.SoftFailCount)
	assert.InDelta(t, 0.9, st.SuccessRate, 1e-9)
	assert.InDelta(t, 50.5, st.AvgLatencyMS, 1e-9)
	assert.Equal(t, float64(96), st.P95LatencyMS)
	assert.Equal(t, float64(100), st.P99LatencyMS)
	assert.Equal(t, 1, st.UniqueIssuers)
}

func TestAggregateEmpty(t *testing.T) {
	st := Aggregate(nil)
	assert.Zero(t, st.TotalTransactions)
	assert.Zero(t, st.SuccessRate)
	assert.Zero(t, st.P95LatencyMS)
	assert.Zero(t, st.FailureRate())
}

func TestParseDimension(t *testing.T) {
	cases := []struct {
		in    string
		kind  string
		value string
	}{
		{"issuer:HDFC", "issuer", "HDFC"},
		{"issuer=HDFC", "issuer", "HDFC"},
		{" method : upi ", "method", "upi"},
		{"global", "global", ""},
		{"system", "system", ""},
		{"issuer:AXIS:retail", "issuer", "AXIS:retail"},
	}
	for _, c := range cases {
		d := ParseDimension(c.in)
		assert.Equal(t, c.kind, d.Kind, c.in)
		assert.Equal(t, c.value, d.Value, c.in)
	}
}

func TestDimensionMatches(t *testing.T) {
	txn := validTxn()
	assert.True(t, ParseDimension("issuer:HDFC").Matches(&txn))
	assert.False(t, ParseDimension("issuer:ICICI").Matches(&txn))
	assert.True(t, ParseDimension("method:card").Matches(&txn))
	assert.True(t, ParseDimension("global").Matches(&txn))
	assert.True(t, ParseDimension("system").Matches(&txn))
	assert.False(t, ParseDimension("planet:mars").Matches(&txn))
}

func TestParamsHelpers(t *testing.T) {
	p := Params{"duration_ms": float64(300000), "max_retries": 2, "reason": "issuer_degradation"}

	d, ok := p.DurationMS()
	require.True(t, ok)
	assert.Equal(t, int64(300000), d)

	n, ok := p.Int("max_retries")
	require.True(t, ok)
	assert.Equal(t, int64(2), n)

	s, ok := p.String("reason")
	require.True(t, ok)
	assert.Equal(t, "issuer_degradation", s)

	_, ok = p.Int("missing")
	assert.False(t, ok)
}

func TestPatternZScore(t *testing.T) {
	p := DetectedPattern{
		Kind:      PatternIssuerDegradation,
		Dimension: "issuer:HDFC",
		Evidence: []Evidence{
			{Type: EvidenceStatistical, Source: "deviation", Value: 0.4},
			{Type: EvidenceStatistical, Source: "z_score", Value: 3.2},
		},
	}
	assert.Equal(t, 3.2, p.ZScore())

	empty := DetectedPattern{}
	assert.Zero(t, empty.ZScore())
}

func TestAgentStateRoundTrip(t *testing.T) {
	exp := int64(1700000300000)
	st := AgentState{
		CurrentBeliefs: BeliefState{
			ActiveHypotheses: []Hypothesis{{
				ID:          "h1",
				Description: "Issuer experiencing downtime or degraded service",
				RootCause:   "issuer_downtime",
				Confidence:  0.7,
				ExpectedImpact: ImpactEstimate{
					SuccessRateImpact: -0.2,
					LatencyImpact:     100,
					RiskImpact:        0.1,
				},
			}},
			SystemHealthScore: 0.65,
			UncertaintyLevel:  0.08,
			LastUpdated:       1700000000000,
		},
		ActiveInterventions: []ExecutionResult{{
			Success:          true,
			InterventionID:   "ivn-1",
			InterventionKind: InterventionSuppressPath,
			Target:           "issuer:HDFC",
			ExecutedAt:       1700000000000,
			ExpiresAt:        &exp,
			RollbackConditions: []RollbackCondition{
				{Type: RollbackTimeBased, Description: "Expires at 1700000300000"},
			},
			ActualParameters: Params{"duration_ms": float64(300000)},
		}},
		RecentObservations: ObservationWindow{
			Transactions:   []Transaction{validTxn()},
			TimeRangeMS:    [2]int64{1699999700000, 1700000000000},
			AggregateStats: Aggregate([]Transaction{validTxn()}),
		},
		ModelParameters: DefaultModelParameters(),
		LastUpdated:     1700000000000,
		NRVProjection:   812.5,
		ZScore:          3.2,
	}

	raw, err := json.Marshal(&st)
	require.NoError(t, err)

	var got AgentState
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, st, got)
}

func TestRing(t *testing.T) {
	r := NewRing(3)
	assert.Zero(t, r.Len())

	for i := 1; i <= 5; i++ {
		txn := validTxn()
		txn.LatencyMS = i
		r.Add(txn)
	}
	assert.Equal(t, 3, r.Len())

	all := r.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, 3, all[0].LatencyMS)
	assert.Equal(t, 5, all[2].LatencyMS)

	last2 := r.Recent(2)
	require.Len(t, last2, 2)
	assert.Equal(t, 4, last2[0].LatencyMS)
	assert.Equal(t, 5, last2[1].LatencyMS)

	assert.Len(t, r.Recent(10), 3)
}
