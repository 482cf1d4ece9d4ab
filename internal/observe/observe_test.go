package observe

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payops/sentinel/internal/core"
)

func txn(id int, ts int64, issuer string, outcome core.Outcome, latency int) core.Transaction {
	return core.Transaction{
		ID:         fmt.Sprintf("txn_%d", id),
		Timestamp:  ts,
		Outcome:    outcome,
		LatencyMS:  latency,
		Method:     core.MethodCard,
		Issuer:     issuer,
		MerchantID: "merchant_1",
		Amount:     100,
	}
}

func TestStreamIngestValidation(t *testing.T) {
	s := NewStream(100, nil)

	good := txn(1, 1700000000000, "HDFC", core.OutcomeSuccess, 150)
	raw, err := json.Marshal(good)
	require.NoError(t, err)
	require.NoError(t, s.Ingest(raw))

	require.Error(t, s.Ingest([]byte("{not json")))
	require.Error(t, s.Ingest([]byte(`{"transaction_id":"","timestamp":1}`)))

	st := s.Stats()
	assert.Equal(t, int64(1), st.TotalIngested)
	assert.Equal(t, int64(2), st.TotalInvalid)
	assert.Equal(t, 1, st.BufferSize)
	assert.InDelta(t, 1.0/3.0, st.SuccessRate, 1e-9)
}

func TestStreamIngestBatch(t *testing.T) {
	s := NewStream(100, nil)
	batch := make([][]byte, 0, 3)
	for i := 0; i < 2; i++ {
		raw, _ := json.Marshal(txn(i, 1700000000000, "HDFC", core.OutcomeSuccess, 100))
		batch = append(batch, raw)
	}
	batch = append(batch, []byte("junk"))

	assert.Equal(t, 2, s.IngestBatch(batch))
	assert.Len(t, s.Recent(0), 2)
}

func TestWindowTimeFilter(t *testing.T) {
	w := NewWindow(300000)
	now := int64(1700000600000)

	var source []core.Transaction
	for i := 0; i < 60; i++ {
		// first 30 are stale, rest inside the window
		ts := now - 400000
		if i >= 30 {
			ts = now - 100000 + int64(i)
		}
		source = append(source, txn(i, ts, "HDFC", core.OutcomeSuccess, 100))
	}
	w.Update(source, now)

	// 30 in-window is below the minimum, so the last 50 are used
	assert.Len(t, w.Transactions(), 50)

	lo, hi := w.TimeRange()
	assert.Less(t, lo, hi)
}

func TestWindowKeepsTimeFilterWhenPopulated(t *testing.T) {
	w := NewWindow(300000)
	now := int64(1700000600000)

	var source []core.Transaction
	for i := 0; i < 80; i++ {
		ts := now - 100
		if i < 10 {
			ts = now - 500000 // stale
		}
		source = append(source, txn(i, ts, "HDFC", core.OutcomeSuccess, 100))
	}
	w.Update(source, now)
	assert.Len(t, w.Transactions(), 70)
}

func TestWindowStatsCached(t *testing.T) {
	w := NewWindow(300000)
	now := int64(1700000000000)
	w.Update([]core.Transaction{
		txn(1, now, "HDFC", core.OutcomeSuccess, 100),
		txn(2, now, "HDFC", core.OutcomeSoftFail, 300),
	}, now)

	st := w.Stats()
	assert.Equal(t, 2, st.TotalTransactions)
	assert.InDelta(t, 0.5, st.SuccessRate, 1e-9)

	w.Update(nil, now)
	assert.Zero(t, w.Stats().TotalTransactions)
}

func TestWindowGrouping(t *testing.T) {
	w := NewWindow(300000)
	now := int64(1700000000000)
	w.Update([]core.Transaction{
		txn(1, now, "HDFC", core.OutcomeSuccess, 100),
		txn(2, now, "HDFC", core.OutcomeSuccess, 100),
		txn(3, now, "ICICI", core.OutcomeSuccess, 100),
	}, now)

	byIssuer := w.GroupByIssuer()
	assert.Len(t, byIssuer["issuer:HDFC"], 2)
	assert.Len(t, byIssuer["issuer:ICICI"], 1)

	byMethod := w.GroupByMethod()
	assert.Len(t, byMethod["method:card"], 3)
}

func TestRollingBaselineFirstSampleReplacesPriors(t *testing.T) {
	b := NewRollingBaseline("issuer:HDFC", 0.2)
	b.Update(0.8, 400, 1.0, 1700000000000)

	assert.Equal(t, 0.8, b.SuccessRateEWMA)
	assert.Equal(t, 400.0, b.LatencyEWMA)
	assert.Equal(t, 1, b.SampleCount)
	// priors' variance untouched on first sample
	assert.Equal(t, 0.0025, b.SuccessRateVariance)
	assert.False(t, b.Ready())
}

func TestRollingBaselineEWMA(t *testing.T) {
	b := NewRollingBaseline("g", 0.2)
	b.Update(0.9, 200, 0.5, 1)
	b.Update(1.0, 200, 0.5, 2)

	// mean = 0.2*1.0 + 0.8*0.9
	assert.InDelta(t, 0.92, b.SuccessRateEWMA, 1e-9)
	// variance folds against the updated mean
	assert.InDelta(t, 0.2*(1.0-0.92)*(1.0-0.92)+0.8*0.0025, b.SuccessRateVariance, 1e-9)

	b.Update(0.95, 200, 0.5, 3)
	assert.True(t, b.Ready())
}

func TestRollingBaselineZScoreFloors(t *testing.T) {
	b := NewRollingBaseline("g", 0.2)
	for i := 0; i < 20; i++ {
		b.Update(0.95, 200, 0.5, int64(i))
	}
	// variance decays toward zero; the floor keeps Z finite
	assert.Equal(t, minSuccessStd, b.Std(MetricSuccessRate))
	z := b.ZScore(0.75, MetricSuccessRate)
	assert.InDelta(t, 20.0, z, 0.5)
}

func TestBaselineManagerGroups(t *testing.T) {
	m := NewBaselineManager(0.2, nil)
	now := int64(1700000000000)
	m.UpdateAll([]core.Transaction{
		txn(1, now, "HDFC", core.OutcomeSuccess, 100),
		txn(2, now, "ICICI", core.OutcomeSoftFail, 300),
	}, now)

	require.NotNil(t, m.Baseline("issuer:HDFC"))
	require.NotNil(t, m.Baseline("issuer:ICICI"))
	require.NotNil(t, m.Baseline("method:card"))
	require.NotNil(t, m.Baseline("global"))
	assert.Nil(t, m.Baseline("issuer:AXIS"))

	g := m.Baseline("global")
	assert.InDelta(t, 0.5, g.SuccessRateEWMA, 1e-9)
	assert.Len(t, m.Dimensions(), 4)
}
