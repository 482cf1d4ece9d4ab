package drift

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampOnRegistration(t *testing.T) {
	e := NewEngine(DefaultConfig(), 1, nil)
	e.AddIssuer("HDFC", 1.5, 10, 0.9)

	is, ok := e.State("HDFC")
	require.True(t, ok)
	assert.Equal(t, 1.0, is.SuccessRate)
	assert.Equal(t, 50.0, is.LatencyMS)
	assert.Equal(t, 0.5, is.RetryProb)
}

func TestUpdateStaysInBounds(t *testing.T) {
	e := NewEngine(DefaultConfig(), 42, nil)
	e.AddIssuer("HDFC", 0.95, 200, 0.05)
	e.AddIssuer("ICICI", 0.97, 180, 0.03)

	now := 0.0
	for i := 0; i < 1000; i++ {
		now += 0.1
		e.Update(0.1, now)
	}
	for _, is := range e.States() {
		assert.GreaterOrEqual(t, is.SuccessRate, 0.0)
		assert.LessOrEqual(t, is.SuccessRate, 1.0)
		assert.GreaterOrEqual(t, is.LatencyMS, 50.0)
		assert.LessOrEqual(t, is.LatencyMS, 2000.0)
		assert.GreaterOrEqual(t, is.RetryProb, 0.0)
		assert.LessOrEqual(t, is.RetryProb, 0.5)
		assert.Equal(t, now, is.LastUpdated)
	}
}

func TestMeanReversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SigmaSuccess = 0
	cfg.SigmaLatency = 0
	cfg.SigmaRetry = 0
	cfg.RetrySpikeProb = 0

	e := NewEngine(cfg, 7, nil)
	e.AddIssuer("AXIS", 0.5, 1000, 0.4)

	for i := 0; i < 2000; i++ {
		e.Update(0.1, float64(i)*0.1)
	}
	is, _ := e.State("AXIS")
	assert.InDelta(t, cfg.MeanSuccess, is.SuccessRate, 0.01)
	assert.InDelta(t, cfg.MeanLatency, is.LatencyMS, 5)
	// retry mean sits slightly below MeanRetry because of the decay term
	assert.Less(t, math.Abs(is.RetryProb-cfg.MeanRetry), 0.02)
}

func TestDeterministicWithSeed(t *testing.T) {
	run := func() []IssuerState {
		e := NewEngine(DefaultConfig(), 99, nil)
		e.AddIssuer("HDFC", 0.95, 200, 0.05)
		e.AddIssuer("SBI", 0.94, 210, 0.06)
		for i := 0; i < 100; i++ {
			e.Update(0.5, float64(i)*0.5)
		}
		return e.States()
	}
	assert.Equal(t, run(), run())
}

func TestForce(t *testing.T) {
	e := NewEngine(DefaultConfig(), 1, nil)
	e.AddIssuer("HDFC", 0.95, 200, 0.05)
	e.Force("HDFC", 0.05, 2000)

	is, _ := e.State("HDFC")
	assert.Equal(t, 0.05, is.SuccessRate)
	assert.Equal(t, 2000.0, is.LatencyMS)
}

func TestTimeScale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SigmaSuccess = 0
	cfg.SigmaLatency = 0
	cfg.SigmaRetry = 0
	cfg.RetrySpikeProb = 0

	slow := NewEngine(cfg, 1, nil)
	slow.AddIssuer("X", 0.5, 200, 0.05)
	slow.Update(1, 1)

	fast := NewEngine(cfg, 1, nil)
	fast.AddIssuer("X", 0.5, 200, 0.05)
	fast.SetTimeScale(10)
	fast.Update(0.1, 1)

	a, _ := slow.State("X")
	b, _ := fast.State("X")
	assert.InDelta(t, a.SuccessRate, b.SuccessRate, 1e-12)
}
