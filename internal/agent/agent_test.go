package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payops/sentinel/internal/config"
	"github.com/payops/sentinel/internal/core"
)

// baseMS is a Friday morning during the Black Friday window, so
// incident-memory lookups behave deterministically.
const baseMS = int64(1700809200000)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Simulation.Seed = 42
	cfg.Infra.AuditDir = ""
	cfg.Infra.StateDir = ""
	return cfg
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewRuntime(testConfig(), nil, nil, quietLogger())
	require.NoError(t, err)
	return rt
}

func mkTxn(i int, issuer string, ts int64, outcome core.Outcome, errCode string, latency, retry int) core.Transaction {
	return core.Transaction{
		ID:         fmt.Sprintf("txn_%d", i),
		Timestamp:  ts,
		Outcome:    outcome,
		ErrorCode:  errCode,
		LatencyMS:  latency,
		RetryCount: retry,
		Method:     core.MethodCard,
		Issuer:     issuer,
		MerchantID: "merchant_1",
		Amount:     250,
	}
}

// healthyBatch spreads n transactions at ~90% success across four
// issuers just before nowMS.
func healthyBatch(n int, nowMS int64) []core.Transaction {
	issuers := []string{"HDFC", "ICICI", "AXIS", "SBI"}
	out := make([]core.Transaction, 0, n)
	for i := 0; i < n; i++ {
		outcome, errCode := core.OutcomeSuccess, ""
		// One failure per issuer per 40 transactions keeps every
		// issuer comfortably under the degradation threshold.
		switch i % 40 {
		case 9, 18, 27, 36:
			outcome, errCode = core.OutcomeSoftFail, "TIMEOUT"
		}
		out = append(out, mkTxn(i, issuers[i%len(issuers)], nowMS-int64(n-i)*100, outcome, errCode, 200, 0))
	}
	return out
}

func TestCycleNormalTrafficNoAction(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Stream.AddBatch(healthyBatch(50, baseMS))

	res := rt.Orchestrator.RunCycle(context.Background(), baseMS)

	assert.Equal(t, 1, res.CycleNumber)
	assert.Equal(t, 50, res.Stats.TotalTransactions)
	assert.Empty(t, res.Patterns)
	assert.False(t, res.Decision.ShouldAct)
	assert.Nil(t, res.Execution)
	assert.Equal(t,
		"System operating normally with no significant anomalies. No intervention required at this time.",
		res.Explanation.ExecutiveSummary)
}

func TestCycleIssuerOutageTriggersSuppression(t *testing.T) {
	rt := newTestRuntime(t)

	batch := make([]core.Transaction, 0, 100)
	for i := 0; i < 100; i++ {
		ts := baseMS - int64(100-i)*50
		if i%2 == 0 {
			batch = append(batch, mkTxn(i, "ICICI", ts, core.OutcomeSuccess, "", 180, 0))
			continue
		}
		if i%3 != 0 {
			batch = append(batch, mkTxn(i, "HDFC", ts, core.OutcomeHardFail, "ISSUER_DOWN", 500, 1))
		} else {
			batch = append(batch, mkTxn(i, "HDFC", ts, core.OutcomeSuccess, "", 200, 0))
		}
	}
	rt.Stream.AddBatch(batch)

	res := rt.Orchestrator.RunCycle(context.Background(), baseMS)

	kinds := make(map[core.PatternKind]bool)
	for _, p := range res.Patterns {
		kinds[p.Kind] = true
	}
	assert.True(t, kinds[core.PatternIssuerDegradation], "expected issuer degradation, got %v", kinds)

	require.True(t, res.Decision.ShouldAct)
	require.NotNil(t, res.Decision.SelectedOption)
	assert.Equal(t, core.InterventionSuppressPath, res.Decision.SelectedOption.Kind)
	assert.Equal(t, "issuer:HDFC", res.Decision.SelectedOption.Target)
	assert.False(t, res.Decision.RequiresHumanApproval)

	require.NotNil(t, res.Execution)
	assert.True(t, res.Execution.Success)
	require.NotNil(t, res.NRV)
	assert.Greater(t, res.NRV.NRV, 0.0)

	// A similar Black Friday incident exists in seeded memory.
	require.NotNil(t, res.Playbook)
	assert.Equal(t, "suppress_path", res.Playbook.RecommendedAction)
}

func TestCycleRetryStormDetected(t *testing.T) {
	rt := newTestRuntime(t)

	batch := make([]core.Transaction, 0, 80)
	for i := 0; i < 80; i++ {
		ts := baseMS - int64(80-i)*50
		if i%3 == 0 {
			batch = append(batch, mkTxn(i, "HDFC", ts, core.OutcomeSoftFail, "TIMEOUT", 400, 5))
		} else {
			batch = append(batch, mkTxn(i, "HDFC", ts, core.OutcomeSuccess, "", 200, 0))
		}
	}
	rt.Stream.AddBatch(batch)

	res := rt.Orchestrator.RunCycle(context.Background(), baseMS)

	found := false
	for _, p := range res.Patterns {
		if p.Kind == core.PatternRetryStorm {
			found = true
		}
	}
	assert.True(t, found, "expected retry storm among %v", res.Patterns)
	assert.NotEmpty(t, res.Hypotheses)
}

func TestCycleGradualDegradationRaisesZScore(t *testing.T) {
	rt := newTestRuntime(t)

	failShares := []int{0, 0, 6, 30} // failures per 60-txn window
	var res CycleResult
	nowMS := baseMS
	for cycle, failures := range failShares {
		batch := make([]core.Transaction, 0, 60)
		for i := 0; i < 60; i++ {
			ts := nowMS - int64(60-i)*100
			if i < failures {
				batch = append(batch, mkTxn(cycle*60+i, "HDFC", ts, core.OutcomeHardFail, "ISSUER_DOWN", 200, 0))
			} else {
				batch = append(batch, mkTxn(cycle*60+i, "HDFC", ts, core.OutcomeSuccess, "", 200, 0))
			}
		}
		rt.Stream.AddBatch(batch)
		res = rt.Orchestrator.RunCycle(context.Background(), nowMS)
		nowMS += 400000 // next window excludes this batch
	}

	assert.GreaterOrEqual(t, res.ZScore, 2.0, "final cycle should carry an anomaly z-score")

	hasZ := false
	for i := range res.Patterns {
		if res.Patterns[i].ZScore() >= 2.0 {
			hasZ = true
		}
	}
	assert.True(t, hasZ, "expected a pattern with z-score evidence")
}

func TestMinimumActionFrequencyForcesAlert(t *testing.T) {
	rt := newTestRuntime(t)

	nowMS := baseMS
	var res CycleResult
	for cycle := 0; cycle < 6; cycle++ {
		batch := healthyBatch(60, nowMS)
		for i := range batch {
			batch[i].ID = fmt.Sprintf("txn_%d_%d", cycle, i)
		}
		rt.Stream.AddBatch(batch)
		res = rt.Orchestrator.RunCycle(context.Background(), nowMS)
		if cycle < 5 {
			assert.False(t, res.Decision.ShouldAct, "cycle %d should not act", cycle+1)
		}
		nowMS += 400000
	}

	require.True(t, res.Decision.ShouldAct)
	require.NotNil(t, res.Decision.SelectedOption)
	assert.Equal(t, core.InterventionAlertOps, res.Decision.SelectedOption.Kind)
	assert.Contains(t, res.Decision.Rationale, "[MIN FREQUENCY RULE]")
	require.NotNil(t, res.Execution)
	assert.True(t, res.Execution.Success)
}

func TestCyclePersistsAgentState(t *testing.T) {
	cfg := testConfig()
	cfg.Infra.StateDir = t.TempDir()
	rt, err := NewRuntime(cfg, nil, nil, quietLogger())
	require.NoError(t, err)

	rt.Stream.AddBatch(healthyBatch(50, baseMS))
	rt.Orchestrator.RunCycle(context.Background(), baseMS)

	states := rt.Orchestrator.c.States
	require.NotNil(t, states)
	state, err := states.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, baseMS, state.LastUpdated)
	assert.LessOrEqual(t, len(state.RecentObservations.Transactions), stateTxnTail)
	assert.Equal(t, 50, state.RecentObservations.AggregateStats.TotalTransactions)
}

func TestLoopDemoModeForcesIntervention(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.DemoMode = true
	duration := 80.0
	cfg.Simulation.DurationSeconds = &duration

	rt, err := NewRuntime(cfg, nil, nil, quietLogger())
	require.NoError(t, err)

	// Deterministic clock: every call advances simulated time 100ms.
	current := time.Unix(1700809200, 0)
	rt.Loop.SetClock(func() time.Time {
		current = current.Add(100 * time.Millisecond)
		return current
	})
	rt.Generator.SetClock(func() int64 { return current.UnixMilli() })
	rt.Loop.SetSleep(func(time.Duration) {})

	require.NoError(t, rt.Loop.Run(context.Background()))

	assert.GreaterOrEqual(t, rt.Orchestrator.CycleCount(), 5)

	snap := rt.Builder.Build(current, 0, 100, nil, 0, 0)
	forced := false
	for _, rec := range snap.InterventionHistory {
		if rec.Action == string(core.InterventionRerouteTraffic) && rec.Result == "Triggered" {
			forced = true
			assert.Equal(t, "+5.0%", rec.Rate)
			assert.True(t, strings.Contains(rec.Reason, "Synthetic intervention"), rec.Reason)
		}
	}
	assert.True(t, forced, "demo mode should have recorded a forced reroute")
	assert.NotEmpty(t, rt.Feedback.Active(), "forced intervention should shape traffic")
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	rt, err := NewRuntime(cfg, nil, nil, quietLogger())
	require.NoError(t, err)
	rt.Loop.SetSleep(func(time.Duration) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rt.Loop.Run(ctx))
}

func TestLoopStatus(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Stream.AddBatch(healthyBatch(50, baseMS))
	rt.Orchestrator.RunCycle(context.Background(), baseMS)

	status := rt.Loop.Status()
	assert.Equal(t, 1, status["cycle_count"])
	assert.Equal(t, "No active interventions", status["intervention_status"])
}

func TestParseNRV(t *testing.T) {
	assert.Equal(t, 5000.0, parseNRV("Synthetic intervention triggered for demo cycle 5. NRV=$5,000"))
	assert.Equal(t, 194.45, parseNRV("Selected suppress_path with NRV=$194.45 (recovery=$200.00, cost=$5.05)"))
	assert.Equal(t, 0.0, parseNRV("no economics here"))
}
