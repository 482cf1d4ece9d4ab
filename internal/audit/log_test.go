package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/decision"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := NewLog(dir, nil)
	require.NoError(t, err)
	return l, dir
}

func TestLogDecisionWritesDayFile(t *testing.T) {
	l, dir := newTestLog(t)
	l.SetClock(func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) })

	d := &core.Decision{
		ShouldAct: true,
		SelectedOption: &core.InterventionOption{
			Kind:   core.InterventionSuppressPath,
			Target: "issuer:HDFC",
		},
		Rationale: "Selected suppress_path with NRV=$1994.45 (recovery=$2000.00, cost=$5.05)",
	}
	id := l.LogDecision(nil, nil, nil, d, 0.82, &decision.NRVResult{NRV: 1994.45})
	assert.NotEmpty(t, id)

	data, err := os.ReadFile(filepath.Join(dir, "audit_20260315.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"decision"`)
	assert.Contains(t, string(data), `"nrv":1994.45`)
	assert.Contains(t, string(data), id)
}

func TestDayRoll(t *testing.T) {
	l, dir := newTestLog(t)

	day := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return day })
	l.LogRollback("int-1", "expired", true)

	day = day.Add(2 * time.Minute)
	l.LogRollback("int-2", "manual", false)

	_, err := os.Stat(filepath.Join(dir, "audit_20260315.jsonl"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "audit_20260316.jsonl"))
	assert.NoError(t, err)
}

func TestQueryEventsFiltersTypeAndRange(t *testing.T) {
	l, _ := newTestLog(t)

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })
	l.LogAction(core.ExecutionResult{
		Success:          true,
		InterventionID:   "int-1",
		InterventionKind: core.InterventionSuppressPath,
		Target:           "issuer:HDFC",
	}, 0.15)

	now = now.Add(time.Hour)
	l.LogRollback("int-1", "expired", true)

	now = now.Add(time.Hour)
	l.LogAction(core.ExecutionResult{
		Success:          false,
		InterventionID:   "int-2",
		InterventionKind: core.InterventionRerouteTraffic,
		Target:           "issuer:AXIS",
		Error:            "Guardrail violation",
	}, 0.4)

	actions, err := l.QueryEvents(EventAction, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "int-1", actions[0]["action_id"])
	assert.Equal(t, "int-2", actions[1]["action_id"])

	start := time.Date(2026, 3, 15, 11, 30, 0, 0, time.UTC).UnixMilli()
	late, err := l.QueryEvents(EventAction, start, 0, 0)
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, "int-2", late[0]["action_id"])

	rollbacks, err := l.QueryEvents(EventRollback, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, rollbacks, 1)
	assert.Equal(t, true, rollbacks[0]["automatic"])
}

func TestQueryLimit(t *testing.T) {
	l, _ := newTestLog(t)
	for i := 0; i < 5; i++ {
		l.LogRollback("int", "expired", true)
	}
	out, err := l.QueryEvents(EventRollback, 0, 0, 3)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestLogLearningFields(t *testing.T) {
	l, _ := newTestLog(t)
	l.LogLearning("int-1",
		map[string]interface{}{"success_rate_change": 0.1},
		map[string]interface{}{"success_rate_change": 0.08},
		0.9, true, []string{"Intervention achieved expected outcome"})

	out, err := l.QueryEvents(EventLearning, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "int-1", out[0]["intervention_id"])
	assert.Equal(t, 0.9, out[0]["accuracy"])
	assert.Equal(t, true, out[0]["success"])
}
