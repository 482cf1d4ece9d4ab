// Package audit appends the agent's decisions, actions, learnings and
// rollbacks to daily JSONL files so every intervention leaves a trail.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/decision"
)

// Event types recorded in the trail.
const (
	EventDecision = "decision"
	EventAction   = "action"
	EventLearning = "learning"
	EventRollback = "rollback"
)

// Entry is one audit record. Fields vary by event type; unused ones
// are omitted.
type Entry map[string]interface{}

// Log appends audit entries to audit_YYYYMMDD.jsonl under one
// directory, rolling to a new file at midnight.
type Log struct {
	dir string
	log *slog.Logger
	now func() time.Time

	mu sync.Mutex
}

// NewLog builds an audit log rooted at dir, creating it if needed.
func NewLog(dir string, log *slog.Logger) (*Log, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &Log{dir: dir, log: log, now: time.Now}, nil
}

// SetClock overrides the wall clock for tests.
func (l *Log) SetClock(now func() time.Time) { l.now = now }

func (l *Log) append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	entry["timestamp"] = t.UnixMilli()
	entry["datetime"] = t.UTC().Format(time.RFC3339)

	data, err := json.Marshal(entry)
	if err != nil {
		l.log.Error("audit marshal failed", "err", err)
		return
	}
	path := filepath.Join(l.dir, fmt.Sprintf("audit_%s.jsonl", t.Format("20060102")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.log.Error("audit open failed", "path", path, "err", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		l.log.Error("audit write failed", "path", path, "err", err)
	}
}

// LogDecision records one decision cycle's verdict.
func (l *Log) LogDecision(patterns []core.DetectedPattern, hypotheses []core.Hypothesis,
	options []core.InterventionOption, d *core.Decision, confidence float64, nrv *decision.NRVResult) string {

	id := uuid.NewString()
	entry := Entry{
		"event_type":        EventDecision,
		"decision_id":       id,
		"patterns":          patterns,
		"hypotheses":        hypotheses,
		"options":           options,
		"selected_option":   d.SelectedOption,
		"rationale":         d.Rationale,
		"confidence":        confidence,
		"requires_approval": d.RequiresHumanApproval,
	}
	if nrv != nil {
		entry["nrv"] = nrv.NRV
	}
	l.append(entry)
	l.log.Info("decision logged", "decision_id", id, "should_act", d.ShouldAct)
	return id
}

// LogAction records an executed (or blocked) intervention.
func (l *Log) LogAction(result core.ExecutionResult, preMortemRisk float64) {
	l.append(Entry{
		"event_type":      EventAction,
		"action_id":       result.InterventionID,
		"action_type":     result.InterventionKind,
		"target":          result.Target,
		"parameters":      result.ActualParameters,
		"success":         result.Success,
		"error":           result.Error,
		"pre_mortem_risk": preMortemRisk,
	})
	l.log.Info("action logged", "action_id", result.InterventionID, "success", result.Success)
}

// LogLearning records an intervention's measured outcome.
func (l *Log) LogLearning(interventionID string, expected, actual map[string]interface{},
	accuracy float64, success bool, learnings []string) {

	l.append(Entry{
		"event_type":       EventLearning,
		"learning_id":      uuid.NewString(),
		"intervention_id":  interventionID,
		"expected_outcome": expected,
		"actual_outcome":   actual,
		"accuracy":         accuracy,
		"success":          success,
		"learnings":        learnings,
	})
}

// LogRollback records an intervention reversal.
func (l *Log) LogRollback(interventionID, reason string, automatic bool) {
	l.append(Entry{
		"event_type":      EventRollback,
		"rollback_id":     uuid.NewString(),
		"intervention_id": interventionID,
		"reason":          reason,
		"automatic":       automatic,
	})
}

// QueryEvents scans the day files in order and returns entries matching
// the event type and time range. Zero bounds are open; a zero limit
// means 100.
func (l *Log) QueryEvents(eventType string, startMS, endMS int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "audit_") && strings.HasSuffix(name, ".jsonl") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	var out []Entry
	for _, name := range files {
		f, err := os.Open(filepath.Join(l.dir, name))
		if err != nil {
			return nil, err
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			var entry Entry
			if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
				l.log.Warn("skipping malformed audit line", "file", name, "err", err)
				continue
			}
			if eventType != "" && entry["event_type"] != eventType {
				continue
			}
			ts, _ := entry["timestamp"].(float64)
			if startMS > 0 && int64(ts) < startMS {
				continue
			}
			if endMS > 0 && int64(ts) > endMS {
				continue
			}
			out = append(out, entry)
			if len(out) >= limit {
				f.Close()
				return out, nil
			}
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
