// Package learning closes the loop after an intervention runs: it
// compares promised outcomes against measured ones, detects unintended
// consequences and recommends parameter adjustments.
package learning

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/payops/sentinel/internal/core"
)

// Evaluator scores intervention outcomes against expectations.
type Evaluator struct {
	log *slog.Logger

	mu          sync.Mutex
	evaluations map[string]core.Evaluation
}

// NewEvaluator builds an evaluator.
func NewEvaluator(log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{log: log, evaluations: make(map[string]core.Evaluation)}
}

// Evaluate compares the expected and measured outcome of one
// intervention. Accuracy blends success-rate and latency prediction
// error; success requires at least half the promised lift and no
// unexpected effects.
func (e *Evaluator) Evaluate(interventionID string, expected core.OutcomeEstimate, actual core.OutcomeMeasurement) core.Evaluation {
	srError := abs(expected.ExpectedSuccessRateChange - actual.SuccessRateChange)
	latError := abs(expected.ExpectedLatencyChange - actual.LatencyChange)
	accuracy := 1.0 - min(1.0, (srError+latError/1000.0)/2.0)

	success := actual.SuccessRateChange >= expected.ExpectedSuccessRateChange*0.5 &&
		len(actual.UnexpectedEffects) == 0

	var learnings []string
	if success {
		learnings = append(learnings,
			fmt.Sprintf("Intervention achieved %.2f%% success rate improvement", actual.SuccessRateChange*100))
	} else {
		learnings = append(learnings,
			fmt.Sprintf("Intervention underperformed: %.2f%% vs expected %.2f%%",
				actual.SuccessRateChange*100, expected.ExpectedSuccessRateChange*100))
	}
	if len(actual.UnexpectedEffects) > 0 {
		learnings = append(learnings,
			fmt.Sprintf("Unexpected effects: %s", joinEffects(actual.UnexpectedEffects)))
	}

	ev := core.Evaluation{
		InterventionID:  interventionID,
		ExpectedOutcome: expected,
		ActualOutcome:   actual,
		AccuracyScore:   accuracy,
		Success:         success,
		Learnings:       learnings,
	}

	e.mu.Lock()
	e.evaluations[interventionID] = ev
	e.mu.Unlock()

	e.log.Info("outcome evaluated",
		"intervention_id", interventionID, "accuracy", accuracy, "success", success)
	return ev
}

// Evaluation returns a stored evaluation, if one exists.
func (e *Evaluator) Evaluation(interventionID string) (core.Evaluation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.evaluations[interventionID]
	return ev, ok
}

func joinEffects(effects []string) string {
	out := ""
	for i, s := range effects {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
