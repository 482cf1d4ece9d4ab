package learning

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/payops/sentinel/internal/core"
)

// ModelUpdater tunes decision parameters from evaluation outcomes.
type ModelUpdater struct {
	learningRate  float64
	minConfidence float64
	maxConfidence float64
	log           *slog.Logger

	mu      sync.Mutex
	history map[string][]float64
}

// NewModelUpdater builds an updater; zero values take defaults.
func NewModelUpdater(learningRate float64, log *slog.Logger) *ModelUpdater {
	if learningRate <= 0 {
		learningRate = 0.1
	}
	if log == nil {
		log = slog.Default()
	}
	return &ModelUpdater{
		learningRate:  learningRate,
		minConfidence: 0.3,
		maxConfidence: 0.95,
		log:           log,
		history:       make(map[string][]float64),
	}
}

// AdjustConfidence nudges a confidence level toward the measured
// accuracy: accurate successes earn trust, failures lose it.
func (u *ModelUpdater) AdjustConfidence(current, accuracy float64, success bool) float64 {
	var adjustment float64
	switch {
	case success && accuracy > 0.8:
		adjustment = u.learningRate * (accuracy - 0.5)
	case !success:
		adjustment = -u.learningRate * (1.0 - accuracy)
	default:
		adjustment = u.learningRate * (accuracy - 0.7) * 0.5
	}

	adjusted := current + adjustment
	if adjusted < u.minConfidence {
		adjusted = u.minConfidence
	}
	if adjusted > u.maxConfidence {
		adjusted = u.maxConfidence
	}
	u.log.Info("confidence adjusted",
		"from", current, "to", adjusted, "accuracy", accuracy, "success", success)
	return adjusted
}

// LearnFromDenial reacts to a human rejecting an intervention by
// recommending a tighter blast-radius bound for that type.
func (u *ModelUpdater) LearnFromDenial(kind core.InterventionKind, blastRadius float64, reason string) core.ModelAdjustment {
	recommended := blastRadius * 0.8
	if recommended < 0.1 {
		recommended = 0.1
	}
	adj := core.ModelAdjustment{
		Parameter:        fmt.Sprintf("%s_max_blast_radius", kind),
		CurrentValue:     0.3,
		RecommendedValue: recommended,
		Rationale:        fmt.Sprintf("Human denied intervention with blast_radius=%.2f: %s", blastRadius, reason),
	}
	u.log.Info("learning from denial", "rationale", adj.Rationale)
	return adj
}

// UpdateThresholds recommends threshold changes after a poor outcome.
func (u *ModelUpdater) UpdateThresholds(ev core.Evaluation) []core.ModelAdjustment {
	var adjustments []core.ModelAdjustment

	if !ev.Success && ev.AccuracyScore < 0.5 {
		adjustments = append(adjustments, core.ModelAdjustment{
			Parameter:        "min_confidence_for_action",
			CurrentValue:     0.7,
			RecommendedValue: 0.8,
			Rationale:        fmt.Sprintf("Low accuracy (%.2f) suggests need for higher confidence", ev.AccuracyScore),
		})
	}
	if !ev.Success && len(ev.ActualOutcome.UnexpectedEffects) > 0 {
		adjustments = append(adjustments, core.ModelAdjustment{
			Parameter:        "max_blast_radius_for_autonomy",
			CurrentValue:     0.3,
			RecommendedValue: 0.2,
			Rationale:        fmt.Sprintf("Unexpected effects detected: %s", strings.Join(ev.ActualOutcome.UnexpectedEffects, ", ")),
		})
	}

	u.mu.Lock()
	for _, adj := range adjustments {
		u.history[adj.Parameter] = append(u.history[adj.Parameter], adj.RecommendedValue)
		u.log.Info("recommended adjustment",
			"parameter", adj.Parameter, "from", adj.CurrentValue, "to", adj.RecommendedValue)
	}
	u.mu.Unlock()
	return adjustments
}

// ParameterTrend reports whether a parameter's recent recommendations
// are increasing, decreasing or stable. Empty when there is too little
// history.
func (u *ModelUpdater) ParameterTrend(parameter string) string {
	u.mu.Lock()
	defer u.mu.Unlock()

	history := u.history[parameter]
	if len(history) < 2 {
		return ""
	}
	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	increasing, decreasing := true, true
	for i := 0; i < len(recent)-1; i++ {
		if recent[i] >= recent[i+1] {
			increasing = false
		}
		if recent[i] <= recent[i+1] {
			decreasing = false
		}
	}
	switch {
	case increasing:
		return "increasing"
	case decreasing:
		return "decreasing"
	default:
		return "stable"
	}
}
