package reason

import (
	"math"
	"time"

	"github.com/payops/sentinel/internal/core"
)

// BeliefManager maintains the agent's belief state across cycles.
// Hypotheses accumulate until explicitly cleared.
type BeliefManager struct {
	current core.BeliefState
}

// NewBeliefManager starts with a healthy, certain state.
func NewBeliefManager() *BeliefManager {
	return &BeliefManager{current: healthyState(time.Now().UnixMilli())}
}

// Update merges new hypotheses and recomputes health and uncertainty.
// Health drops with average hypothesis confidence; uncertainty grows as
// confidences polarize away from 0.5.
func (m *BeliefManager) Update(newHypotheses []core.Hypothesis, timestamp int64) core.BeliefState {
	all := append(append([]core.Hypothesis(nil), m.current.ActiveHypotheses...), newHypotheses...)

	health, uncertainty := 1.0, 0.0
	if len(all) > 0 {
		var confSum, varSum float64
		for _, h := range all {
			confSum += h.Confidence
			varSum += (h.Confidence - 0.5) * (h.Confidence - 0.5)
		}
		n := float64(len(all))
		health = 1.0 - (confSum/n)*0.5
		uncertainty = math.Min(varSum/n*2, 1.0)
	}

	m.current = core.BeliefState{
		ActiveHypotheses:  all,
		SystemHealthScore: health,
		UncertaintyLevel:  uncertainty,
		LastUpdated:       timestamp,
	}
	return m.current
}

// Current returns the belief state as of the last update.
func (m *BeliefManager) Current() core.BeliefState {
	return m.current
}

// Clear drops all hypotheses and resets to full health.
func (m *BeliefManager) Clear(timestamp int64) {
	m.current = healthyState(timestamp)
}

func healthyState(timestamp int64) core.BeliefState {
	return core.BeliefState{
		SystemHealthScore: 1.0,
		UncertaintyLevel:  0.0,
		LastUpdated:       timestamp,
	}
}
