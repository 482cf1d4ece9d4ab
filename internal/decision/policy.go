package decision

import (
	"fmt"
	"log/slog"

	"github.com/payops/sentinel/internal/core"
)

// Policy defaults.
const (
	DefaultMinConfidence       = 0.7
	DefaultMaxBlastRadius      = 0.3
	DefaultMinActionFrequency  = 6
	defaultAssumedVolume       = 1000
)

// Policy selects an intervention per cycle. Economics gate normal
// cycles (positive NRV only); the minimum-action-frequency rule forces
// an action after too many idle cycles. Owned by the loop goroutine.
type Policy struct {
	minConfidence         float64
	maxBlastRadius        float64
	minActionFrequency    int
	cyclesSinceLastAction int
	nrv                   *NRVCalculator
	log                   *slog.Logger
}

// NewPolicy builds a policy; non-positive arguments take defaults.
func NewPolicy(minConfidence, maxBlastRadius float64, minActionFrequency int, nrv *NRVCalculator, log *slog.Logger) *Policy {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if maxBlastRadius <= 0 {
		maxBlastRadius = DefaultMaxBlastRadius
	}
	if minActionFrequency <= 0 {
		minActionFrequency = DefaultMinActionFrequency
	}
	if nrv == nil {
		nrv = NewNRVCalculator(0, 0, 0, log)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Policy{
		minConfidence:      minConfidence,
		maxBlastRadius:     maxBlastRadius,
		minActionFrequency: minActionFrequency,
		nrv:                nrv,
		log:                log,
	}
}

// CyclesSinceLastAction reports the idle-cycle counter.
func (p *Policy) CyclesSinceLastAction() int {
	return p.cyclesSinceLastAction
}

// Decide picks an option for this cycle.
func (p *Policy) Decide(
	options []core.InterventionOption,
	beliefs core.BeliefState,
	currentVolume int,
) core.Decision {
	if currentVolume <= 0 {
		currentVolume = defaultAssumedVolume
	}
	if len(options) == 0 {
		p.cyclesSinceLastAction++
		return noAction("No options available")
	}

	actionOptions := make([]core.InterventionOption, 0, len(options))
	for _, opt := range options {
		if opt.IsAction() {
			actionOptions = append(actionOptions, opt)
		}
	}

	// guaranteed action once the idle counter hits the frequency floor
	if p.cyclesSinceLastAction >= p.minActionFrequency-1 {
		return p.forcedDecision(actionOptions, beliefs, currentVolume)
	}

	if len(actionOptions) == 0 {
		p.cyclesSinceLastAction++
		return noAction(fmt.Sprintf(
			"Only no-action option available (cycle %d since last action)",
			p.cyclesSinceLastAction))
	}

	ranked := p.nrv.Rank(actionOptions, currentVolume)
	best := ranked[0]
	if !p.nrv.ShouldAct(best.NRV.NRV) {
		p.cyclesSinceLastAction++
		return noAction(fmt.Sprintf(
			"Best option NRV=$%.2f <= 0, no economic value (cycle %d since last action)",
			best.NRV.NRV, p.cyclesSinceLastAction))
	}

	p.cyclesSinceLastAction = 0
	selected := best.Option
	return core.Decision{
		ShouldAct:      true,
		SelectedOption: &selected,
		Rationale: fmt.Sprintf("Selected %s with NRV=$%.2f (recovery=$%.2f, cost=$%.2f)",
			best.Option.Kind, best.NRV.NRV, best.NRV.RevenueRecovery, best.NRV.DeltaCost),
		AlternativesConsidered: alternatives(ranked),
		RequiresHumanApproval:  p.requiresApproval(&best.Option, beliefs),
	}
}

func (p *Policy) forcedDecision(
	actionOptions []core.InterventionOption,
	beliefs core.BeliefState,
	currentVolume int,
) core.Decision {
	cycle := p.cyclesSinceLastAction + 1
	p.cyclesSinceLastAction = 0

	if len(actionOptions) == 0 {
		p.log.Warn("minimum frequency rule fired with no action options", "cycle", cycle)
		opt := baselineAlertOption()
		return core.Decision{
			ShouldAct:      true,
			SelectedOption: &opt,
			Rationale: fmt.Sprintf(
				"[MIN FREQUENCY RULE] Generated baseline ALERT_OPS action after %d cycles with no anomalies detected",
				p.minActionFrequency),
			RequiresHumanApproval: false,
		}
	}

	ranked := p.nrv.Rank(actionOptions, currentVolume)
	best := ranked[0]
	p.log.Info("minimum frequency rule fired",
		"cycle", cycle, "selected", best.Option.Kind, "nrv", best.NRV.NRV)

	selected := best.Option
	return core.Decision{
		ShouldAct:      true,
		SelectedOption: &selected,
		Rationale: fmt.Sprintf(
			"[MIN FREQUENCY RULE] Selected %s with NRV=$%.2f (recovery=$%.2f, cost=$%.2f) - Guaranteed action after %d cycles",
			best.Option.Kind, best.NRV.NRV, best.NRV.RevenueRecovery, best.NRV.DeltaCost, p.minActionFrequency),
		AlternativesConsidered: alternatives(ranked),
		RequiresHumanApproval:  p.requiresApproval(&best.Option, beliefs),
	}
}

func (p *Policy) requiresApproval(opt *core.InterventionOption, beliefs core.BeliefState) bool {
	return opt.BlastRadius > p.maxBlastRadius || beliefs.UncertaintyLevel > 0.5
}

func baselineAlertOption() core.InterventionOption {
	return core.InterventionOption{
		Kind:   core.InterventionAlertOps,
		Target: "ops_team",
		Parameters: core.Params{
			"severity": "low",
			"reason":   "minimum_action_frequency",
			"message":  "No anomalies detected but minimum action frequency rule triggered",
		},
		ExpectedOutcome: core.OutcomeEstimate{Confidence: 1.0},
		Reversible:      true,
		BlastRadius:     0,
	}
}

func alternatives(ranked []RankedOption) []core.InterventionOption {
	if len(ranked) <= 1 {
		return nil
	}
	out := make([]core.InterventionOption, 0, len(ranked)-1)
	for _, r := range ranked[1:] {
		out = append(out, r.Option)
	}
	return out
}

func noAction(rationale string) core.Decision {
	return core.Decision{Rationale: rationale}
}
