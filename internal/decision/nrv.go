package decision

import (
	"log/slog"
	"math"
	"sort"

	"github.com/payops/sentinel/internal/core"
)

// NRV calculator defaults.
const (
	DefaultAvgTicketValue      = 100.0
	DefaultLatencyPenaltyPerMS = 0.01
	DefaultCostPerIntervention = 5.0
)

// NRVResult is the priced value of one option:
// NRV = sr_lift * affected_volume * avg_ticket - delta_cost - latency_penalty.
type NRVResult struct {
	NRV             float64 `json:"nrv"`
	RevenueRecovery float64 `json:"revenue_recovery"`
	DeltaCost       float64 `json:"delta_cost"`
	LatencyPenalty  float64 `json:"latency_penalty"`
	AffectedVolume  int     `json:"affected_volume"`
	SRLift          float64 `json:"sr_lift"`
}

// RankedOption pairs an option with its NRV pricing.
type RankedOption struct {
	Option core.InterventionOption
	NRV    NRVResult
}

// NRVCalculator prices interventions in currency units.
type NRVCalculator struct {
	avgTicketValue      float64
	latencyPenaltyPerMS float64
	costPerIntervention float64
	log                 *slog.Logger
}

// NewNRVCalculator builds a calculator; zero values take defaults.
func NewNRVCalculator(avgTicketValue, latencyPenaltyPerMS, costPerIntervention float64, log *slog.Logger) *NRVCalculator {
	if avgTicketValue <= 0 {
		avgTicketValue = DefaultAvgTicketValue
	}
	if latencyPenaltyPerMS <= 0 {
		latencyPenaltyPerMS = DefaultLatencyPenaltyPerMS
	}
	if costPerIntervention <= 0 {
		costPerIntervention = DefaultCostPerIntervention
	}
	if log == nil {
		log = slog.Default()
	}
	return &NRVCalculator{
		avgTicketValue:      avgTicketValue,
		latencyPenaltyPerMS: latencyPenaltyPerMS,
		costPerIntervention: costPerIntervention,
		log:                 log,
	}
}

// Calculate prices one option against the current traffic volume.
func (c *NRVCalculator) Calculate(option *core.InterventionOption, currentVolume int) NRVResult {
	srLift := option.Tradeoffs.SuccessRateImpact
	affectedVolume := int(float64(currentVolume) * option.BlastRadius)
	revenue := srLift * float64(affectedVolume) * c.avgTicketValue
	deltaCost := c.costPerIntervention + math.Abs(option.Tradeoffs.CostImpact)
	latencyPenalty := math.Abs(option.Tradeoffs.LatencyImpact) * c.latencyPenaltyPerMS

	r := NRVResult{
		NRV:             revenue - deltaCost - latencyPenalty,
		RevenueRecovery: revenue,
		DeltaCost:       deltaCost,
		LatencyPenalty:  latencyPenalty,
		AffectedVolume:  affectedVolume,
		SRLift:          srLift,
	}
	c.log.Info("nrv calculated",
		"type", option.Kind, "target", option.Target,
		"nrv", r.NRV, "recovery", r.RevenueRecovery, "cost", r.DeltaCost)
	return r
}

// ShouldAct applies the economic rule: act only on positive NRV.
func (c *NRVCalculator) ShouldAct(nrv float64) bool {
	return nrv > 0
}

// Rank prices all options and sorts descending by NRV. The sort is
// stable so ties keep planner order.
func (c *NRVCalculator) Rank(options []core.InterventionOption, currentVolume int) []RankedOption {
	ranked := make([]RankedOption, 0, len(options))
	for i := range options {
		ranked = append(ranked, RankedOption{
			Option: options[i],
			NRV:    c.Calculate(&options[i], currentVolume),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].NRV.NRV > ranked[j].NRV.NRV
	})
	return ranked
}
