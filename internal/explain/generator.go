// Package explain renders a cycle's reasoning into human-readable
// summaries and a machine-readable action record.
package explain

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/safety"
)

// Explanation is the full trace of one decision cycle: what was seen,
// what was believed and what was done about it.
type Explanation struct {
	Situation          string                 `json:"situation"`
	PatternsDetected   []string               `json:"patterns_detected"`
	Hypotheses         []string               `json:"hypotheses"`
	Rationale          string                 `json:"rationale"`
	Confidence         float64                `json:"confidence"`
	ExecutiveSummary   string                 `json:"executive_summary"`
	ActionRecord       map[string]interface{} `json:"action_json"`
	Guardrails         []string               `json:"guardrails"`
	RollbackConditions []string               `json:"rollback_conditions"`
	LearningPlan       string                 `json:"learning_plan"`
}

// Generator turns cycle state into explanations.
type Generator struct {
	log *slog.Logger
}

// NewGenerator builds a generator.
func NewGenerator(log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{log: log}
}

// Input carries everything a cycle produced that the explanation draws
// on.
type Input struct {
	Patterns   []core.DetectedPattern
	Hypotheses []core.Hypothesis
	Decision   *core.Decision
	NRV        float64
	ZScore     float64
	PreMortem  *safety.Analysis
}

// Generate builds the explanation for one cycle.
func (g *Generator) Generate(in Input) Explanation {
	e := Explanation{
		Situation:        g.situation(in.Patterns),
		PatternsDetected: patternDescriptions(in.Patterns),
		Hypotheses:       hypothesisDescriptions(in.Hypotheses),
		Confidence:       meanConfidence(in.Hypotheses),
		LearningPlan:     "Monitor outcome and adjust confidence levels based on results",
	}
	if in.Decision != nil {
		e.Rationale = in.Decision.Rationale
	}
	e.ExecutiveSummary = g.executiveSummary(in)
	e.ActionRecord = g.actionRecord(in)
	e.Guardrails = guardrails(in.Decision)
	e.RollbackConditions = rollbackConditions(in.Decision)

	g.log.Info("explanation generated",
		"patterns", len(in.Patterns), "confidence", e.Confidence)
	return e
}

func (g *Generator) situation(patterns []core.DetectedPattern) string {
	if len(patterns) == 0 {
		return "No significant patterns detected. System operating normally."
	}
	return fmt.Sprintf("Detected %d pattern(s): %s",
		len(patterns), strings.Join(patternDescriptions(patterns), ", "))
}

func patternDescriptions(patterns []core.DetectedPattern) []string {
	out := make([]string, 0, len(patterns))
	for i := range patterns {
		p := &patterns[i]
		out = append(out, fmt.Sprintf("%s in %s (severity: %.2f)",
			p.Kind, p.Dimension, p.Severity))
	}
	return out
}

func hypothesisDescriptions(hypotheses []core.Hypothesis) []string {
	out := make([]string, 0, len(hypotheses))
	for i := range hypotheses {
		h := &hypotheses[i]
		out = append(out, fmt.Sprintf("%s (confidence: %.2f)", h.Description, h.Confidence))
	}
	return out
}

func meanConfidence(hypotheses []core.Hypothesis) float64 {
	if len(hypotheses) == 0 {
		return 1.0
	}
	sum := 0.0
	for i := range hypotheses {
		sum += hypotheses[i].Confidence
	}
	return sum / float64(len(hypotheses))
}

func (g *Generator) executiveSummary(in Input) string {
	if in.Decision == nil || !in.Decision.ShouldAct || in.Decision.SelectedOption == nil || len(in.Patterns) == 0 {
		return "System operating normally with no significant anomalies. No intervention required at this time."
	}
	primary := in.Patterns[0]
	opt := in.Decision.SelectedOption
	return fmt.Sprintf("Detected %s with Z=%.2f. Recommending %s on %s (NRV=$%.2f).",
		primary.Kind, in.ZScore, opt.Kind, opt.Target, in.NRV)
}

func (g *Generator) actionRecord(in Input) map[string]interface{} {
	record := map[string]interface{}{
		"should_act":        false,
		"action_type":       "no_action",
		"target":            "",
		"parameters":        map[string]interface{}{},
		"confidence":        meanConfidence(in.Hypotheses),
		"nrv":               in.NRV,
		"z_score":           in.ZScore,
		"blast_radius":      0.0,
		"requires_approval": false,
		"risk_score":        0.0,
		"risk_acknowledged": false,
	}
	if in.Decision == nil {
		return record
	}
	record["should_act"] = in.Decision.ShouldAct
	record["requires_approval"] = in.Decision.RequiresHumanApproval
	if opt := in.Decision.SelectedOption; opt != nil {
		record["action_type"] = string(opt.Kind)
		record["target"] = opt.Target
		if opt.Parameters != nil {
			record["parameters"] = map[string]interface{}(opt.Parameters)
		}
		record["blast_radius"] = opt.BlastRadius
	}
	if in.PreMortem != nil {
		record["risk_score"] = in.PreMortem.RiskScore
	}
	return record
}

func guardrails(d *core.Decision) []string {
	if d == nil || d.SelectedOption == nil || !d.SelectedOption.IsAction() {
		return nil
	}
	var out []string
	if d.SelectedOption.Reversible {
		out = append(out, "Intervention is reversible")
	}
	out = append(out, fmt.Sprintf("Blast radius: %.2f", d.SelectedOption.BlastRadius))
	return out
}

func rollbackConditions(d *core.Decision) []string {
	if d == nil || d.SelectedOption == nil || !d.SelectedOption.IsAction() {
		return nil
	}
	if ms, ok := d.SelectedOption.Parameters.DurationMS(); ok && ms > 0 {
		return []string{fmt.Sprintf("Auto-expires after %d seconds", ms/1000)}
	}
	return nil
}

// Format renders the dual-channel output: executive summary for humans
// followed by the action record as indented JSON.
func (g *Generator) Format(e Explanation) string {
	body, err := json.MarshalIndent(e.ActionRecord, "", "  ")
	if err != nil {
		body = []byte("{}")
	}
	return fmt.Sprintf("=== EXECUTIVE SUMMARY ===\n%s\n\n=== ACTION_JSON ===\n%s",
		e.ExecutiveSummary, body)
}
