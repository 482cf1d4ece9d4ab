package core

// PatternKind classifies a detected behavioral pattern.
type PatternKind string

const (
	PatternIssuerDegradation PatternKind = "issuer_degradation"
	PatternRetryStorm        PatternKind = "retry_storm"
	PatternMethodFatigue     PatternKind = "method_fatigue"
	PatternLatencySpike      PatternKind = "latency_spike"
	PatternSystemicFailure   PatternKind = "systemic_failure"
	PatternLocalizedFailure  PatternKind = "localized_failure"
)

// Evidence is a single supporting fact behind a pattern or hypothesis.
type Evidence struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	Timestamp   int64   `json:"timestamp"`
	Source      string  `json:"source"`
}

const (
	EvidenceStatistical  = "statistical"
	EvidenceHistorical   = "historical"
	EvidenceSystemMetric = "system_metric"
)

// DetectedPattern is an anomaly or behavioral pattern found in the
// observation window. Severity is detection strength in [0,1]; the raw
// z-score, when one exists, travels in Evidence.
type DetectedPattern struct {
	Kind       PatternKind `json:"type"`
	Dimension  string      `json:"affected_dimension"`
	Severity   float64     `json:"severity"`
	Evidence   []Evidence  `json:"evidence"`
	DetectedAt int64       `json:"detected_at"`
}

// ZScore returns the z-score carried in the pattern's statistical
// evidence, or 0 when none was recorded.
func (p *DetectedPattern) ZScore() float64 {
	for _, ev := range p.Evidence {
		if ev.Type == EvidenceStatistical && ev.Source == "z_score" {
			return ev.Value
		}
	}
	return 0
}
