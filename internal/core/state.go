package core

// ModelParameters are the tunables the learning stage may adjust.
type ModelParameters struct {
	AnomalyThreshold          float64 `json:"anomaly_threshold"`
	MinConfidenceForAction    float64 `json:"min_confidence_for_action"`
	MaxBlastRadiusForAutonomy float64 `json:"max_blast_radius_for_autonomy"`
	LearningRate              float64 `json:"learning_rate"`
	ConservativenessLevel     float64 `json:"conservativeness_level"`
}

// DefaultModelParameters returns the starting tunables.
func DefaultModelParameters() ModelParameters {
	return ModelParameters{
		AnomalyThreshold:          2.0,
		MinConfidenceForAction:    0.7,
		MaxBlastRadiusForAutonomy: 0.3,
		LearningRate:              0.1,
		ConservativenessLevel:     0.5,
	}
}

// ObservationWindow is the snapshot of recent traffic persisted with
// the agent state. Only a small tail of transactions is retained.
type ObservationWindow struct {
	Transactions   []Transaction  `json:"transactions"`
	TimeRangeMS    [2]int64       `json:"time_range_ms"`
	AggregateStats AggregateStats `json:"aggregate_stats"`
}

// AgentState is everything the agent persists between runs.
type AgentState struct {
	CurrentBeliefs      BeliefState       `json:"current_beliefs"`
	ActiveInterventions []ExecutionResult `json:"active_interventions"`
	RecentObservations  ObservationWindow `json:"recent_observations"`
	ModelParameters     ModelParameters   `json:"model_parameters"`
	LastUpdated         int64             `json:"last_updated"`
	NRVProjection       float64           `json:"nrv_projection"`
	ZScore              float64           `json:"z_score"`
	RiskAcknowledged    bool              `json:"risk_acknowledged"`
}
