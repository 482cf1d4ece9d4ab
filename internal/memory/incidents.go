// Package memory holds the agent's institutional knowledge: historical
// incidents indexed by signature, and the playbooks derived from them.
package memory

import (
	"log/slog"
	"sync"
	"time"
)

// Signature identifies an incident by its observable context. Two
// incidents with similar signatures likely share a remedy.
type Signature struct {
	ErrorCode     string  `json:"error_code"`
	Issuer        string  `json:"issuer"`
	PaymentMethod string  `json:"payment_method"`
	FailureRate   float64 `json:"failure_rate"`
	TimeOfDay     string  `json:"time_of_day"`
	DayOfWeek     string  `json:"day_of_week"`
	Season        string  `json:"season"`
}

// Similarity scores how closely two signatures match, weighting error
// code and issuer heaviest. Failure rate matches when within 10 points.
func (s Signature) Similarity(other Signature) float64 {
	score := 0.0
	if s.ErrorCode == other.ErrorCode {
		score += 0.3
	}
	if s.Issuer == other.Issuer {
		score += 0.2
	}
	if s.PaymentMethod == other.PaymentMethod {
		score += 0.15
	}
	if diff := s.FailureRate - other.FailureRate; diff < 0.1 && diff > -0.1 {
		score += 0.15
	}
	if s.TimeOfDay == other.TimeOfDay {
		score += 0.1
	}
	if s.DayOfWeek == other.DayOfWeek {
		score += 0.05
	}
	if s.Season == other.Season {
		score += 0.05
	}
	return score
}

// Incident is one resolved historical incident with its remedy.
type Incident struct {
	IncidentID            string                 `json:"incident_id"`
	Signature             Signature              `json:"signature"`
	Timestamp             int64                  `json:"timestamp"`
	Description           string                 `json:"description"`
	InterventionTaken     string                 `json:"intervention_taken"`
	Outcome               string                 `json:"outcome"`
	Success               bool                   `json:"success"`
	ResolutionTimeMinutes int                    `json:"resolution_time_minutes"`
	LessonsLearned        []string               `json:"lessons_learned"`
	Telemetry             map[string]interface{} `json:"telemetry"`
}

// Match pairs an incident with its similarity to the query signature.
type Match struct {
	Incident   Incident
	Similarity float64
}

// Store keeps incidents in memory, seeded with a starter corpus.
type Store struct {
	log *slog.Logger

	mu        sync.RWMutex
	incidents []Incident
	byID      map[string]Incident
}

// NewStore builds a store preloaded with the seed incidents.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{log: log, byID: make(map[string]Incident)}
	for _, inc := range seedIncidents() {
		s.Add(inc)
	}
	log.Info("incident store seeded", "incidents", len(s.incidents))
	return s
}

// Add records an incident.
func (s *Store) Add(inc Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, inc)
	s.byID[inc.IncidentID] = inc
}

// Get returns an incident by id.
func (s *Store) Get(id string) (Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.byID[id]
	return inc, ok
}

// FindSimilar returns up to topK incidents at or above minSimilarity,
// best match first. Zero arguments take the defaults of 3 and 0.5.
func (s *Store) FindSimilar(sig Signature, topK int, minSimilarity float64) []Match {
	if topK <= 0 {
		topK = 3
	}
	if minSimilarity <= 0 {
		minSimilarity = 0.5
	}

	s.mu.RLock()
	var matches []Match
	for _, inc := range s.incidents {
		if sim := sig.Similarity(inc.Signature); sim >= minSimilarity {
			matches = append(matches, Match{Incident: inc, Similarity: sim})
		}
	}
	s.mu.RUnlock()

	// Insertion order breaks ties; the corpus is small.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Similarity > matches[j-1].Similarity; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// Statistics summarizes the corpus.
func (s *Store) Statistics() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	successes := 0
	totalMinutes := 0
	errorCodes := map[string]struct{}{}
	issuers := map[string]struct{}{}
	for _, inc := range s.incidents {
		if inc.Success {
			successes++
		}
		totalMinutes += inc.ResolutionTimeMinutes
		errorCodes[inc.Signature.ErrorCode] = struct{}{}
		issuers[inc.Signature.Issuer] = struct{}{}
	}
	avg := 0.0
	if len(s.incidents) > 0 {
		avg = float64(totalMinutes) / float64(len(s.incidents))
	}
	return map[string]interface{}{
		"total_incidents":        len(s.incidents),
		"successful_resolutions": successes,
		"avg_resolution_time":    avg,
		"unique_error_codes":     len(errorCodes),
		"unique_issuers":         len(issuers),
	}
}

// NewSignature stamps a signature with temporal context derived from
// the timestamp.
func NewSignature(errorCode, issuer, paymentMethod string, failureRate float64, timestampMS int64) Signature {
	return Signature{
		ErrorCode:     errorCode,
		Issuer:        issuer,
		PaymentMethod: paymentMethod,
		FailureRate:   failureRate,
		TimeOfDay:     TimeOfDay(timestampMS),
		DayOfWeek:     DayOfWeek(timestampMS),
		Season:        Season(timestampMS),
	}
}

// TimeOfDay buckets a timestamp into morning, afternoon, evening or
// night. All temporal context uses UTC.
func TimeOfDay(timestampMS int64) string {
	hour := time.UnixMilli(timestampMS).UTC().Hour()
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

// DayOfWeek names the weekday of a timestamp.
func DayOfWeek(timestampMS int64) string {
	return time.UnixMilli(timestampMS).UTC().Weekday().String()
}

// Season classifies a timestamp into the retail calendar.
func Season(timestampMS int64) string {
	t := time.UnixMilli(timestampMS).UTC()
	switch {
	case t.Month() == time.November && t.Day() >= 24:
		return "black_friday"
	case t.Month() == time.December:
		return "holiday"
	case t.Month() == time.January && t.Day() <= 7:
		return "new_year"
	default:
		return "regular"
	}
}

func seedIncidents() []Incident {
	return []Incident{
		{
			IncidentID: "INC-2023-BF-001",
			Signature: Signature{
				ErrorCode:     "503_SERVICE_UNAVAILABLE",
				Issuer:        "HDFC",
				PaymentMethod: "card",
				FailureRate:   0.65,
				TimeOfDay:     "morning",
				DayOfWeek:     "Friday",
				Season:        "black_friday",
			},
			Timestamp:             1700809200000,
			Description:           "HDFC Bank API experiencing 503 errors during Black Friday peak traffic",
			InterventionTaken:     "suppress_path",
			Outcome:               "Suppressed HDFC for 15 minutes, rerouted to ICICI and SBI. Success rate recovered to 92%",
			Success:               true,
			ResolutionTimeMinutes: 15,
			LessonsLearned: []string{
				"HDFC struggles with Black Friday traffic spikes",
				"Rerouting to ICICI+SBI combination works well",
				"15-minute suppression is optimal - longer causes user friction",
				"Monitor queue depth as early warning signal",
			},
			Telemetry: map[string]interface{}{
				"peak_tps":           5000,
				"queue_depth_before": 2500,
				"queue_depth_after":  800,
				"latency_p95_before": 3500,
				"latency_p95_after":  450,
			},
		},
		{
			IncidentID: "INC-2024-01-MON-001",
			Signature: Signature{
				ErrorCode:     "TIMEOUT",
				Issuer:        "ICICI",
				PaymentMethod: "upi",
				FailureRate:   0.45,
				TimeOfDay:     "morning",
				DayOfWeek:     "Monday",
				Season:        "regular",
			},
			Timestamp:             1704700800000,
			Description:           "UPI retry storm on Monday morning causing cascading failures",
			InterventionTaken:     "reduce_retry_attempts",
			Outcome:               "Reduced max retries from 5 to 2. Storm subsided in 8 minutes",
			Success:               true,
			ResolutionTimeMinutes: 8,
			LessonsLearned: []string{
				"Monday mornings see 3x normal UPI traffic",
				"ICICI UPI has lower capacity on Monday 8-10am",
				"Reducing retries breaks the storm cycle",
				"Preemptively reduce retries on Monday mornings",
			},
			Telemetry: map[string]interface{}{
				"avg_retry_count_before": 4.2,
				"avg_retry_count_after":  1.8,
				"success_rate_before":    0.55,
				"success_rate_after":     0.88,
			},
		},
		{
			IncidentID: "INC-2023-DEC-HOL-001",
			Signature: Signature{
				ErrorCode:     "INSUFFICIENT_FUNDS",
				Issuer:        "SBI",
				PaymentMethod: "wallet",
				FailureRate:   0.38,
				TimeOfDay:     "evening",
				DayOfWeek:     "Saturday",
				Season:        "holiday",
			},
			Timestamp:             1703347200000,
			Description:           "Wallet payment failures during holiday shopping peak",
			InterventionTaken:     "reroute_traffic",
			Outcome:               "Suggested alternative payment methods. Conversion improved by 15%",
			Success:               true,
			ResolutionTimeMinutes: 5,
			LessonsLearned: []string{
				"Holiday season sees wallet balance exhaustion",
				"Evening shopping peaks have higher wallet failures",
				"Proactive method suggestion improves conversion",
				"Card fallback works better than UPI for high-value transactions",
			},
			Telemetry: map[string]interface{}{
				"avg_transaction_amount": 8500,
				"wallet_balance_avg":     2000,
				"card_fallback_success":  0.92,
			},
		},
	}
}
