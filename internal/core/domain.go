// Package core holds the domain types shared by every stage of the
// control loop: transaction signals, detected patterns, hypotheses,
// intervention options and the persisted agent state.
package core

import "sort"

// Outcome is the terminal state of a payment attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeSoftFail Outcome = "soft_fail"
	OutcomeHardFail Outcome = "hard_fail"
)

// Failed reports whether the outcome is any kind of failure.
func (o Outcome) Failed() bool {
	return o == OutcomeSoftFail || o == OutcomeHardFail
}

// PaymentMethod identifies the rail a transaction ran on.
type PaymentMethod string

const (
	MethodCard       PaymentMethod = "card"
	MethodUPI        PaymentMethod = "upi"
	MethodWallet     PaymentMethod = "wallet"
	MethodBNPL       PaymentMethod = "bnpl"
	MethodNetbanking PaymentMethod = "netbanking"
)

// Transaction is a single payment observation. Timestamps are unix
// milliseconds throughout the system.
type Transaction struct {
	ID         string        `json:"transaction_id"`
	Timestamp  int64         `json:"timestamp"`
	Outcome    Outcome       `json:"outcome"`
	ErrorCode  string        `json:"error_code,omitempty"`
	LatencyMS  int           `json:"latency_ms"`
	RetryCount int           `json:"retry_count"`
	Method     PaymentMethod `json:"payment_method"`
	Issuer     string        `json:"issuer"`
	MerchantID string        `json:"merchant_id"`
	Amount     float64       `json:"amount"`
	Geography  string        `json:"geography,omitempty"`
}

// Validate checks the invariants the ingestion path enforces on raw
// records. Failed transactions without an error code are accepted;
// everything else returns the first violation found.
func (t *Transaction) Validate() error {
	switch {
	case t.ID == "":
		return errEmptyField("transaction_id")
	case t.Timestamp <= 0:
		return errNonPositive("timestamp")
	case t.LatencyMS < 0:
		return errNegative("latency_ms")
	case t.RetryCount < 0:
		return errNegative("retry_count")
	case t.Issuer == "":
		return errEmptyField("issuer")
	case t.MerchantID == "":
		return errEmptyField("merchant_id")
	case t.Amount <= 0:
		return errNonPositive("amount")
	}
	switch t.Outcome {
	case OutcomeSuccess, OutcomeSoftFail, OutcomeHardFail:
	default:
		return errBadEnum("outcome", string(t.Outcome))
	}
	return nil
}

// AggregateStats summarizes a window of transactions.
type AggregateStats struct {
	TotalTransactions int     `json:"total_transactions"`
	SuccessCount      int     `json:"success_count"`
	SoftFailCount     int     `json:"soft_fail_count"`
	HardFailCount     int     `json:"hard_fail_count"`
	SuccessRate       float64 `json:"success_rate"`
	AvgLatencyMS      float64 `json:"avg_latency_ms"`
	P95LatencyMS      float64 `json:"p95_latency_ms"`
	P99LatencyMS      float64 `json:"p99_latency_ms"`
	AvgRetryCount     float64 `json:"avg_retry_count"`
	UniqueIssuers     int     `json:"unique_issuers"`
	UniqueMethods     int     `json:"unique_methods"`
}

// FailureRate is 1 - success rate, 0 for an empty window.
func (s AggregateStats) FailureRate() float64 {
	if s.TotalTransactions == 0 {
		return 0
	}
	return 1 - s.SuccessRate
}

// Aggregate computes window statistics over txns. Percentiles use the
// nearest-rank index int(q*n) clamped to the last element.
func Aggregate(txns []Transaction) AggregateStats {
	var st AggregateStats
	st.TotalTransactions = len(txns)
	if len(txns) == 0 {
		return st
	}

	latencies := make([]int, 0, len(txns))
	issuers := map[string]struct{}{}
	methods := map[PaymentMethod]struct{}{}
	var latSum, retrySum float64
	for _, t := range txns {
		switch t.Outcome {
		case OutcomeSuccess:
			st.SuccessCount++
		case OutcomeSoftFail:
			st.SoftFailCount++
		case OutcomeHardFail:
			st.HardFailCount++
		}
		latencies = append(latencies, t.LatencyMS)
		latSum += float64(t.LatencyMS)
		retrySum += float64(t.RetryCount)
		issuers[t.Issuer] = struct{}{}
		methods[t.Method] = struct{}{}
	}
	n := float64(len(txns))
	st.SuccessRate = float64(st.SuccessCount) / n
	st.AvgLatencyMS = latSum / n
	st.AvgRetryCount = retrySum / n
	st.UniqueIssuers = len(issuers)
	st.UniqueMethods = len(methods)

	sort.Ints(latencies)
	st.P95LatencyMS = float64(percentile(latencies, 0.95))
	st.P99LatencyMS = float64(percentile(latencies, 0.99))
	return st
}

func percentile(sorted []int, q float64) int {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
