package observe

import (
	"github.com/payops/sentinel/internal/core"
)

const (
	// DefaultWindowMS is the sliding window duration.
	DefaultWindowMS = 300000
	// MinSampleSize is the minimum window population for meaningful
	// statistics; sparse windows fall back to the stream tail.
	MinSampleSize = 50
)

// Window is a sliding time window over the observation stream. Owned
// by the loop goroutine; not safe for concurrent use.
type Window struct {
	durationMS int64
	txns       []core.Transaction
	stats      *core.AggregateStats
}

// NewWindow builds a window of the given duration in milliseconds.
func NewWindow(durationMS int64) *Window {
	if durationMS <= 0 {
		durationMS = DefaultWindowMS
	}
	return &Window{durationMS: durationMS}
}

// Update refilters the window from source against nowMS. When the time
// window holds fewer than MinSampleSize transactions but the source has
// at least that many, the last MinSampleSize transactions are used
// instead so downstream statistics stay significant.
func (w *Window) Update(source []core.Transaction, nowMS int64) {
	start := nowMS - w.durationMS
	filtered := make([]core.Transaction, 0, len(source))
	for _, t := range source {
		if t.Timestamp >= start && t.Timestamp <= nowMS {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) < MinSampleSize && len(source) >= MinSampleSize {
		filtered = append([]core.Transaction(nil), source[len(source)-MinSampleSize:]...)
	}
	w.txns = filtered
	w.stats = nil
}

// Transactions returns the current window contents.
func (w *Window) Transactions() []core.Transaction {
	return w.txns
}

// TimeRange returns the min and max timestamps in the window, (0,0)
// when empty.
func (w *Window) TimeRange() (int64, int64) {
	if len(w.txns) == 0 {
		return 0, 0
	}
	lo, hi := w.txns[0].Timestamp, w.txns[0].Timestamp
	for _, t := range w.txns[1:] {
		if t.Timestamp < lo {
			lo = t.Timestamp
		}
		if t.Timestamp > hi {
			hi = t.Timestamp
		}
	}
	return lo, hi
}

// Stats computes aggregate statistics, cached until the next Update.
func (w *Window) Stats() core.AggregateStats {
	if w.stats == nil {
		st := core.Aggregate(w.txns)
		w.stats = &st
	}
	return *w.stats
}

// GroupByIssuer partitions the window by canonical issuer dimension.
func (w *Window) GroupByIssuer() map[string][]core.Transaction {
	out := make(map[string][]core.Transaction)
	for _, t := range w.txns {
		key := core.IssuerDimension(t.Issuer)
		out[key] = append(out[key], t)
	}
	return out
}

// GroupByMethod partitions the window by payment method dimension.
func (w *Window) GroupByMethod() map[string][]core.Transaction {
	out := make(map[string][]core.Transaction)
	for _, t := range w.txns {
		key := core.MethodDimension(t.Method)
		out[key] = append(out[key], t)
	}
	return out
}
