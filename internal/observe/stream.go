// Package observe ingests transaction signals and maintains the
// sliding window and rolling baselines the reasoning stage reads.
package observe

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/payops/sentinel/internal/core"
)

// DefaultStreamBuffer is the stream's ring capacity.
const DefaultStreamBuffer = 10000

// StreamStats summarizes ingestion health.
type StreamStats struct {
	TotalIngested int64   `json:"total_ingested"`
	TotalInvalid  int64   `json:"total_invalid"`
	BufferSize    int     `json:"buffer_size"`
	SuccessRate   float64 `json:"success_rate"`
}

// Stream buffers validated transaction signals. External producers go
// through Ingest, which validates raw JSON records; the in-process
// generator uses the direct Add path.
type Stream struct {
	log    *slog.Logger
	buffer *core.Ring

	mu       sync.Mutex
	ingested int64
	invalid  int64
}

// NewStream builds a stream with the given ring capacity.
func NewStream(bufferSize int, log *slog.Logger) *Stream {
	if bufferSize <= 0 {
		bufferSize = DefaultStreamBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stream{log: log, buffer: core.NewRing(bufferSize)}
}

// Ingest validates and buffers one raw transaction record.
func (s *Stream) Ingest(raw []byte) error {
	var txn core.Transaction
	if err := json.Unmarshal(raw, &txn); err != nil {
		s.reject()
		s.log.Warn("rejected unparseable transaction", "err", err)
		return fmt.Errorf("decode transaction: %w", err)
	}
	if err := txn.Validate(); err != nil {
		s.reject()
		s.log.Warn("rejected invalid transaction", "transaction_id", txn.ID, "err", err)
		return fmt.Errorf("validate transaction: %w", err)
	}
	s.Add(txn)
	return nil
}

// IngestBatch validates a batch of raw records and returns how many
// were accepted.
func (s *Stream) IngestBatch(batch [][]byte) int {
	accepted := 0
	for _, raw := range batch {
		if s.Ingest(raw) == nil {
			accepted++
		}
	}
	s.log.Info("ingested batch", "accepted", accepted, "total", len(batch))
	return accepted
}

// Add buffers an already-validated transaction.
func (s *Stream) Add(txn core.Transaction) {
	s.buffer.Add(txn)
	s.mu.Lock()
	s.ingested++
	s.mu.Unlock()
}

// AddBatch buffers a batch of already-validated transactions.
func (s *Stream) AddBatch(txns []core.Transaction) {
	s.buffer.AddBatch(txns)
	s.mu.Lock()
	s.ingested += int64(len(txns))
	s.mu.Unlock()
}

// Recent returns up to count buffered transactions, oldest first;
// count <= 0 returns everything.
func (s *Stream) Recent(count int) []core.Transaction {
	return s.buffer.Recent(count)
}

// Stats reports ingestion counters.
func (s *Stream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := StreamStats{
		TotalIngested: s.ingested,
		TotalInvalid:  s.invalid,
		BufferSize:    s.buffer.Len(),
	}
	if total := s.ingested + s.invalid; total > 0 {
		st.SuccessRate = float64(s.ingested) / float64(total)
	}
	return st
}

func (s *Stream) reject() {
	s.mu.Lock()
	s.invalid++
	s.mu.Unlock()
}
