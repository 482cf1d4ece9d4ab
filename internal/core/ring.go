package core

import "sync"

// Ring is a fixed-capacity transaction buffer. Writers overwrite the
// oldest entries once full. Safe for concurrent use.
type Ring struct {
	mu   sync.RWMutex
	buf  []Transaction
	head int
	size int
}

// NewRing returns a ring holding at most capacity transactions.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]Transaction, capacity)}
}

// Add appends one transaction, evicting the oldest when full.
func (r *Ring) Add(t Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[(r.head+r.size)%len(r.buf)] = t
	if r.size < len(r.buf) {
		r.size++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

// AddBatch appends a batch in order.
func (r *Ring) AddBatch(txns []Transaction) {
	for _, t := range txns {
		r.Add(t)
	}
}

// Len returns the number of buffered transactions.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Recent returns up to count transactions, oldest first. count <= 0
// returns everything buffered.
func (r *Ring) Recent(count int) []Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if count <= 0 || count > r.size {
		count = r.size
	}
	out := make([]Transaction, count)
	start := r.size - count
	for i := 0; i < count; i++ {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}
