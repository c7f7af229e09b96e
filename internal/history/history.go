// Package history keeps a bounded FIFO record of recent cycle activity for
// reporting.
package history

import (
	"sync"

	"github.com/gateway-fm/cyclebot/pkg/types"
)

// DefaultCapacity is the number of records kept per wallet.
const DefaultCapacity = 10

// History is a bounded FIFO of transaction records. When full, pushing a new
// record evicts the oldest one. It is safe for concurrent use.
type History struct {
	mu       sync.RWMutex
	records  []types.TransactionRecord
	capacity int
}

// New creates a history with DefaultCapacity.
func New() *History {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a history holding at most capacity records.
// Non-positive capacities fall back to DefaultCapacity.
func NewWithCapacity(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		records:  make([]types.TransactionRecord, 0, capacity),
		capacity: capacity,
	}
}

// Push appends r, evicting the oldest record if the history is full.
func (h *History) Push(r types.TransactionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == h.capacity {
		copy(h.records, h.records[1:])
		h.records = h.records[:h.capacity-1]
	}
	h.records = append(h.records, r)
}

// Snapshot returns a copy of the records, oldest first.
func (h *History) Snapshot() []types.TransactionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.TransactionRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns the number of records held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Capacity returns the maximum number of records held.
func (h *History) Capacity() int {
	return h.capacity
}
