package memory

import (
	"fmt"
	"sync"
)

// DefaultCapacity is the number of exchanges a Ring retains when no capacity
// is configured.
const DefaultCapacity = 10

// Ring is a fixed-capacity FIFO [Store]. Appending at capacity evicts the
// oldest exchange. Safe for concurrent use, though in the dialogue loop all
// mutation flows through the single turn controller goroutine.
type Ring struct {
	mu       sync.RWMutex
	capacity int
	items    []Exchange
}

// Compile-time assertion that Ring satisfies Store.
var _ Store = (*Ring)(nil)

// NewRing creates a Ring that retains at most capacity exchanges.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("memory: capacity must be positive, got %d", capacity)
	}
	return &Ring{capacity: capacity}, nil
}

// Append implements Store. It never fails for a Ring.
func (r *Ring) Append(ex Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) >= r.capacity {
		// Copy into a fresh slice instead of reslicing so the evicted head
		// does not pin the old backing array.
		next := make([]Exchange, len(r.items)-1, r.capacity)
		copy(next, r.items[1:])
		r.items = next
	}
	r.items = append(r.items, ex)
	return nil
}

// Snapshot implements Store.
func (r *Ring) Snapshot() []Exchange {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Exchange, len(r.items))
	copy(out, r.items)
	return out
}

// Clear implements Store.
func (r *Ring) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
	return nil
}

// Len implements Store.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Capacity returns the maximum number of retained exchanges.
func (r *Ring) Capacity() int { return r.capacity }
