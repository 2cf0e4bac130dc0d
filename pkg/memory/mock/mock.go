// Package mock provides a test double for memory.Store that records calls
// and supports scripted failures.
package mock

import (
	"sync"

	"github.com/MrWong99/hark/pkg/memory"
)

// Store is a mock memory.Store for tests. All fields are safe for concurrent
// access through the embedded mutex.
type Store struct {
	mu sync.Mutex

	// AppendErr, when non-nil, is returned from Append without recording.
	AppendErr error

	// ClearErr, when non-nil, is returned from Clear.
	ClearErr error

	// Appends records every successfully appended exchange.
	Appends []memory.Exchange

	// ClearCalls counts Clear invocations.
	ClearCalls int
}

// Compile-time assertion that Store satisfies memory.Store.
var _ memory.Store = (*Store)(nil)

// Append implements memory.Store.
func (s *Store) Append(ex memory.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.Appends = append(s.Appends, ex)
	return nil
}

// Snapshot implements memory.Store.
func (s *Store) Snapshot() []memory.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.Exchange, len(s.Appends))
	copy(out, s.Appends)
	return out
}

// Clear implements memory.Store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClearCalls++
	if s.ClearErr != nil {
		return s.ClearErr
	}
	s.Appends = nil
	return nil
}

// Len implements memory.Store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Appends)
}
