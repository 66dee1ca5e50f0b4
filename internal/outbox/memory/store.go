// Package memory provides an in-process outbox store for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/leadcapture/internal/outbox"
)

// Store keeps pending submissions in insertion order behind a mutex.
type Store struct {
	mu      sync.Mutex
	entries []outbox.PendingSubmission
	nextID  int64
	now     func() time.Time
	closed  bool
}

// NewStore creates an empty store. ids start at 1.
func NewStore() *Store {
	return &Store{nextID: 1, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue appends a copy of payload.
func (s *Store) Enqueue(_ context.Context, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("enqueue: %w", outbox.ErrStorageUnavailable)
	}
	id := s.nextID
	s.nextID++
	s.entries = append(s.entries, outbox.PendingSubmission{
		ID:         id,
		Payload:    append([]byte(nil), payload...),
		EnqueuedAt: s.now(),
	})
	return id, nil
}

// ListAll returns a deep copy of the queue, oldest first.
func (s *Store) ListAll(_ context.Context) ([]outbox.PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("list: %w", outbox.ErrStorageUnavailable)
	}
	out := make([]outbox.PendingSubmission, len(s.entries))
	for i, e := range s.entries {
		e.Payload = append([]byte(nil), e.Payload...)
		out[i] = e
	}
	return out, nil
}

// Count returns the queue length.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("count: %w", outbox.ErrStorageUnavailable)
	}
	return len(s.entries), nil
}

// Remove drops the entry with id if present.
func (s *Store) Remove(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("remove: %w", outbox.ErrStorageUnavailable)
	}
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Close marks the store unusable; later calls fail with ErrStorageUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
