// Package outbox defines the durable submission store: an append/remove log of lead
// payloads captured while the submission endpoint could not be reached.
package outbox

import (
	"context"
	"errors"
	"time"
)

// ErrStorageUnavailable reports that the persistent store could not be opened or
// that a transaction against it aborted. Callers must surface it; data handed to a
// failing Enqueue has not been saved.
var ErrStorageUnavailable = errors.New("outbox storage unavailable")

// PendingSubmission is one queued payload awaiting delivery.
type PendingSubmission struct {
	// ID is assigned by the store on insert and never reused.
	ID int64 `json:"id"`
	// Payload is forwarded byte-for-byte to the submission endpoint.
	Payload []byte `json:"payload"`
	// EnqueuedAt records insertion time.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Store persists pending submissions. Each method runs as its own transaction.
type Store interface {
	// Enqueue persists payload and returns its fresh id.
	Enqueue(ctx context.Context, payload []byte) (int64, error)
	// ListAll returns a snapshot of every queued entry, oldest first.
	ListAll(ctx context.Context) ([]PendingSubmission, error)
	// Count returns the number of queued entries.
	Count(ctx context.Context) (int, error)
	// Remove deletes the entry; removing an absent id is not an error.
	Remove(ctx context.Context, id int64) error
	// Close releases the underlying storage.
	Close() error
}
