package store

import (
	"context"
	"errors"

	"github.com/JakeFAU/leadcapture/internal/lead"
)

// ErrNotFound signals that the requested record or object does not exist.
var ErrNotFound = errors.New("record not found")

// LeadRepository persists leads, their scores and the keyword catalogue.
type LeadRepository interface {
	// SaveLead persists rec with its matched keywords and score and bumps the
	// form_submissions counter (and qualified_leads when rec.Qualified) in one unit.
	SaveLead(ctx context.Context, rec lead.Record) (int64, error)
	// IncrementCounter adds one to the named counter, creating it at zero first.
	IncrementCounter(ctx context.Context, name string) error
	// Counters returns every counter by name.
	Counters(ctx context.Context) (map[string]int64, error)
	// ListKeywords returns the catalogue in id order.
	ListKeywords(ctx context.Context) ([]lead.Keyword, error)
	// AddKeyword stores kw and returns its id. Duplicates yield lead.ErrDuplicateKeyword.
	AddKeyword(ctx context.Context, kw lead.Keyword) (int64, error)
	// MatchKeywords returns the ids of keywords matching each interest, at most one per interest.
	MatchKeywords(ctx context.Context, interests []string) ([]int64, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// BlobStore stores opaque objects by slash-separated path.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) error
	// Get returns ErrNotFound for a missing object.
	Get(ctx context.Context, path string) ([]byte, error)
	// Delete is a no-op for a missing object.
	Delete(ctx context.Context, path string) error
	// List returns every object path under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}
