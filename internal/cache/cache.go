// Package cache stores HTTP responses for offline use, scoped to a named generation.
// Entries never expire individually; activating a new generation deletes every
// object that belongs to an older one.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/hash/sha256"
	"github.com/JakeFAU/leadcapture/internal/store"
)

// DefaultGeneration names the cache generation shipped with this build.
const DefaultGeneration = "lead-generation-app-v1"

// ErrMiss reports that no entry exists for the request.
var ErrMiss = errors.New("cache miss")

// Entry is a stored response.
type Entry struct {
	Key      string      `json:"key"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the timestamp source for StoredAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cache maps method+URL to stored responses inside one generation.
type Cache struct {
	blobs      store.BlobStore
	generation string
	hasher     *sha256.Hasher
	now        func() time.Time
	logger     *zap.Logger
}

// New builds a Cache over blobs for generation.
func New(blobs store.BlobStore, generation string, opts ...Option) (*Cache, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	generation = strings.TrimSpace(generation)
	if generation == "" || strings.Contains(generation, "/") {
		return nil, fmt.Errorf("invalid cache generation %q", generation)
	}
	c := &Cache{
		blobs:      blobs,
		generation: generation,
		hasher:     sha256.New(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key builds the cache key for a request.
func Key(method, rawURL string) string {
	return strings.ToUpper(method) + " " + rawURL
}

// Generation returns the active generation name.
func (c *Cache) Generation() string {
	return c.generation
}

func (c *Cache) objectPath(key string) string {
	return c.generation + "/" + c.hasher.Key(key) + ".json"
}

// Get returns the entry for method+url or ErrMiss.
func (c *Cache) Get(ctx context.Context, method, rawURL string) (Entry, error) {
	key := Key(method, rawURL)
	data, err := c.blobs.Get(ctx, c.objectPath(key))
	if errors.Is(err, store.ErrNotFound) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read cache entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Key != key {
		// Hash collision or a foreign object; treat as absent.
		return Entry{}, ErrMiss
	}
	return entry, nil
}

// Put stores entry, filling Key and StoredAt.
func (c *Cache) Put(ctx context.Context, entry Entry) error {
	if entry.Method == "" {
		entry.Method = http.MethodGet
	}
	if entry.URL == "" {
		return fmt.Errorf("cache entry url is required")
	}
	entry.Key = Key(entry.Method, entry.URL)
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.blobs.Put(ctx, c.objectPath(entry.Key), "application/json", data); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for method+url.
func (c *Cache) Delete(ctx context.Context, method, rawURL string) error {
	if err := c.blobs.Delete(ctx, c.objectPath(Key(method, rawURL))); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Len counts entries in the active generation.
func (c *Cache) Len(ctx context.Context) (int, error) {
	paths, err := c.blobs.List(ctx, c.generation+"/")
	if err != nil {
		return 0, fmt.Errorf("list cache entries: %w", err)
	}
	return len(paths), nil
}

// Activate deletes every object outside the active generation and returns how many
// were removed.
func (c *Cache) Activate(ctx context.Context) (int, error) {
	paths, err := c.blobs.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list cache objects: %w", err)
	}
	prefix := c.generation + "/"
	removed := 0
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			continue
		}
		if err := c.blobs.Delete(ctx, p); err != nil {
			return removed, fmt.Errorf("delete stale cache object %s: %w", p, err)
		}
		removed++
	}
	if removed > 0 {
		c.logger.Info("removed stale cache generations",
			zap.String("generation", c.generation),
			zap.Int("objects", removed),
		)
	}
	return removed, nil
}
