package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadcapture/internal/storage/memory"
)

func TestNewValidatesGeneration(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	tests := []struct {
		name       string
		generation string
		wantErr    bool
	}{
		{"default", DefaultGeneration, false},
		{"empty", " ", true},
		{"slash", "a/b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(blobs, tt.generation)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
	_, err := New(nil, DefaultGeneration)
	require.Error(t, err)
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stamp := time.Unix(1700000000, 0).UTC()
	c, err := New(memory.NewBlobStore(), DefaultGeneration, WithClock(func() time.Time { return stamp }))
	require.NoError(t, err)

	_, err = c.Get(ctx, http.MethodGet, "http://app.test/")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Put(ctx, Entry{
		URL:    "http://app.test/",
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte("<h1>home</h1>"),
	}))

	got, err := c.Get(ctx, "get", "http://app.test/")
	require.NoError(t, err)
	assert.Equal(t, Entry{
		Key:      "GET http://app.test/",
		Method:   http.MethodGet,
		URL:      "http://app.test/",
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": {"text/html"}},
		Body:     []byte("<h1>home</h1>"),
		StoredAt: stamp,
	}, got)

	_, err = c.Get(ctx, http.MethodHead, "http://app.test/")
	require.ErrorIs(t, err, ErrMiss)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Delete(ctx, http.MethodGet, "http://app.test/"))
	_, err = c.Get(ctx, http.MethodGet, "http://app.test/")
	require.ErrorIs(t, err, ErrMiss)

	require.Error(t, c.Put(ctx, Entry{}))
}

func TestActivateDropsOtherGenerations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()

	old, err := New(blobs, "lead-generation-app-v0")
	require.NoError(t, err)
	require.NoError(t, old.Put(ctx, Entry{URL: "http://app.test/", Status: 200}))
	require.NoError(t, old.Put(ctx, Entry{URL: "http://app.test/offline", Status: 200}))
	require.NoError(t, blobs.Put(ctx, "stray.json", "", []byte("{}")))

	current, err := New(blobs, DefaultGeneration)
	require.NoError(t, err)
	require.NoError(t, current.Put(ctx, Entry{URL: "http://app.test/", Status: 200, Body: []byte("new")}))

	removed, err := current.Activate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	got, err := current.Get(ctx, http.MethodGet, "http://app.test/")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got.Body))
	_, err = old.Get(ctx, http.MethodGet, "http://app.test/")
	require.ErrorIs(t, err, ErrMiss)

	removed, err = current.Activate(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestGenerationsDoNotShareEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()
	v1, err := New(blobs, "v1")
	require.NoError(t, err)
	v2, err := New(blobs, "v2")
	require.NoError(t, err)

	require.NoError(t, v1.Put(ctx, Entry{URL: "http://app.test/a", Status: 200}))
	_, err = v2.Get(ctx, http.MethodGet, "http://app.test/a")
	require.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, "v2", v2.Generation())
}
