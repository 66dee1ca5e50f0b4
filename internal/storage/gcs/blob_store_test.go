package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/leadcapture/internal/store"
)

const testBucket = "test-bucket"

func newTestBlobStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	blobs, err := New(client, Config{Bucket: testBucket})
	require.NoError(t, err)
	return blobs
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: testBucket})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutUploadsObject(t *testing.T) {
	t.Parallel()

	objectName := "lead-generation-app-v1/abc.json"
	objectData := []byte(`{"status":200}`)

	blobs := newTestBlobStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/upload/storage/v1/b/%s/o", testBucket))
		assert.Equal(t, objectName, r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(objectData))
		_, _ = fmt.Fprintln(w, `{"name":"`+objectName+`","bucket":"`+testBucket+`"}`)
	}))

	require.NoError(t, blobs.Put(context.Background(), objectName, "application/json", objectData))
	require.Error(t, blobs.Put(context.Background(), " ", "", objectData))
}

func TestPutCanceledContext(t *testing.T) {
	t.Parallel()

	blobs := newTestBlobStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, blobs.Put(ctx, "obj", "", []byte("x")))
}

func TestListPaginatesNames(t *testing.T) {
	t.Parallel()

	blobs := newTestBlobStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/storage/v1/b/%s/o", testBucket))
		assert.Equal(t, "v1/", r.URL.Query().Get("prefix"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"kind":"storage#objects","items":[{"name":"v1/a.json","bucket":"test-bucket"},{"name":"v1/b.json","bucket":"test-bucket"}]}`)
	}))

	names, err := blobs.List(context.Background(), "v1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1/a.json", "v1/b.json"}, names)
}

func TestMissingObjects(t *testing.T) {
	t.Parallel()

	blobs := newTestBlobStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"error":{"code":404,"message":"No such object"}}`)
	}))

	_, err := blobs.Get(context.Background(), "v1/missing.json")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, blobs.Delete(context.Background(), "v1/missing.json"))
}
