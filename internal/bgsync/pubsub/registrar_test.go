package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) *gpubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := gpubsub.NewClient(context.Background(), "leadcapture-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRegistrarRedeliversUntilHandled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)
	cfg := Config{TopicName: "lead-sync", SubscriptionName: "lead-sync-edge"}
	require.NoError(t, Ensure(ctx, client, cfg))
	require.NoError(t, Ensure(ctx, client, cfg), "ensure is idempotent")

	reg, err := New(client, cfg, nil)
	require.NoError(t, err)
	defer reg.Close()

	var (
		mu    sync.Mutex
		tags  []string
		calls int
	)
	reg.Bind(func(_ context.Context, tag string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		tags = append(tags, tag)
		if calls == 1 {
			return errors.New("upstream still failing")
		}
		return nil
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- reg.Run(runCtx) }()

	require.NoError(t, reg.Register(ctx, "lead-form-submission"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, tag := range tags {
		require.Equal(t, "lead-form-submission", tag)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{TopicName: "t", SubscriptionName: "s"}, nil)
	require.Error(t, err)

	client := newTestClient(t)
	_, err = New(client, Config{TopicName: "t"}, nil)
	require.Error(t, err)
}
