package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StagePassStart))
	hub.Emit(sampleEvent(StagePassStart))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 20 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StagePassStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{events: make(chan Event), logger: zap.NewNop()}
	start := time.Now()
	for i := 0; i < 10; i++ {
		hub.Emit(sampleEvent(StagePassStart))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
	// The first drop is reported immediately and resets the counter.
	require.Equal(t, int64(9), hub.dropped.Load())
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)

	hub.Emit(sampleEvent(StagePassStart))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.True(t, sink.Closed())

	hub.Emit(sampleEvent(StagePassStart))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)
	hub.Emit(Event{Stage: StagePassStart})
	hub.Emit(Event{TS: time.Now(), Stage: "BOGUS"})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StagePassStart))
	require.NoError(t, hub.Close(context.Background()))
	Discard.Emit(sampleEvent(StagePassStart))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	run := UUIDToBytes(uuid.New())
	now := time.Now()
	tests := []struct {
		name string
		evt  Event
		ok   bool
	}{
		{"pass start", Event{RunID: run, TS: now, Stage: StagePassStart}, true},
		{"pass start without run", Event{TS: now, Stage: StagePassStart}, false},
		{"pass done without state", Event{RunID: run, TS: now, Stage: StagePassDone}, false},
		{"pass done", Event{RunID: run, TS: now, Stage: StagePassDone, State: "success"}, true},
		{"delivery without entry", Event{RunID: run, TS: now, Stage: StageDeliveryOK}, false},
		{"delivery failed", Event{RunID: run, TS: now, Stage: StageDeliveryFailed, EntryID: 3}, true},
		{"state change", Event{TS: now, Stage: StageStateChange, State: "offline"}, true},
		{"negative duration", Event{TS: now, Stage: StageStateChange, State: "idle", Dur: -1}, false},
		{"missing timestamp", Event{Stage: StageStateChange, State: "idle"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.evt.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
	require.Equal(t, uuid.UUID(run), Event{RunID: run}.RunUUID())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	copy(out, s.batches)
	return out
}

func sampleEvent(stage Stage) Event {
	return Event{RunID: UUIDToBytes(uuid.New()), TS: time.Now(), Stage: stage, Trigger: "manual"}
}
