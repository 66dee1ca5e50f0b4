// Package connectivity tracks whether the submission endpoint is believed reachable and
// notifies subscribers on transitions.
package connectivity

import (
	"sync"
	"time"
)

// Kind identifies a connectivity transition.
type Kind string

// Transition kinds. Events are edge-triggered: repeated reports of the same state emit nothing.
const (
	WentOnline  Kind = "went_online"
	WentOffline Kind = "went_offline"
)

// Event describes a single transition.
type Event struct {
	Kind Kind
	At   time.Time
}

// Handler receives transition events. Handlers run synchronously on the goroutine that
// reported the change and must not block for long.
type Handler func(Event)

// Monitor holds the current online state.
type Monitor struct {
	mu       sync.RWMutex
	online   bool
	subs     map[uint64]Handler
	nextSub  uint64
	now      func() time.Time
	notifyMu sync.Mutex
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(initiallyOnline bool) *Monitor {
	return &Monitor{
		online: initiallyOnline,
		subs:   make(map[uint64]Handler),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers h and returns a function that removes it. Calling the returned
// function more than once is harmless.
func (m *Monitor) Subscribe(h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = h
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Set records the observed state and notifies subscribers when it changed. It reports
// whether a transition happened.
func (m *Monitor) Set(online bool) bool {
	// notifyMu keeps events ordered when reporters race.
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	handlers := make([]Handler, 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	evt := Event{Kind: WentOffline, At: m.now()}
	if online {
		evt.Kind = WentOnline
	}
	for _, h := range handlers {
		h(evt)
	}
	return true
}
