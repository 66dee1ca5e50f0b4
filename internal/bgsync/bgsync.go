// Package bgsync provides durable background retry registration for the sync coordinator.
// A registration names a task; the registrar guarantees the handler bound to that name
// runs at least once afterwards and keeps retrying while the handler reports failure.
package bgsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoHandler is returned by Register when no handler has been bound yet.
var ErrNoHandler = errors.New("background sync handler not bound")

// Handler performs the work for tag. A nil error completes the registration; any
// error asks the registrar to try again later.
type Handler func(ctx context.Context, tag string) error

// Registrar records a named retry request. Register is fire-and-forget.
type Registrar interface {
	Register(ctx context.Context, tag string) error
}

// LocalConfig configures an in-process registrar.
type LocalConfig struct {
	Backoff Backoff
	Logger  *zap.Logger
}

// Local is an in-process Registrar. Registrations of a tag that is already scheduled
// are coalesced into one follow-up run.
type Local struct {
	mu      sync.Mutex
	handler Handler
	tasks   map[string]*task
	backoff Backoff
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	rerun bool
}

// NewLocal builds a Local registrar. Bind a handler before registering.
func NewLocal(cfg LocalConfig) *Local {
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = ExponentialBackoff{Base: time.Second, Max: time.Minute, Jitter: true}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		tasks:   make(map[string]*task),
		backoff: backoff,
		logger:  logger,
		sleep:   sleepCtx,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Bind sets the handler invoked for every tag.
func (l *Local) Bind(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// Register schedules tag. The caller's ctx only bounds the registration itself; the
// task outlives it and stops when the registrar is closed.
func (l *Local) Register(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("register %s: %w", tag, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler == nil {
		return ErrNoHandler
	}
	if l.ctx.Err() != nil {
		return fmt.Errorf("register %s: registrar closed", tag)
	}
	if t, ok := l.tasks[tag]; ok {
		t.rerun = true
		return nil
	}
	l.tasks[tag] = &task{}
	l.wg.Add(1)
	go l.run(tag, l.handler)
	return nil
}

func (l *Local) run(tag string, handler Handler) {
	defer l.wg.Done()
	attempt := 0
	for {
		err := handler(l.ctx, tag)
		if err == nil {
			attempt = 0
			if l.finish(tag) {
				return
			}
			continue
		}
		if l.ctx.Err() != nil {
			l.drop(tag)
			return
		}
		delay := l.backoff.NextDelay(attempt)
		attempt++
		l.logger.Info("background sync will retry",
			zap.String("tag", tag),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := l.sleep(l.ctx, delay); err != nil {
			l.drop(tag)
			return
		}
		l.clearRerun(tag)
	}
}

// finish removes the task unless a registration arrived while it ran. It reports
// whether the task is gone.
func (l *Local) finish(tag string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.tasks[tag]
	if t != nil && t.rerun {
		t.rerun = false
		return false
	}
	delete(l.tasks, tag)
	return true
}

func (l *Local) clearRerun(tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t := l.tasks[tag]; t != nil {
		t.rerun = false
	}
}

func (l *Local) drop(tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tasks, tag)
}

// Pending reports whether tag is scheduled or running.
func (l *Local) Pending(tag string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tasks[tag]
	return ok
}

// Close cancels outstanding tasks and waits for them to exit or ctx to end.
func (l *Local) Close(ctx context.Context) error {
	l.cancel()
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background sync close wait: %w", ctx.Err())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
