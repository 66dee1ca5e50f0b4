// Package syncer drains the outbox against the submission endpoint. The Coordinator owns
// the sync state machine and guarantees that at most one drain pass runs at a time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/bgsync"
	"github.com/JakeFAU/leadcapture/internal/connectivity"
	"github.com/JakeFAU/leadcapture/internal/outbox"
	"github.com/JakeFAU/leadcapture/internal/progress"
)

var (
	// ErrSyncNotAllowed rejects a manual sync while offline or with an empty outbox.
	ErrSyncNotAllowed = errors.New("sync not allowed")
	// ErrAlreadySyncing is returned when a pass is already running.
	ErrAlreadySyncing = errors.New("sync already in progress")
	// ErrIncomplete reports a background pass that left entries undelivered.
	ErrIncomplete = errors.New("sync incomplete")
)

// Submitter replays a stored payload against the submission endpoint.
type Submitter interface {
	Deliver(ctx context.Context, payload []byte) error
}

// Monitor is the connectivity signal the coordinator follows.
type Monitor interface {
	Online() bool
	Subscribe(connectivity.Handler) (unsubscribe func())
}

// IDGenerator mints drain pass ids.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Config wires a Coordinator. Store, Submitter and Monitor are required.
type Config struct {
	Store     outbox.Store
	Submitter Submitter
	Monitor   Monitor
	// Registrar, when set, receives a registration for Tag on connectivity restore
	// instead of an inline drain.
	Registrar bgsync.Registrar
	Tag       string
	// SubmitTimeout bounds each delivery; zero defers to the transport.
	SubmitTimeout time.Duration
	// PeriodicInterval enables a timer trigger in Run; zero disables it.
	PeriodicInterval time.Duration
	Emitter          progress.Emitter
	IDs              IDGenerator
	Now              func() time.Time
	Tracer           trace.Tracer
	Logger           *zap.Logger
}

// Coordinator runs the sync state machine.
type Coordinator struct {
	store     outbox.Store
	submitter Submitter
	monitor   Monitor
	registrar bgsync.Registrar
	tag       string
	timeout   time.Duration
	periodic  time.Duration
	emitter   progress.Emitter
	ids       IDGenerator
	now       func() time.Time
	tracer    trace.Tracer
	logger    *zap.Logger

	mu        sync.Mutex
	state     State
	running   bool
	last      *Result
	lastRunAt time.Time
	subs      map[uint64]func(State)
	nextSub   uint64

	bgCtx    context.Context
	bgCancel context.CancelFunc
	passes   sync.WaitGroup
}

// New validates cfg and builds a Coordinator. The initial state is idle when the
// monitor reports online and offline otherwise.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("outbox store is required")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if cfg.Monitor == nil {
		return nil, fmt.Errorf("connectivity monitor is required")
	}
	if cfg.Registrar != nil && cfg.Tag == "" {
		return nil, fmt.Errorf("sync tag is required with a registrar")
	}
	if cfg.Emitter == nil {
		cfg.Emitter = progress.Discard
	}
	if cfg.IDs == nil {
		cfg.IDs = randomIDs{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/JakeFAU/leadcapture/internal/syncer")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	state := StateIdle
	if !cfg.Monitor.Online() {
		state = StateOffline
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:     cfg.Store,
		submitter: cfg.Submitter,
		monitor:   cfg.Monitor,
		registrar: cfg.Registrar,
		tag:       cfg.Tag,
		timeout:   cfg.SubmitTimeout,
		periodic:  cfg.PeriodicInterval,
		emitter:   cfg.Emitter,
		ids:       cfg.IDs,
		now:       cfg.Now,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger,
		state:     state,
		subs:      make(map[uint64]func(State)),
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
	}, nil
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status reports state, connectivity, queue depth and the last pass.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	pending, err := c.store.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count pending: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:     c.state,
		Online:    c.monitor.Online(),
		Pending:   pending,
		LastRunAt: c.lastRunAt,
	}
	if c.last != nil {
		last := *c.last
		st.LastRun = &last
	}
	return st, nil
}

// Subscribe registers fn for state changes and returns its cancel function.
func (c *Coordinator) Subscribe(fn func(State)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Run follows the monitor and the periodic trigger until ctx ends, then waits for
// any pass it started.
func (c *Coordinator) Run(ctx context.Context) {
	unsubscribe := c.monitor.Subscribe(c.HandleConnectivity)
	defer unsubscribe()

	var tick <-chan time.Time
	if c.periodic > 0 {
		ticker := time.NewTicker(c.periodic)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			c.bgCancel()
			c.passes.Wait()
			return
		case <-tick:
			c.periodicTrigger(ctx)
		}
	}
}

func (c *Coordinator) periodicTrigger(ctx context.Context) {
	if !c.monitor.Online() {
		return
	}
	n, err := c.store.Count(ctx)
	if err != nil {
		c.logger.Warn("periodic sync count failed", zap.Error(err))
		return
	}
	if n == 0 {
		return
	}
	c.startAsync(TriggerPeriodic)
}

// HandleConnectivity applies a monitor transition. It never blocks on delivery or
// background registration.
func (c *Coordinator) HandleConnectivity(evt connectivity.Event) {
	switch evt.Kind {
	case connectivity.WentOffline:
		c.mu.Lock()
		if c.running {
			// Applied when the pass finishes.
			c.mu.Unlock()
			return
		}
		changed := c.setStateLocked(StateOffline)
		c.mu.Unlock()
		c.notify(changed, StateOffline)
	case connectivity.WentOnline:
		c.mu.Lock()
		if c.running || c.state == StateSyncing {
			c.mu.Unlock()
			return
		}
		if c.registrar == nil {
			c.mu.Unlock()
			c.startAsync(TriggerConnectivity)
			return
		}
		changed := c.setStateLocked(StateSyncing)
		c.mu.Unlock()
		c.notify(changed, StateSyncing)

		c.passes.Add(1)
		go func() {
			defer c.passes.Done()
			if c.registerBackground() {
				return
			}
			// Still syncing: the inline pass takes over without an idle gap.
			if _, err := c.Drain(c.bgCtx, TriggerConnectivity); err != nil && !errors.Is(err, ErrAlreadySyncing) {
				c.logger.Warn("sync pass failed", zap.String("trigger", string(TriggerConnectivity)), zap.Error(err))
			}
		}()
	}
}

// registerBackground hands the drain to the registrar. It reports false when
// registration failed and the caller should drain inline.
func (c *Coordinator) registerBackground() bool {
	ctx, cancel := context.WithTimeout(c.bgCtx, 10*time.Second)
	defer cancel()
	if err := c.registrar.Register(ctx, c.tag); err != nil {
		c.logger.Warn("background sync registration failed, draining inline",
			zap.String("tag", c.tag), zap.Error(err))
		return false
	}
	c.logger.Debug("background sync registered", zap.String("tag", c.tag))
	return true
}

func (c *Coordinator) startAsync(trigger Trigger) {
	c.passes.Add(1)
	go func() {
		defer c.passes.Done()
		if _, err := c.Drain(c.bgCtx, trigger); err != nil && !errors.Is(err, ErrAlreadySyncing) {
			c.logger.Warn("sync pass failed", zap.String("trigger", string(trigger)), zap.Error(err))
		}
	}()
}

// SyncNow runs a manual pass. It is only allowed while online, with a non-empty outbox
// and no pass in flight or registered with the background registrar.
func (c *Coordinator) SyncNow(ctx context.Context) (Result, error) {
	if !c.monitor.Online() {
		return Result{}, fmt.Errorf("%w: offline", ErrSyncNotAllowed)
	}
	c.mu.Lock()
	// Syncing without a running pass means a background pass is registered and pending.
	busy := c.running || c.state == StateSyncing
	c.mu.Unlock()
	if busy {
		return Result{}, ErrAlreadySyncing
	}
	n, err := c.store.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("count pending: %w", err)
	}
	if n == 0 {
		return Result{}, fmt.Errorf("%w: nothing to sync", ErrSyncNotAllowed)
	}
	return c.Drain(ctx, TriggerManual)
}

// HandleBackgroundSync is the bgsync.Handler for the registered tag. It returns an
// error whenever entries remain so the registrar retries later.
func (c *Coordinator) HandleBackgroundSync(ctx context.Context, tag string) error {
	if tag != c.tag {
		c.logger.Warn("ignoring background sync for unknown tag", zap.String("tag", tag))
		return nil
	}
	if !c.monitor.Online() {
		c.mu.Lock()
		changed := false
		if !c.running && c.state == StateSyncing {
			changed = c.setStateLocked(StateOffline)
		}
		c.mu.Unlock()
		c.notify(changed, StateOffline)
		return fmt.Errorf("%w: offline", ErrIncomplete)
	}
	res, err := c.Drain(ctx, TriggerBackground)
	if err != nil {
		return err
	}
	if res.State == StatePartial || res.State == StateError {
		return fmt.Errorf("%w: %d of %d deliveries failed", ErrIncomplete, res.Failed, res.Attempted)
	}
	return nil
}

// Drain performs one pass: list once, deliver oldest first, remove each success
// immediately and keep going past failures. Concurrent callers get ErrAlreadySyncing.
func (c *Coordinator) Drain(ctx context.Context, trigger Trigger) (Result, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return Result{}, ErrAlreadySyncing
	}
	c.running = true
	changed := c.setStateLocked(StateSyncing)
	c.mu.Unlock()
	c.notify(changed, StateSyncing)

	start := c.now()
	runID := c.runID()
	ctx, span := c.tracer.Start(ctx, "syncer.drain", trace.WithAttributes(
		attribute.String("sync.trigger", string(trigger)),
		attribute.String("sync.run_id", uuid.UUID(runID).String()),
	))
	defer span.End()

	c.emitter.Emit(progress.Event{RunID: runID, TS: start, Stage: progress.StagePassStart, Trigger: string(trigger)})

	res, err := c.drain(ctx, runID, trigger)
	res.Trigger = trigger
	res.Duration = c.now().Sub(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("sync.attempted", res.Attempted),
		attribute.Int("sync.delivered", res.Delivered),
		attribute.Int("sync.failed", res.Failed),
		attribute.String("sync.state", string(res.State)),
	)

	final := res.State
	if !c.monitor.Online() {
		final = StateOffline
	}
	c.mu.Lock()
	c.running = false
	changed = c.setStateLocked(final)
	c.last = &res
	c.lastRunAt = start
	c.mu.Unlock()
	c.notify(changed, final)

	c.emitter.Emit(progress.Event{
		RunID:     runID,
		TS:        c.now(),
		Stage:     progress.StagePassDone,
		Trigger:   string(trigger),
		State:     string(res.State),
		Attempted: res.Attempted,
		Delivered: res.Delivered,
		Failed:    res.Failed,
		Remaining: res.Remaining,
		Dur:       nonNegative(res.Duration),
		Note:      errNote(err),
	})
	c.logger.Info("sync pass finished",
		zap.String("trigger", string(trigger)),
		zap.String("state", string(res.State)),
		zap.Int("delivered", res.Delivered),
		zap.Int("failed", res.Failed),
		zap.Int("remaining", res.Remaining),
	)
	return res, err
}

func (c *Coordinator) drain(ctx context.Context, runID [16]byte, trigger Trigger) (Result, error) {
	n, err := c.store.Count(ctx)
	if err != nil {
		return Result{State: StateError}, fmt.Errorf("count pending: %w", err)
	}
	if n == 0 {
		return Result{State: StateIdle}, nil
	}
	entries, err := c.store.ListAll(ctx)
	if err != nil {
		return Result{State: StateError, Remaining: n}, fmt.Errorf("list pending: %w", err)
	}

	var (
		res       Result
		removeErr error
	)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		res.Attempted++
		began := c.now()
		err := c.deliver(ctx, entry.Payload)
		dur := nonNegative(c.now().Sub(began))
		if err != nil {
			res.Failed++
			c.logger.Warn("delivery failed",
				zap.Int64("entry_id", entry.ID),
				zap.String("trigger", string(trigger)),
				zap.Error(err),
			)
			c.emitter.Emit(progress.Event{
				RunID: runID, TS: c.now(), Stage: progress.StageDeliveryFailed,
				EntryID: entry.ID, Dur: dur, Note: err.Error(),
			})
			continue
		}
		res.Delivered++
		if err := c.store.Remove(ctx, entry.ID); err != nil {
			// Delivered but still queued: the next pass will resend it.
			c.logger.Error("remove delivered entry failed", zap.Int64("entry_id", entry.ID), zap.Error(err))
			removeErr = errors.Join(removeErr, fmt.Errorf("remove %d: %w", entry.ID, err))
		}
		c.emitter.Emit(progress.Event{
			RunID: runID, TS: c.now(), Stage: progress.StageDeliveryOK,
			EntryID: entry.ID, Dur: dur,
		})
	}

	res.State = terminalState(res.Delivered, res.Failed)
	if res.Attempted == 0 {
		// Canceled before the first attempt.
		res.State = StateError
	}
	remaining, err := c.store.Count(context.WithoutCancel(ctx))
	if err != nil {
		c.logger.Warn("count after pass failed", zap.Error(err))
		remaining = len(entries) - res.Delivered
	}
	res.Remaining = remaining
	if ctx.Err() != nil {
		return res, errors.Join(removeErr, fmt.Errorf("drain interrupted: %w", ctx.Err()))
	}
	return res, removeErr
}

func (c *Coordinator) deliver(ctx context.Context, payload []byte) error {
	if c.timeout <= 0 {
		return c.submitter.Deliver(ctx, payload)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.submitter.Deliver(ctx, payload)
}

func (c *Coordinator) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Coordinator) notify(changed bool, s State) {
	if !changed {
		return
	}
	c.emitter.Emit(progress.Event{TS: c.now(), Stage: progress.StageStateChange, State: string(s)})
	c.mu.Lock()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (c *Coordinator) runID() [16]byte {
	id, err := c.ids.NewRawID()
	if err != nil {
		c.logger.Warn("generate run id failed", zap.Error(err))
		id = uuid.New()
	}
	return progress.UUIDToBytes(id)
}

type randomIDs struct{}

func (randomIDs) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func errNote(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
