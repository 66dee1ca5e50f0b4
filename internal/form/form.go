// Package form implements the lead capture submit flow: deliver when online, park the
// payload in the outbox when the network is gone, and surface everything else.
package form

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/bgsync"
	"github.com/JakeFAU/leadcapture/internal/leadclient"
	"github.com/JakeFAU/leadcapture/internal/outbox"
)

var (
	// ErrSubmissionFailed is the generic error shown when an online submission fails.
	ErrSubmissionFailed = errors.New("submission failed, please try again")
	// ErrOfflineSaveFailed means the payload could not be stored for later delivery.
	ErrOfflineSaveFailed = errors.New("cannot save your information offline")
)

// Outcome is the result of a successful Submit.
type Outcome string

// Submit outcomes.
const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
)

// Submitter sends a payload to the submission endpoint.
type Submitter interface {
	Submit(ctx context.Context, payload []byte) (leadclient.Response, error)
}

// Connectivity reports the current online state.
type Connectivity interface {
	Online() bool
}

// Result describes what happened to one submission.
type Result struct {
	Outcome Outcome
	// QueueID is set when the payload was parked in the outbox.
	QueueID int64
	// Response is set when the endpoint accepted the payload.
	Response leadclient.Response
}

// Config wires a Form.
type Config struct {
	Store        outbox.Store
	Submitter    Submitter
	Connectivity Connectivity
	// Registrar is optional; when set, a queued payload also registers Tag for
	// background retry.
	Registrar bgsync.Registrar
	Tag       string
	Logger    *zap.Logger
}

// Form runs the submit flow.
type Form struct {
	store     outbox.Store
	submitter Submitter
	conn      Connectivity
	registrar bgsync.Registrar
	tag       string
	logger    *zap.Logger
}

// New validates cfg and builds a Form.
func New(cfg Config) (*Form, error) {
	if cfg.Store == nil || cfg.Submitter == nil || cfg.Connectivity == nil {
		return nil, fmt.Errorf("form requires a store, a submitter and a connectivity source")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Form{
		store:     cfg.Store,
		submitter: cfg.Submitter,
		conn:      cfg.Connectivity,
		registrar: cfg.Registrar,
		tag:       cfg.Tag,
		logger:    logger,
	}, nil
}

// Submit delivers payload or queues it. The payload is never inspected.
func (f *Form) Submit(ctx context.Context, payload []byte) (Result, error) {
	if !f.conn.Online() {
		return f.queue(ctx, payload)
	}
	resp, err := f.submitter.Submit(ctx, payload)
	if err == nil {
		return Result{Outcome: OutcomeDelivered, Response: resp}, nil
	}
	if leadclient.IsNetworkError(err) && !f.conn.Online() {
		f.logger.Info("submission hit the network while going offline, queueing", zap.Error(err))
		return f.queue(ctx, payload)
	}
	f.logger.Warn("submission failed", zap.Error(err))
	return Result{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
}

func (f *Form) queue(ctx context.Context, payload []byte) (Result, error) {
	id, err := f.store.Enqueue(ctx, payload)
	if err != nil {
		f.logger.Error("offline save failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrOfflineSaveFailed, err)
	}
	f.logger.Info("submission queued for sync", zap.Int64("entry_id", id))
	if f.registrar != nil && f.tag != "" {
		if err := f.registrar.Register(ctx, f.tag); err != nil {
			// The entry stays queued; the next connectivity trigger drains it.
			f.logger.Warn("background sync registration failed", zap.String("tag", f.tag), zap.Error(err))
		}
	}
	return Result{Outcome: OutcomeQueued, QueueID: id}, nil
}
