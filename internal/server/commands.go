package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/cache"
	"github.com/JakeFAU/leadcapture/internal/config"
	"github.com/JakeFAU/leadcapture/internal/logging"
	"github.com/JakeFAU/leadcapture/internal/outbox"
	"github.com/JakeFAU/leadcapture/internal/precache"
	"github.com/JakeFAU/leadcapture/internal/syncer"
)

// PendingSubmissions returns the outbox snapshot, oldest first.
func PendingSubmissions(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]outbox.PendingSubmission, error) {
	ob, err := OpenOutbox(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := ob.Close(); cerr != nil {
			logger.Warn("close outbox", zap.Error(cerr))
		}
	}()
	return ob.ListAll(ctx)
}

// SyncOnce probes the upstream and, when it is reachable, runs one drain pass
// over the outbox. An empty outbox yields a zero Result.
func SyncOnce(ctx context.Context, cfg config.Config, logger *zap.Logger) (syncer.Result, error) {
	app := newApp("sync", 0, logger)
	defer func() { _ = app.Close(ctx) }()

	ob, err := openEdgeOutbox(ctx, app, cfg)
	if err != nil {
		return syncer.Result{}, err
	}
	hub := setupProgress(app, nil)
	core, err := buildEdgeCore(app, cfg, ob, nil, hub)
	if err != nil {
		return syncer.Result{}, err
	}
	n, err := core.outbox.Count(ctx)
	if err != nil {
		return syncer.Result{}, fmt.Errorf("count pending: %w", err)
	}
	if n == 0 {
		return syncer.Result{}, nil
	}
	if !core.prober.ProbeOnce(ctx) {
		return syncer.Result{}, fmt.Errorf("%w: upstream %s unreachable", syncer.ErrSyncNotAllowed, cfg.ProbeURL())
	}
	return core.coord.SyncNow(ctx)
}

// Precache fetches the install assets into the configured cache backend and
// activates the configured generation.
func Precache(ctx context.Context, cfg config.Config, logger *zap.Logger) (precache.Report, error) {
	app := newApp("precache", 0, logger)
	defer func() { _ = app.Close(ctx) }()

	blobs, err := setupBlobStore(ctx, app, cfg)
	if err != nil {
		return precache.Report{}, err
	}
	c, err := cache.New(blobs, cfg.Cache.Generation, cache.WithLogger(logging.Named(logger, "cache")))
	if err != nil {
		return precache.Report{}, fmt.Errorf("build cache: %w", err)
	}
	upstream, err := parseUpstream(cfg)
	if err != nil {
		return precache.Report{}, err
	}
	return runPrecache(ctx, c, upstream, cfg, logger)
}
