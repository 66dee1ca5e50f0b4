package server

import (
	"context"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/bgsync"
	bgpubsub "github.com/JakeFAU/leadcapture/internal/bgsync/pubsub"
	"github.com/JakeFAU/leadcapture/internal/config"
	"github.com/JakeFAU/leadcapture/internal/logging"
	"github.com/JakeFAU/leadcapture/internal/outbox"
	"github.com/JakeFAU/leadcapture/internal/outbox/memory"
	"github.com/JakeFAU/leadcapture/internal/outbox/sqlite"
	"github.com/JakeFAU/leadcapture/internal/progress"
	"github.com/JakeFAU/leadcapture/internal/progress/sinks"
	"github.com/JakeFAU/leadcapture/internal/storage/gcs"
	"github.com/JakeFAU/leadcapture/internal/storage/local"
	blobmemory "github.com/JakeFAU/leadcapture/internal/storage/memory"
	"github.com/JakeFAU/leadcapture/internal/store"
	"github.com/JakeFAU/leadcapture/internal/telemetry"
)

// Version is reported as the service.version resource attribute.
var Version = "dev"

func setupTelemetry(ctx context.Context, app *App, cfg config.Config) (*sdktrace.TracerProvider, error) {
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		Exporter:    cfg.Telemetry.Exporter,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	app.addCloser("tracer provider", tp.Shutdown)
	return tp, nil
}

// OpenOutbox opens the configured submission store.
func OpenOutbox(ctx context.Context, cfg config.Config, logger *zap.Logger) (outbox.Store, error) {
	if cfg.Outbox.Ephemeral {
		logger.Warn("using in-memory outbox; queued submissions will not survive a restart")
		return memory.NewStore(), nil
	}
	st, err := sqlite.Open(ctx, cfg.Outbox.Path)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	logger.Info("outbox opened", zap.String("path", cfg.Outbox.Path))
	return st, nil
}

func setupBlobStore(ctx context.Context, app *App, cfg config.Config) (store.BlobStore, error) {
	switch cfg.Cache.Backend {
	case config.CacheLocal:
		bs, err := local.New(local.Config{BaseDir: cfg.Cache.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store: %w", err)
		}
		return bs, nil
	case config.CacheGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		app.addCloser("gcs client", func(context.Context) error { return client.Close() })
		bs, err := gcs.New(client, gcs.Config{Bucket: cfg.Cache.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store: %w", err)
		}
		return bs, nil
	default:
		return blobmemory.NewBlobStore(), nil
	}
}

// backgroundRegistrar is a bgsync.Registrar that also accepts the handler it dispatches to.
type backgroundRegistrar interface {
	bgsync.Registrar
	Bind(h bgsync.Handler)
}

func setupRegistrar(ctx context.Context, app *App, cfg config.Config) (backgroundRegistrar, error) {
	initial, maxDelay := cfg.SyncBackoff()
	switch cfg.Sync.Background {
	case config.BackgroundLocal:
		reg := bgsync.NewLocal(bgsync.LocalConfig{
			Backoff: bgsync.ExponentialBackoff{Base: initial, Max: maxDelay, Jitter: true},
			Logger:  logging.Named(app.logger, "bgsync"),
		})
		app.addCloser("background sync", reg.Close)
		return reg, nil
	case config.BackgroundPubSub:
		client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		app.addCloser("pubsub client", func(context.Context) error { return client.Close() })
		psCfg := bgpubsub.Config{
			TopicName:        cfg.PubSub.TopicName,
			SubscriptionName: cfg.PubSub.SubscriptionName,
			MinBackoff:       initial,
			MaxBackoff:       maxDelay,
		}
		if err := bgpubsub.Ensure(ctx, client, psCfg); err != nil {
			return nil, fmt.Errorf("ensure pubsub resources: %w", err)
		}
		reg, err := bgpubsub.New(client, psCfg, logging.Named(app.logger, "bgsync"))
		if err != nil {
			return nil, err
		}
		app.addRunner("pubsub receive", reg.Run)
		app.addCloser("pubsub registrar", func(context.Context) error {
			reg.Close()
			return nil
		})
		return reg, nil
	default:
		return nil, nil
	}
}

// setupProgress builds the hub fanning drain events out to the log and to
// Prometheus. reg may be nil for the default registry.
func setupProgress(app *App, reg prometheus.Registerer) *progress.Hub {
	logger := logging.Named(app.logger, "progress")
	hubSinks := []progress.Sink{sinks.NewLogSink(logger)}
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		logger.Warn("prometheus progress sink disabled", zap.Error(err))
	} else {
		hubSinks = append(hubSinks, promSink)
	}
	hub := progress.NewHub(progress.Config{
		MaxBatchWait: 250 * time.Millisecond,
		Logger:       logger,
	}, hubSinks...)
	app.addCloser("progress hub", hub.Close)
	return hub
}
