package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/cache"
	"github.com/JakeFAU/leadcapture/internal/config"
	"github.com/JakeFAU/leadcapture/internal/connectivity"
	"github.com/JakeFAU/leadcapture/internal/edge"
	"github.com/JakeFAU/leadcapture/internal/form"
	"github.com/JakeFAU/leadcapture/internal/id/uuid"
	"github.com/JakeFAU/leadcapture/internal/leadclient"
	"github.com/JakeFAU/leadcapture/internal/logging"
	"github.com/JakeFAU/leadcapture/internal/metrics"
	"github.com/JakeFAU/leadcapture/internal/outbox"
	"github.com/JakeFAU/leadcapture/internal/precache"
	"github.com/JakeFAU/leadcapture/internal/progress"
	"github.com/JakeFAU/leadcapture/internal/router"
	"github.com/JakeFAU/leadcapture/internal/syncer"
)

const precacheUserAgent = "leadcapture-edge/1.0"

// edgeCore holds the pieces shared by the gateway process and the one-shot CLI commands.
type edgeCore struct {
	upstream *url.URL
	outbox   outbox.Store
	monitor  *connectivity.Monitor
	prober   *connectivity.Prober
	client   *leadclient.Client
	coord    *syncer.Coordinator
}

func openEdgeOutbox(ctx context.Context, app *App, cfg config.Config) (outbox.Store, error) {
	ob, err := OpenOutbox(ctx, cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.addCloser("outbox", func(context.Context) error { return ob.Close() })
	return ob, nil
}

func buildEdgeCore(app *App, cfg config.Config, ob outbox.Store, registrar backgroundRegistrar, emitter progress.Emitter) (*edgeCore, error) {
	upstream, err := parseUpstream(cfg)
	if err != nil {
		return nil, err
	}

	monitor := connectivity.NewMonitor(cfg.Connectivity.StartOnline)
	prober, err := connectivity.NewProber(monitor, connectivity.ProberConfig{
		URL:      cfg.ProbeURL(),
		Interval: cfg.ProbeInterval(),
		Timeout:  cfg.ProbeTimeout(),
		Logger:   logging.Named(app.logger, "connectivity"),
	})
	if err != nil {
		return nil, fmt.Errorf("build prober: %w", err)
	}

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	client, err := leadclient.New(leadclient.Config{BaseURL: cfg.Edge.UpstreamURL, APIKey: apiKey})
	if err != nil {
		return nil, err
	}

	syncCfg := syncer.Config{
		Store:            ob,
		Submitter:        client,
		Monitor:          monitor,
		Tag:              cfg.Sync.Tag,
		SubmitTimeout:    cfg.SubmitTimeout(),
		PeriodicInterval: cfg.PeriodicSync(),
		Emitter:          emitter,
		IDs:              uuid.New(),
		Logger:           logging.Named(app.logger, "syncer"),
	}
	if registrar != nil {
		syncCfg.Registrar = registrar
	}
	coord, err := syncer.New(syncCfg)
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}
	if registrar != nil {
		registrar.Bind(coord.HandleBackgroundSync)
	}

	return &edgeCore{
		upstream: upstream,
		outbox:   ob,
		monitor:  monitor,
		prober:   prober,
		client:   client,
		coord:    coord,
	}, nil
}

// BuildEdge wires the offline gateway: outbox, connectivity, sync coordinator,
// form flow, offline cache router and the reverse proxy in front of the lead service.
func BuildEdge(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := newApp("edge", cfg.Edge.Port, logger)
	if err := buildEdge(ctx, app, cfg); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func buildEdge(ctx context.Context, app *App, cfg config.Config) error {
	if _, err := setupTelemetry(ctx, app, cfg); err != nil {
		return err
	}
	// Opened before the registrar so it is closed after background retries stop.
	ob, err := openEdgeOutbox(ctx, app, cfg)
	if err != nil {
		return err
	}
	registrar, err := setupRegistrar(ctx, app, cfg)
	if err != nil {
		return err
	}
	hub := setupProgress(app, nil)

	core, err := buildEdgeCore(app, cfg, ob, registrar, hub)
	if err != nil {
		return err
	}

	metrics.SetOnline(core.monitor.Online())
	core.monitor.Subscribe(func(evt connectivity.Event) {
		metrics.ObserveConnectivity(evt.Kind == connectivity.WentOnline)
	})
	app.addRunner("connectivity prober", func(ctx context.Context) error {
		core.prober.Run(ctx)
		return nil
	})
	app.addRunner("sync coordinator", func(ctx context.Context) error {
		core.coord.Run(ctx)
		return nil
	})

	formCfg := form.Config{
		Store:        core.outbox,
		Submitter:    core.client,
		Connectivity: core.monitor,
		Tag:          cfg.Sync.Tag,
		Logger:       logging.Named(app.logger, "form"),
	}
	if registrar != nil {
		formCfg.Registrar = registrar
	}
	flow, err := form.New(formCfg)
	if err != nil {
		return fmt.Errorf("build form: %w", err)
	}

	blobs, err := setupBlobStore(ctx, app, cfg)
	if err != nil {
		return err
	}
	c, err := cache.New(blobs, cfg.Cache.Generation, cache.WithLogger(logging.Named(app.logger, "cache")))
	if err != nil {
		return fmt.Errorf("build cache: %w", err)
	}
	rt, err := router.New(router.Config{
		Cache:            c,
		Next:             http.DefaultTransport,
		Origin:           core.upstream,
		APIPrefix:        cfg.Edge.APIPrefix,
		OfflinePath:      cfg.Cache.OfflinePath,
		PlaceholderImage: cfg.Cache.PlaceholderImage,
		Observe: func(class router.Class, outcome router.Outcome) {
			metrics.ObserveRoute(string(class), string(outcome))
		},
		Logger: logging.Named(app.logger, "router"),
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	app.addRunner("precache", func(ctx context.Context) error {
		report, err := runPrecache(ctx, c, core.upstream, cfg, app.logger)
		metrics.ObservePrecache(len(report.Stored), len(report.Failed))
		if err != nil && !errors.Is(err, precache.ErrIncomplete) {
			return err
		}
		return nil
	})

	srv, err := edge.NewServer(edge.Config{
		Form:         flow,
		Sync:         core.coord,
		Outbox:       core.outbox,
		Connectivity: core.monitor,
		Upstream:     core.upstream,
		Transport:    rt,
		Logger:       logging.Named(app.logger, "edge"),
	})
	if err != nil {
		return fmt.Errorf("build edge server: %w", err)
	}
	app.handler = srv.Handler()
	return nil
}

func parseUpstream(cfg config.Config) (*url.URL, error) {
	upstream, err := url.Parse(cfg.Edge.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	return upstream, nil
}

func runPrecache(ctx context.Context, c precache.Cache, origin *url.URL, cfg config.Config, logger *zap.Logger) (precache.Report, error) {
	report, err := precache.Run(ctx, c, precache.Config{
		Origin:      origin,
		Paths:       cfg.Cache.Precache,
		FollowLinks: cfg.Cache.PrecacheLinks,
		UserAgent:   precacheUserAgent,
		Logger:      logging.Named(logger, "precache"),
	})
	report.Generation = cfg.Cache.Generation
	if err != nil {
		logger.Warn("precache incomplete", zap.Error(err), zap.Int("stored", len(report.Stored)))
	}
	return report, err
}
