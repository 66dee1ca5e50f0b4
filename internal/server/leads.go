package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/api"
	"github.com/JakeFAU/leadcapture/internal/config"
	"github.com/JakeFAU/leadcapture/internal/logging"
	"github.com/JakeFAU/leadcapture/internal/policy/ratelimit"
	"github.com/JakeFAU/leadcapture/internal/storage/memory"
	"github.com/JakeFAU/leadcapture/internal/storage/postgres"
	"github.com/JakeFAU/leadcapture/internal/store"
)

const limiterSweepInterval = time.Minute

// BuildLeadService wires the lead service: repository, rate limiter and the HTTP API.
func BuildLeadService(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := newApp("serve", cfg.Server.Port, logger)
	if _, err := setupTelemetry(ctx, app, cfg); err != nil {
		return nil, err
	}

	repo, err := setupRepository(ctx, app, cfg)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Leads.RateLimitRPS,
		Burst: cfg.Leads.RateLimitBurst,
	})
	app.addRunner("rate limiter sweep", func(ctx context.Context) error {
		limiter.Run(ctx, limiterSweepInterval)
		return nil
	})

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	srv, err := api.NewServer(api.Config{
		Repo:               repo,
		Limiter:            limiter,
		QualifiedThreshold: cfg.Leads.QualifiedThreshold,
		RequestTimeout:     cfg.LeadRequestTimeout(),
		APIKey:             apiKey,
		Logger:             logging.Named(logger, "api"),
	})
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("build api: %w", err)
	}
	app.handler = srv.Handler()
	return app, nil
}

func setupRepository(ctx context.Context, app *App, cfg config.Config) (store.LeadRepository, error) {
	if cfg.DB.DSN == "" {
		app.logger.Warn("db.dsn not set; using in-memory lead repository")
		repo, err := memory.NewSeededLeadStore()
		if err != nil {
			return nil, fmt.Errorf("seed memory repository: %w", err)
		}
		return repo, nil
	}

	repo, err := postgres.NewLeadStore(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetime) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	app.addCloser("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	keywords, err := memory.SeedKeywords()
	if err != nil {
		return nil, err
	}
	if err := repo.Seed(ctx, keywords); err != nil {
		return nil, fmt.Errorf("seed keywords: %w", err)
	}
	app.logger.Info("postgres repository ready", zap.Int("seed_keywords", len(keywords)))
	return repo, nil
}
