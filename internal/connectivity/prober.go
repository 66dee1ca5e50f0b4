package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Prober polls a health URL and feeds the result into a Monitor. It stands in for the
// host's network reachability signal, so a success only means "worth trying".
type Prober struct {
	monitor  *Monitor
	client   *http.Client
	url      string
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// ProberConfig configures a Prober.
type ProberConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
	Logger   *zap.Logger
}

// NewProber validates cfg and builds a Prober for monitor.
func NewProber(monitor *Monitor, cfg ProberConfig) (*Prober, error) {
	if monitor == nil {
		return nil, fmt.Errorf("monitor is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("probe url is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		monitor:  monitor,
		client:   cfg.Client,
		url:      cfg.URL,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logger,
	}, nil
}

// Run probes immediately and then on every interval until ctx ends.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.ProbeOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProbeOnce performs a single check and updates the monitor. It returns the observed state.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return p.monitor.Online()
	}
	online := p.check(ctx)
	if ctx.Err() != nil {
		// Shutdown is not an outage.
		return p.monitor.Online()
	}
	if p.monitor.Set(online) {
		p.logger.Info("connectivity changed", zap.Bool("online", online), zap.String("probe_url", p.url))
	}
	return online
}

func (p *Prober) check(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Warn("build probe request failed", zap.Error(err))
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < http.StatusInternalServerError
}
