// Package precache fills the response cache with the install asset list using colly.
// The current cache generation is activated first so older generations are removed
// before new entries land.
package precache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/cache"
)

// ErrIncomplete reports that one or more install assets could not be fetched.
var ErrIncomplete = errors.New("precache incomplete")

// Cache is the cache surface precaching needs.
type Cache interface {
	Put(ctx context.Context, entry cache.Entry) error
	Activate(ctx context.Context) (int, error)
}

// Config controls the crawl.
type Config struct {
	// Origin is the application base URL the paths resolve against.
	Origin *url.URL
	// Paths is the install asset list.
	Paths []string
	// FollowLinks also caches same-origin links, stylesheets, scripts and images
	// referenced by the install pages, one level deep.
	FollowLinks bool
	UserAgent   string
	Timeout     time.Duration
	// Transport defaults to a pooled http.Transport.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Report summarizes a precache run.
type Report struct {
	Generation string            `json:"generation,omitempty"`
	Removed    int               `json:"removed"`
	Stored     []string          `json:"stored"`
	Failed     map[string]string `json:"failed,omitempty"`
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
	OnHTML(string, colly.HTMLCallback)
}

// Run activates the generation and fetches every install asset into c.
func Run(ctx context.Context, c Cache, cfg Config) (Report, error) {
	if c == nil {
		return Report{}, fmt.Errorf("cache is required")
	}
	if cfg.Origin == nil || cfg.Origin.Host == "" {
		return Report{}, fmt.Errorf("origin is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	removed, err := c.Activate(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("activate cache generation: %w", err)
	}

	run := &crawl{
		ctx:    ctx,
		cache:  c,
		logger: logger,
		report: Report{Removed: removed, Failed: make(map[string]string)},
	}
	collector := newCollector(ctx, cfg)
	run.configureHooks(collector, cfg.FollowLinks)

	for _, p := range cfg.Paths {
		target := cfg.Origin.ResolveReference(&url.URL{Path: p}).String()
		if err := visit(ctx, collector, target); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return run.snapshot(), err
			}
			run.fail(target, err)
		}
	}

	report := run.snapshot()
	if len(report.Failed) > 0 {
		return report, fmt.Errorf("%w: %d of %d assets failed", ErrIncomplete, len(report.Failed), len(cfg.Paths))
	}
	logger.Info("precache complete", zap.Int("stored", len(report.Stored)), zap.Int("removed", removed))
	return report, nil
}

type crawl struct {
	ctx    context.Context
	cache  Cache
	logger *zap.Logger

	mu     sync.Mutex
	report Report
}

func (r *crawl) configureHooks(hooks collectorHooks, followLinks bool) {
	hooks.OnResponse(func(resp *colly.Response) {
		target := resp.Request.URL.String()
		entry := cache.Entry{
			Method: http.MethodGet,
			URL:    target,
			Status: resp.StatusCode,
			Body:   append([]byte(nil), resp.Body...),
		}
		if resp.Headers != nil {
			entry.Header = resp.Headers.Clone()
		}
		if err := r.cache.Put(r.ctx, entry); err != nil {
			r.fail(target, err)
			return
		}
		r.mu.Lock()
		r.report.Stored = append(r.report.Stored, target)
		r.mu.Unlock()
	})

	hooks.OnError(func(resp *colly.Response, err error) {
		if resp == nil || resp.Request == nil {
			return
		}
		target := resp.Request.URL.String()
		if resp.Request.Depth > 1 {
			r.logger.Debug("precache linked asset failed", zap.String("url", target), zap.Error(err))
			return
		}
		r.fail(target, err)
	})

	if !followLinks {
		return
	}
	follow := func(attr string) colly.HTMLCallback {
		return func(e *colly.HTMLElement) {
			link := e.Attr(attr)
			if link == "" || strings.HasPrefix(link, "#") {
				return
			}
			if err := e.Request.Visit(link); err != nil && !isBenignVisitError(err) {
				r.logger.Debug("precache link skipped", zap.String("link", link), zap.Error(err))
			}
		}
	}
	hooks.OnHTML("a[href], link[rel=stylesheet], link[rel=manifest], link[rel~=icon]", follow("href"))
	hooks.OnHTML("script[src], img[src]", follow("src"))
}

func (r *crawl) fail(target string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Failed[target] = err.Error()
	r.logger.Warn("precache asset failed", zap.String("url", target), zap.Error(err))
}

func (r *crawl) snapshot() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.report
	out.Stored = append([]string(nil), r.report.Stored...)
	sort.Strings(out.Stored)
	out.Failed = make(map[string]string, len(r.report.Failed))
	for k, v := range r.report.Failed {
		out.Failed[k] = v
	}
	return out
}

func newCollector(ctx context.Context, cfg Config) *colly.Collector {
	depth := 1
	if cfg.FollowLinks {
		depth = 2
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.MaxDepth(depth),
		colly.AllowedDomains(cfg.Origin.Hostname()),
		colly.StdlibContext(ctx),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c.SetRequestTimeout(timeout)
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	return c
}

func visit(ctx context.Context, collector *colly.Collector, target string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("precache canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && !isBenignVisitError(err) {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// isBenignVisitError filters colly errors that only mean "already handled" or
// "outside the crawl scope".
func isBenignVisitError(err error) bool {
	var already *colly.AlreadyVisitedError
	return errors.As(err, &already) ||
		errors.Is(err, colly.ErrForbiddenDomain) ||
		errors.Is(err, colly.ErrMaxDepth) ||
		errors.Is(err, colly.ErrMissingURL)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
