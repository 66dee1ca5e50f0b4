package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/lead"
	"github.com/JakeFAU/leadcapture/internal/metrics"
	"github.com/JakeFAU/leadcapture/internal/policy/ratelimit"
	"github.com/JakeFAU/leadcapture/internal/store"
	"github.com/JakeFAU/leadcapture/internal/web"
)

const (
	defaultRequestTimeout = 10 * time.Second
	handlerTimeout        = 60 * time.Second
	maxBodyBytes          = 1 << 20
)

// Config wires the lead service dependencies.
type Config struct {
	Repo store.LeadRepository
	// Limiter throttles POST /api/leads per client; nil disables limiting.
	Limiter            *ratelimit.Limiter
	QualifiedThreshold int
	// RequestTimeout bounds repository calls per request.
	RequestTimeout time.Duration
	// APIKey, when set, is required on /api writes.
	APIKey string
	Logger *zap.Logger
	Now    func() time.Time
}

// Server wires HTTP handlers to the lead repository.
type Server struct {
	router    chi.Router
	repo      store.LeadRepository
	limiter   *ratelimit.Limiter
	threshold int
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Repo == nil {
		return nil, errors.New("lead repository is required")
	}
	if cfg.QualifiedThreshold < 0 || cfg.QualifiedThreshold > 100 {
		return nil, fmt.Errorf("qualified threshold %d outside 0..100", cfg.QualifiedThreshold)
	}
	s := &Server{
		repo:      cfg.Repo,
		limiter:   cfg.Limiter,
		threshold: cfg.QualifiedThreshold,
		timeout:   cfg.RequestTimeout,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.timeout <= 0 {
		s.timeout = defaultRequestTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(RequestID)
	r.Use(Logging(s.logger))
	r.Use(Recover(s.logger))
	r.Use(metrics.Middleware)
	r.Use(Timeout(handlerTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(APIKey(cfg.APIKey))
		}
		r.Post("/leads", s.createLead)
		r.Get("/keywords", s.listKeywords)
		r.Post("/keywords", s.addKeyword)
		r.Get("/stats", s.stats)
	})

	r.Get("/", s.index)
	r.Get("/offline", servePage(web.PageOffline))
	r.Get("/thank-you", servePage(web.PageThankYou))
	assets := web.FileServer()
	r.Method(http.MethodGet, "/manifest.json", assets)
	r.Method(http.MethodGet, "/app.css", assets)
	r.Method(http.MethodGet, "/icons/*", assets)

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.repo.IncrementCounter(ctx, lead.CounterPageViews); err != nil {
		s.logger.Warn("page view not counted", zap.Error(err))
	}
	web.ServePage(w, web.PageIndex)
}

func servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		web.ServePage(w, name)
	}
}
