// Package edge hosts the offline gateway: the lead form submit flow, sync controls and
// a reverse proxy to the lead service that routes every other request through the
// offline cache policy.
package edge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/api"
	"github.com/JakeFAU/leadcapture/internal/form"
	"github.com/JakeFAU/leadcapture/internal/metrics"
	"github.com/JakeFAU/leadcapture/internal/outbox"
	"github.com/JakeFAU/leadcapture/internal/syncer"
)

const maxFormBytes = 1 << 20

// FormSubmitter runs the submit flow for one payload.
type FormSubmitter interface {
	Submit(ctx context.Context, payload []byte) (form.Result, error)
}

// SyncController exposes the coordinator operations the gateway serves.
type SyncController interface {
	Status(ctx context.Context) (syncer.Status, error)
	SyncNow(ctx context.Context) (syncer.Result, error)
}

// PendingLister reads the outbox snapshot.
type PendingLister interface {
	ListAll(ctx context.Context) ([]outbox.PendingSubmission, error)
}

// ConnectivitySetter lets operators override the online belief.
type ConnectivitySetter interface {
	Online() bool
	Set(online bool) bool
}

// Config wires the gateway.
type Config struct {
	Form         FormSubmitter
	Sync         SyncController
	Outbox       PendingLister
	Connectivity ConnectivitySetter
	// Upstream is the lead service origin every unmatched request is proxied to.
	Upstream *url.URL
	// Transport carries proxied requests; normally the request router.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Server is the gateway HTTP surface.
type Server struct {
	router chi.Router
	form   FormSubmitter
	sync   SyncController
	outbox PendingLister
	conn   ConnectivitySetter
	logger *zap.Logger
}

// NewServer validates cfg and builds the routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Form == nil || cfg.Sync == nil || cfg.Outbox == nil || cfg.Connectivity == nil {
		return nil, errors.New("edge requires a form, a sync controller, an outbox and a connectivity source")
	}
	if cfg.Upstream == nil || cfg.Upstream.Host == "" {
		return nil, errors.New("edge upstream is required")
	}
	s := &Server{
		form:   cfg.Form,
		sync:   cfg.Sync,
		outbox: cfg.Outbox,
		conn:   cfg.Connectivity,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(api.RequestID)
	r.Use(api.Logging(s.logger))
	r.Use(api.Recover(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/form/leads", s.submitLead)
	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", s.syncStatus)
		r.Post("/now", s.syncNow)
		r.Get("/pending", s.pending)
	})
	r.Post("/connectivity", s.setConnectivity)

	proxy := newProxy(cfg.Upstream, cfg.Transport, s.logger)
	r.NotFound(proxy.ServeHTTP)
	r.MethodNotAllowed(proxy.ServeHTTP)

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func newProxy(upstream *url.URL, transport http.RoundTripper, logger *zap.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("proxy request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			api.WriteError(w, http.StatusBadGateway, "upstream unavailable")
		},
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "online": s.conn.Online()})
}

type deliveredResponse struct {
	Status  form.Outcome `json:"status"`
	Message string       `json:"message,omitempty"`
	LeadID  int64        `json:"leadId,omitempty"`
	Score   int          `json:"score,omitempty"`
}

type queuedResponse struct {
	Status form.Outcome `json:"status"`
	ID     int64        `json:"id"`
}

func (s *Server) submitLead(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBytes))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "request body too large")
		return
	}
	if !json.Valid(payload) {
		api.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := s.form.Submit(r.Context(), payload)
	switch {
	case errors.Is(err, form.ErrOfflineSaveFailed):
		metrics.ObserveFormSubmission("save_failed")
		api.WriteError(w, http.StatusInsufficientStorage, form.ErrOfflineSaveFailed.Error())
		return
	case err != nil:
		metrics.ObserveFormSubmission("failed")
		api.WriteError(w, http.StatusBadGateway, form.ErrSubmissionFailed.Error())
		return
	}

	metrics.ObserveFormSubmission(string(res.Outcome))
	if res.Outcome == form.OutcomeQueued {
		api.WriteJSON(w, http.StatusAccepted, queuedResponse{Status: res.Outcome, ID: res.QueueID})
		return
	}
	api.WriteJSON(w, http.StatusCreated, deliveredResponse{
		Status:  res.Outcome,
		Message: res.Response.Message,
		LeadID:  res.Response.LeadID,
		Score:   res.Response.Score,
	})
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.sync.Status(r.Context())
	if err != nil {
		s.logger.Error("read sync status failed", zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, "sync status unavailable")
		return
	}
	api.WriteJSON(w, http.StatusOK, status)
}

func (s *Server) syncNow(w http.ResponseWriter, r *http.Request) {
	res, err := s.sync.SyncNow(r.Context())
	switch {
	case errors.Is(err, syncer.ErrSyncNotAllowed), errors.Is(err, syncer.ErrAlreadySyncing):
		api.WriteError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Warn("manual sync incomplete", zap.Error(err))
		api.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "sync pass incomplete",
			"result": res,
		})
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

type pendingEntry struct {
	ID         int64           `json:"id"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Bytes      int             `json:"bytes"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) pending(w http.ResponseWriter, r *http.Request) {
	entries, err := s.outbox.ListAll(r.Context())
	if err != nil {
		s.logger.Error("list outbox failed", zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, "outbox unavailable")
		return
	}
	out := make([]pendingEntry, 0, len(entries))
	for _, e := range entries {
		pe := pendingEntry{ID: e.ID, EnqueuedAt: e.EnqueuedAt, Bytes: len(e.Payload)}
		if json.Valid(e.Payload) {
			pe.Payload = json.RawMessage(e.Payload)
		}
		out = append(out, pe)
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"count": len(out), "pending": out})
}

func (s *Server) setConnectivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req); err != nil || req.Online == nil {
		api.WriteError(w, http.StatusBadRequest, `expected {"online": true|false}`)
		return
	}
	changed := s.conn.Set(*req.Online)
	s.logger.Info("connectivity overridden", zap.Bool("online", *req.Online), zap.Bool("changed", changed))
	api.WriteJSON(w, http.StatusOK, map[string]bool{"online": *req.Online, "changed": changed})
}

