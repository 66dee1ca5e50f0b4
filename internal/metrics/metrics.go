// Package metrics exposes Prometheus collectors for the lead service and the edge gateway.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	leadsTotal                 *prometheus.CounterVec
	rateLimitedTotal           prometheus.Counter
	routerResponsesTotal       *prometheus.CounterVec
	formSubmissionsTotal       *prometheus.CounterVec
	connectivityOnline         prometheus.Gauge
	connectivityTransitions    *prometheus.CounterVec
	precacheAssetsTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		leadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcapture_leads_total",
				Help: "Captured leads, labeled by qualification.",
			},
			[]string{"qualified"},
		)

		rateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadcapture_rate_limited_total",
				Help: "Lead submissions rejected by the per-client rate limiter.",
			},
		)

		routerResponsesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcapture_router_responses_total",
				Help: "Edge responses, labeled by request class and how they were served.",
			},
			[]string{"class", "outcome"},
		)

		formSubmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcapture_form_submissions_total",
				Help: "Edge form submissions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		connectivityOnline = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadcapture_connectivity_online",
				Help: "1 while the edge believes the upstream is reachable.",
			},
		)

		connectivityTransitions = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcapture_connectivity_transitions_total",
				Help: "Connectivity transitions, labeled by direction.",
			},
			[]string{"direction"},
		)

		precacheAssetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcapture_precache_assets_total",
				Help: "Assets handled by the install step, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveLead counts a captured lead.
func ObserveLead(qualified bool) {
	Init()
	leadsTotal.WithLabelValues(strconv.FormatBool(qualified)).Inc()
}

// ObserveRateLimited counts a rejected submission.
func ObserveRateLimited() {
	Init()
	rateLimitedTotal.Inc()
}

// ObserveRoute counts one edge response by class and outcome.
func ObserveRoute(class, outcome string) {
	Init()
	routerResponsesTotal.WithLabelValues(class, outcome).Inc()
}

// ObserveFormSubmission counts one edge form submission by outcome.
func ObserveFormSubmission(outcome string) {
	Init()
	formSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// SetOnline records the current connectivity belief.
func SetOnline(online bool) {
	Init()
	v := 0.0
	if online {
		v = 1
	}
	connectivityOnline.Set(v)
}

// ObserveConnectivity records a transition and updates the online gauge.
func ObserveConnectivity(online bool) {
	SetOnline(online)
	direction := "offline"
	if online {
		direction = "online"
	}
	connectivityTransitions.WithLabelValues(direction).Inc()
}

// ObservePrecache adds stored and failed asset counts from one install run.
func ObservePrecache(stored, failed int) {
	Init()
	precacheAssetsTotal.WithLabelValues("stored").Add(float64(stored))
	precacheAssetsTotal.WithLabelValues("failed").Add(float64(failed))
}
