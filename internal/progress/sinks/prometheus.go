package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/leadcapture/internal/progress"
)

// States reported by the coordinator. Kept here so the state gauge can zero the
// others without importing the syncer package.
var knownStates = []string{"idle", "syncing", "success", "partial", "error", "offline"}

// PrometheusSink exports sync progress as Prometheus collectors.
type PrometheusSink struct {
	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	deliveries   *prometheus.CounterVec
	deliveryDur  *prometheus.HistogramVec
	pending      prometheus.Gauge
	state        *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against reg (the default registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadcapture_sync_passes_total",
			Help: "Drain passes partitioned by trigger and terminal state.",
		}, []string{"trigger", "state"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadcapture_sync_pass_duration_seconds",
			Help:    "Wall time per drain pass.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"state"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadcapture_sync_deliveries_total",
			Help: "Replayed submissions partitioned by result.",
		}, []string{"result"}),
		deliveryDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadcapture_sync_delivery_duration_seconds",
			Help:    "Latency of one replayed submission.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadcapture_outbox_pending",
			Help: "Submissions left in the outbox after the last pass.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leadcapture_sync_state",
			Help: "1 for the current coordinator state, 0 otherwise.",
		}, []string{"state"}),
	}
	for _, collector := range []prometheus.Collector{
		s.passes,
		s.passDuration,
		s.deliveries,
		s.deliveryDur,
		s.pending,
		s.state,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register sync collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StagePassDone:
			s.passes.WithLabelValues(labelOr(evt.Trigger, "unknown"), evt.State).Inc()
			s.passDuration.WithLabelValues(evt.State).Observe(evt.Dur.Seconds())
			s.pending.Set(float64(evt.Remaining))
			s.setState(evt.State)
		case progress.StageDeliveryOK:
			s.observeDelivery("delivered", evt)
		case progress.StageDeliveryFailed:
			s.observeDelivery("failed", evt)
		case progress.StageStateChange:
			s.setState(evt.State)
		case progress.StagePassStart:
			s.setState("syncing")
		}
	}
	return nil
}

func (s *PrometheusSink) observeDelivery(result string, evt progress.Event) {
	s.deliveries.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.deliveryDur.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) setState(current string) {
	for _, st := range knownStates {
		v := 0.0
		if st == current {
			v = 1
		}
		s.state.WithLabelValues(st).Set(v)
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func labelOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
