// Package metrics exposes Prometheus collectors for RPC clients.
//
// A nil *Collector is valid and records nothing, so components call it
// unconditionally.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Anomaly kinds: inbound messages that could not be routed to a call.
const (
	AnomalyUndecodable     = "undecodable"
	AnomalyMissingID       = "missing_id"
	AnomalyUnknownID       = "unknown_id"
	AnomalyInvalidResponse = "invalid_response"
)

// Collector holds the client metrics.
type Collector struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	pending      prometheus.Gauge
	connections  prometheus.Counter
	disconnects  *prometheus.CounterVec
	anomalies    *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portrpc",
			Subsystem: "client",
			Name:      "calls_total",
			Help:      "Total number of finished calls by outcome",
		}, []string{"method", "outcome"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portrpc",
			Subsystem: "client",
			Name:      "call_duration_seconds",
			Help:      "Call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "portrpc",
			Subsystem: "client",
			Name:      "pending_calls",
			Help:      "Number of calls waiting for a response",
		}),
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portrpc",
			Subsystem: "client",
			Name:      "connections_total",
			Help:      "Total number of channels established",
		}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portrpc",
			Subsystem: "client",
			Name:      "disconnects_total",
			Help:      "Total number of processed disconnects",
		}, []string{"reason"}), // clean, error
		anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portrpc",
			Subsystem: "client",
			Name:      "anomalies_total",
			Help:      "Inbound messages that matched no call, by kind",
		}, []string{"kind"}),
	}
}

// Outcome classifies a call error for the calls_total label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

func (c *Collector) ObserveCall(method string, err error, d time.Duration) {
	if c == nil {
		return
	}
	c.calls.WithLabelValues(method, Outcome(err)).Inc()
	c.callDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.pending.Set(float64(n))
}

func (c *Collector) Connected() {
	if c == nil {
		return
	}
	c.connections.Inc()
}

func (c *Collector) Disconnected(err error) {
	if c == nil {
		return
	}
	reason := "clean"
	if err != nil {
		reason = "error"
	}
	c.disconnects.WithLabelValues(reason).Inc()
}

func (c *Collector) Anomaly(kind string) {
	if c == nil {
		return
	}
	c.anomalies.WithLabelValues(kind).Inc()
}
