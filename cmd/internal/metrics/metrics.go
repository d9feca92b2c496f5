// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service records.
type Metrics struct {
	reg *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	MessagesSent    prometheus.Counter
	MessagesSeen    prometheus.Counter
	PollRequests    *prometheus.CounterVec
	StreamsOpen     *prometheus.GaugeVec
	StreamEvents    *prometheus.CounterVec
	RateLimitHits   prometheus.Counter
	EventPublishErr prometheus.Counter
}

// New registers all collectors (plus Go/process collectors) on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aura_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "route", "status_class"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aura_http_request_duration_seconds",
				Help:    "HTTP request duration (streams excluded)",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route"},
		),

		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "aura_chat_messages_sent_total",
			Help: "Total chat messages appended",
		}),
		MessagesSeen: f.NewCounter(prometheus.CounterOpts{
			Name: "aura_chat_messages_seen_total",
			Help: "Total messages transitioned to seen by poll delivery",
		}),
		PollRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aura_chat_polls_total",
				Help: "Total poll requests by outcome",
			},
			[]string{"result"}, // "new", "empty" or "error"
		),
		StreamsOpen: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aura_chat_streams_open",
				Help: "Currently open delivery streams",
			},
			[]string{"transport"}, // "sse" or "ws"
		),
		StreamEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aura_chat_stream_events_total",
				Help: "Stream events emitted by type",
			},
			[]string{"type"},
		),
		RateLimitHits: f.NewCounter(prometheus.CounterOpts{
			Name: "aura_rate_limit_hits_total",
			Help: "Total sends rejected by the rate limiter",
		}),
		EventPublishErr: f.NewCounter(prometheus.CounterOpts{
			Name: "aura_event_publish_errors_total",
			Help: "Total domain events that failed to publish",
		}),
	}
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
