// Package metrics exposes relay pipeline counters and latencies in
// Prometheus format. Collectors are fed from dispatcher events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"difyrelay/internal/bus"
)

// Metrics contains all Prometheus metrics of the relay.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesIgnored  *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	BackendCalls    *prometheus.CounterVec
	BackendDuration prometheus.Histogram

	RepliesSent   *prometheus.CounterVec
	RepliesFailed *prometheus.CounterVec

	Transcodes     *prometheus.CounterVec
	SpeechSegments *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors on a dedicated registry, alongside the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "difyrelay_messages_received_total",
			Help: "Inbound messages by channel and route",
		}, []string{"channel", "route"}),
		MessagesIgnored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "difyrelay_messages_ignored_total",
			Help: "Inbound messages dropped without a reply",
		}, []string{"channel", "reason"}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "difyrelay_dispatches_total",
			Help: "Completed dispatch passes by category and outcome",
		}, []string{"category", "outcome"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "difyrelay_dispatch_duration_seconds",
			Help:    "Wall time of one dispatch pass",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"category"}),

		BackendCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "difyrelay_backend_calls_total",
			Help: "Completion backend chat calls by category and outcome",
		}, []string{"category", "outcome"}),
		BackendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "difyrelay_backend_duration_seconds",
			Help:    "Latency of completion backend chat calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		RepliesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "difyrelay_replies_sent_total",
			Help: "Outbound replies by channel and kind",
		}, []string{"channel", "kind"}),
		RepliesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "difyrelay_replies_failed_total",
			Help: "Outbound replies the transport rejected",
		}, []string{"channel", "kind"}),

		Transcodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "difyrelay_transcodes_total",
			Help: "Transcoding engine invocations by outcome",
		}, []string{"outcome"}),
		SpeechSegments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "difyrelay_speech_segments_total",
			Help: "Synthesized text blocks by outcome",
		}, []string{"outcome"}),

		registry: reg,
	}
}

// Observe updates the collectors for one event.
func (m *Metrics) Observe(e bus.Event) {
	switch e.Type {
	case bus.EventMessageReceived:
		m.MessagesReceived.WithLabelValues(e.Channel, e.Outcome).Inc()
	case bus.EventMessageIgnored:
		m.MessagesIgnored.WithLabelValues(e.Channel, label(e.Outcome)).Inc()
	case bus.EventDispatchDone:
		m.Dispatches.WithLabelValues(label(e.Category), label(e.Outcome)).Inc()
		m.DispatchDuration.WithLabelValues(label(e.Category)).Observe(e.Duration.Seconds())
	case bus.EventBackendCall:
		m.BackendCalls.WithLabelValues(label(e.Category), e.Outcome).Inc()
		m.BackendDuration.Observe(e.Duration.Seconds())
	case bus.EventReplySent:
		m.RepliesSent.WithLabelValues(e.Channel, e.Outcome).Inc()
	case bus.EventReplyFailed:
		m.RepliesFailed.WithLabelValues(e.Channel, e.Outcome).Inc()
	case bus.EventTranscode:
		m.Transcodes.WithLabelValues(e.Outcome).Inc()
	case bus.EventSpeechSegment:
		m.SpeechSegments.WithLabelValues(errOutcome(e.Err)).Inc()
	}
}

// Subscribe feeds every event on eb into the collectors.
func (m *Metrics) Subscribe(eb *bus.EventBus) string {
	return eb.On("*", m.Observe)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func label(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func errOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
