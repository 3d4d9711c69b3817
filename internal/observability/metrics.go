package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveConsoles      prometheus.Gauge
	ConsoleEvents       *prometheus.CounterVec
	RecognitionEvents   *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	WSMessages          *prometheus.CounterVec
	OutboundQueue       *prometheus.CounterVec
	FirstPartialLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConsoles: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_consoles",
			Help:      "Number of attached speech consoles.",
		}),
		ConsoleEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "console_events_total",
			Help:      "Console lifecycle events by type.",
		}, []string{"event"}),
		RecognitionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_events_total",
			Help:      "Recognition session events by type.",
		}, []string{"event"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by kind and code.",
		}, []string{"kind", "code"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		OutboundQueue: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_queue_total",
			Help:      "Outbound message queueing outcomes by type.",
		}, []string{"type", "outcome"}),
		FirstPartialLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_partial_latency_ms",
			Help:      "Latency from session start to first interim transcript in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 700, 1000, 2000, 5000},
		}),
	}
}

func (m *Metrics) ObserveFirstPartialLatency(d time.Duration) {
	m.FirstPartialLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveOutboundMessage(msgType, outcome string) {
	m.OutboundQueue.WithLabelValues(msgType, outcome).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
