package observability

import (
	"net/http"

	"pairchat/runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pairchat"

// Metrics groups the server collectors. It is registered on its own
// prometheus.Registry so tests can build as many as they want.
type Metrics struct {
	registry   *prometheus.Registry
	delivered  *prometheus.CounterVec
	inbound    *prometheus.CounterVec
	replies    *prometheus.CounterVec
	logins     *prometheus.CounterVec
	evictions  prometheus.Counter
	restarts   *prometheus.CounterVec
	connection prometheus.Gauge
}

// Gauges backed by the live structures.
type Sources struct {
	Sessions      func() float64
	Conversations func() float64
	Messages      func() float64
}

func NewMetrics(registry *prometheus.Registry, sources Sources) *Metrics {
	m := &Metrics{
		registry: registry,
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_routed_total",
			Help:      "Outbound envelopes by type and delivery outcome.",
		}, []string{"type", "outcome"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_received_total",
			Help:      "Inbound envelopes by operation.",
		}, []string{"type"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_replies_total",
			Help:      "Error replies by code.",
		}, []string{"code"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Successful logins by kind (new, resumed, displaced).",
		}, []string{"kind"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_evictions_total",
			Help:      "Sessions removed after a missed heartbeat.",
		}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Background worker restarts after a crash.",
		}, []string{"worker"}),
		connection: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open transport connections.",
		}),
	}
	registry.MustRegister(m.delivered, m.inbound, m.replies, m.logins, m.evictions, m.restarts, m.connection)
	registry.MustRegister(collectors.NewGoCollector())
	for name, fn := range map[string]func() float64{
		"sessions":      sources.Sessions,
		"conversations": sources.Conversations,
		"messages":      sources.Messages,
	} {
		if fn == nil {
			continue
		}
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      "Current number of " + name + " held in memory.",
		}, fn))
	}
	return m
}

func (m *Metrics) ObserveDelivery(envelopeType string, outcome runtime.Outcome) {
	m.delivered.WithLabelValues(envelopeType, outcome.String()).Inc()
}

func (m *Metrics) ObserveInbound(operation string) {
	m.inbound.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveErrorReply(code string) {
	m.replies.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveLogin(kind string) {
	m.logins.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveEviction() {
	m.evictions.Inc()
}

func (m *Metrics) ObserveWorkerRestart(worker string) {
	m.restarts.WithLabelValues(worker).Inc()
}

func (m *Metrics) ConnectionOpened() { m.connection.Inc() }

func (m *Metrics) ConnectionClosed() { m.connection.Dec() }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
