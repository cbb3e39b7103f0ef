package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "devolve-boss"}, DefaultRegistry)

	// Metrics collection
	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds all Prometheus metrics emitted by a boss process. Every
// field is updated by explicit calls from the queue, proxy and listener at
// their existing state transitions; nothing here influences control flow.
type Metrics struct {
	// Job queue metrics.
	QueueDepth    prometheus.Gauge
	QueueCapacity prometheus.Gauge
	JobsEnqueued  prometheus.Counter
	JobsDequeued  prometheus.Counter

	// Dispatch metrics, one observation per get_work/send/recv round trip.
	DispatchDuration *prometheus.HistogramVec // labels: outcome (success|transport_error|protocol_error)
	DispatchTotal    *prometheus.CounterVec   // labels: outcome

	// Codec-level failures, independent of which dispatch they interrupted.
	CodecErrorsTotal *prometheus.CounterVec // labels: kind (transport|protocol)

	// Worker proxy lifecycle.
	ProxiesConnected prometheus.Gauge
	ProxyStatus      *prometheus.GaugeVec // labels: name, status (busy|done|error); 1 for the active status, 0 otherwise
	ProxyJobsTotal   *prometheus.CounterVec

	// Listener.
	HandshakeFailuresTotal prometheus.Counter
	AcceptTotal            prometheus.Counter

	customMu         sync.RWMutex
	CustomCounters   map[string]*prometheus.CounterVec
	CustomGauges     map[string]*prometheus.GaugeVec
	CustomHistograms map[string]*prometheus.HistogramVec
}

// GetMetrics returns the global, lazily-initialized metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a new, independently registered metrics collection.
// Pass a dedicated registerer in tests to avoid collisions with the
// package-level default.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	return &Metrics{
		QueueDepth: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "devolve_queue_depth",
			Help: "Current number of items waiting in the job queue.",
		}),
		QueueCapacity: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "devolve_queue_capacity",
			Help: "Configured bounded capacity of the job queue.",
		}),
		JobsEnqueued: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "devolve_jobs_enqueued_total",
			Help: "Total number of jobs published to the queue via add().",
		}),
		JobsDequeued: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "devolve_jobs_dequeued_total",
			Help: "Total number of jobs popped from the queue by a proxy.",
		}),
		DispatchDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devolve_dispatch_duration_seconds",
				Help:    "Duration of one get_work+send+recv+put_result round trip.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		DispatchTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devolve_dispatch_total",
				Help: "Total dispatch attempts by outcome.",
			},
			[]string{"outcome"},
		),
		CodecErrorsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devolve_codec_errors_total",
				Help: "Total codec-level transport/protocol failures.",
			},
			[]string{"kind"},
		),
		ProxiesConnected: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "devolve_proxies_connected",
			Help: "Current number of worker proxies registered with the listener.",
		}),
		ProxyStatus: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "devolve_proxy_status",
				Help: "1 for the worker proxy's current lifecycle status, 0 otherwise.",
			},
			[]string{"name", "status"},
		),
		ProxyJobsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devolve_proxy_jobs_total",
				Help: "Total jobs completed by a worker proxy (n_jobs).",
			},
			[]string{"name"},
		),
		HandshakeFailuresTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "devolve_handshake_failures_total",
			Help: "Total inbound connections aborted during the name/pid handshake.",
		}),
		AcceptTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "devolve_accept_total",
			Help: "Total worker connections accepted by the listener.",
		}),
		CustomCounters:   make(map[string]*prometheus.CounterVec),
		CustomGauges:     make(map[string]*prometheus.GaugeVec),
		CustomHistograms: make(map[string]*prometheus.HistogramVec),
	}
}

// RecordDispatch records one completed dispatch attempt.
func (m *Metrics) RecordDispatch(outcome string, duration time.Duration) {
	m.DispatchTotal.WithLabelValues(outcome).Inc()
	m.DispatchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCodecError records a transport or protocol failure.
func (m *Metrics) RecordCodecError(kind string) {
	m.CodecErrorsTotal.WithLabelValues(kind).Inc()
}

// SetProxyStatus zeroes the other known statuses for name and sets status to 1.
func (m *Metrics) SetProxyStatus(name, status string) {
	for _, s := range []string{"busy", "done", "error"} {
		if s == status {
			m.ProxyStatus.WithLabelValues(name, s).Set(1)
		} else {
			m.ProxyStatus.WithLabelValues(name, s).Set(0)
		}
	}
}

// Counter creates or returns a custom counter metric.
func (m *Metrics) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	m.customMu.RLock()
	if c, ok := m.CustomCounters[name]; ok {
		m.customMu.RUnlock()
		return c
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if c, ok := m.CustomCounters[name]; ok {
		return c
	}
	c := promauto.With(DefaultRegisterer).NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	m.CustomCounters[name] = c
	return c
}

// Gauge creates or returns a custom gauge metric.
func (m *Metrics) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	m.customMu.RLock()
	if g, ok := m.CustomGauges[name]; ok {
		m.customMu.RUnlock()
		return g
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if g, ok := m.CustomGauges[name]; ok {
		return g
	}
	g := promauto.With(DefaultRegisterer).NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	m.CustomGauges[name] = g
	return g
}
