package prometheus

import (
	"time"

	"github.com/devolvehq/devolve/pkg/boss"
)

// Hooks adapts a Metrics collection onto boss.Hooks, so every queue,
// proxy and dispatch transition updates a gauge/counter/histogram with no
// influence on control flow.
type Hooks struct {
	m *Metrics
}

// NewHooks returns a boss.Hooks backed by m. Pass GetMetrics() for the
// process-wide default registry.
func NewHooks(m *Metrics) boss.Hooks {
	return Hooks{m: m}
}

func (h Hooks) QueuePut(depth, capacity int) {
	h.m.QueueDepth.Set(float64(depth))
	h.m.QueueCapacity.Set(float64(capacity))
	h.m.JobsEnqueued.Inc()
}

func (h Hooks) QueueGet(depth, capacity int) {
	h.m.QueueDepth.Set(float64(depth))
	h.m.QueueCapacity.Set(float64(capacity))
	h.m.JobsDequeued.Inc()
}

// ProxyStarted ignores id: Prometheus labels key on the worker-supplied
// name, not the per-connection uuid, to avoid an unbounded label
// cardinality growing with every reconnect.
func (h Hooks) ProxyStarted(id, name, addr string, pid int) {
	h.m.ProxiesConnected.Inc()
	h.m.AcceptTotal.Inc()
	h.m.SetProxyStatus(name, string(boss.StatusBusy))
}

func (h Hooks) ProxyStopped(name string, status boss.ProxyStatus, nJobs int64) {
	h.m.ProxiesConnected.Dec()
	h.m.SetProxyStatus(name, string(status))
	h.m.ProxyJobsTotal.WithLabelValues(name).Add(float64(nJobs))
}

func (h Hooks) DispatchStarted(name string) boss.DispatchSpan {
	return dispatchSpan{m: h.m, start: time.Now()}
}

func (h Hooks) CodecError(name, kind string) {
	h.m.RecordCodecError(kind)
}

func (h Hooks) HandshakeFailed() {
	h.m.HandshakeFailuresTotal.Inc()
}

func (h Hooks) PoolClosed() {}

type dispatchSpan struct {
	m     *Metrics
	start time.Time
}

func (s dispatchSpan) End(outcome boss.DispatchOutcome) {
	s.m.RecordDispatch(string(outcome), time.Since(s.start))
}
