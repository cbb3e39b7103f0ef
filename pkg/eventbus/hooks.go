package eventbus

import "github.com/devolvehq/devolve/pkg/boss"

// Hooks adapts a Bus onto boss.Hooks: every queue/proxy/dispatch
// transition becomes a published Event. It never blocks a dispatch — see
// Bus.Publish.
type Hooks struct {
	bus *Bus
}

// NewHooks returns a boss.Hooks that publishes every transition onto bus.
func NewHooks(bus *Bus) boss.Hooks {
	return Hooks{bus: bus}
}

func (h Hooks) QueuePut(depth, capacity int) {
	h.bus.Publish(Event{Topic: TopicQueueDepth, QueueDepth: depth, QueueCapacity: capacity})
}

func (h Hooks) QueueGet(depth, capacity int) {
	h.bus.Publish(Event{Topic: TopicQueueDepth, QueueDepth: depth, QueueCapacity: capacity})
}

func (h Hooks) ProxyStarted(id, name, addr string, pid int) {
	h.bus.Publish(Event{Topic: TopicProxyStarted, WorkerID: id, WorkerName: name, WorkerAddr: addr, WorkerPid: pid})
}

func (h Hooks) ProxyStopped(name string, status boss.ProxyStatus, nJobs int64) {
	h.bus.Publish(Event{Topic: TopicProxyStopped, WorkerName: name, Status: string(status), NJobs: nJobs})
}

func (h Hooks) DispatchStarted(name string) boss.DispatchSpan {
	return dispatchSpan{bus: h.bus, name: name}
}

func (h Hooks) CodecError(name, kind string) {
	h.bus.Publish(Event{Topic: TopicCodecError, WorkerName: name, Kind: kind})
}

func (h Hooks) HandshakeFailed() {
	h.bus.Publish(Event{Topic: TopicHandshakeFail})
}

func (h Hooks) PoolClosed() {
	h.bus.Publish(Event{Topic: TopicPoolClosed})
}

type dispatchSpan struct {
	bus  *Bus
	name string
}

func (s dispatchSpan) End(outcome boss.DispatchOutcome) {
	s.bus.Publish(Event{Topic: TopicDispatch, WorkerName: s.name, Outcome: string(outcome)})
}
