package boss

// ProxyStatus is a WorkerProxy's lifecycle state.
type ProxyStatus string

const (
	StatusBusy  ProxyStatus = "busy"
	StatusDone  ProxyStatus = "done"
	StatusError ProxyStatus = "error"
)

// DispatchOutcome labels how one get_work/send/recv/put_result round trip
// ended, for metrics and tracing.
type DispatchOutcome string

const (
	OutcomeSuccess        DispatchOutcome = "success"
	OutcomeTransportError DispatchOutcome = "transport_error"
	OutcomeProtocolError  DispatchOutcome = "protocol_error"
)

// DispatchSpan is returned by Hooks.DispatchStarted; callers must call End
// exactly once with the outcome of that dispatch attempt.
type DispatchSpan interface {
	End(outcome DispatchOutcome)
}

// Hooks observes queue, proxy and listener state transitions without ever
// influencing control flow. Metrics (D1), tracing (D2) and the internal
// event bus (D3) are all plugged in as Hooks implementations; none of them
// can block or fail a dispatch.
type Hooks interface {
	// QueuePut fires after every Pool.Add and after Close publishes the
	// QUIT sentinel; a proxy re-publishing QUIT does not fire it. QueueGet
	// fires on every item a proxy pops, including the QUIT sentinel.
	QueuePut(depth, capacity int)
	QueueGet(depth, capacity int)

	// ProxyStarted fires once a worker's handshake succeeds and its proxy
	// goroutine is about to enter its job loop. id is a uuid generated for
	// this connection, independent of the worker-supplied name, so two
	// workers that happen to share a name are still distinguishable.
	ProxyStarted(id, name, addr string, pid int)

	// ProxyStopped fires once, when a proxy's job loop exits, with its
	// final status and the number of jobs it completed.
	ProxyStopped(name string, status ProxyStatus, nJobs int64)

	// DispatchStarted fires immediately before a job is sent to worker
	// name. The returned span's End must be called exactly once.
	DispatchStarted(name string) DispatchSpan

	// CodecError fires on every transport/protocol failure, tagged with
	// which worker it was and whether it was classified as "transport" or
	// "protocol".
	CodecError(name, kind string)

	// HandshakeFailed fires when the listener aborts a connection during
	// the name/pid handshake.
	HandshakeFailed()

	// PoolClosed fires once, when close() publishes the QUIT sentinel.
	PoolClosed()
}

// NopHooks discards every event. It is the Config.Hooks default.
type NopHooks struct{}

func (NopHooks) QueuePut(depth, capacity int)                              {}
func (NopHooks) QueueGet(depth, capacity int)                              {}
func (NopHooks) ProxyStarted(id, name, addr string, pid int)               {}
func (NopHooks) ProxyStopped(name string, status ProxyStatus, nJobs int64) {}
func (NopHooks) DispatchStarted(name string) DispatchSpan                  { return nopSpan{} }
func (NopHooks) CodecError(name, kind string)                              {}
func (NopHooks) HandshakeFailed()                                          {}
func (NopHooks) PoolClosed()                                              {}

type nopSpan struct{}

func (nopSpan) End(DispatchOutcome) {}

// multiHooks fans a single event out to several Hooks implementations, so
// metrics, tracing and the event bus can all observe the same boss without
// any of them knowing about the others.
type multiHooks []Hooks

// Multi combines several Hooks into one that calls each in turn.
func Multi(hooks ...Hooks) Hooks {
	nonNil := make(multiHooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			nonNil = append(nonNil, h)
		}
	}
	if len(nonNil) == 0 {
		return NopHooks{}
	}
	return nonNil
}

func (m multiHooks) QueuePut(depth, capacity int) {
	for _, h := range m {
		h.QueuePut(depth, capacity)
	}
}

func (m multiHooks) QueueGet(depth, capacity int) {
	for _, h := range m {
		h.QueueGet(depth, capacity)
	}
}

func (m multiHooks) ProxyStarted(id, name, addr string, pid int) {
	for _, h := range m {
		h.ProxyStarted(id, name, addr, pid)
	}
}

func (m multiHooks) ProxyStopped(name string, status ProxyStatus, nJobs int64) {
	for _, h := range m {
		h.ProxyStopped(name, status, nJobs)
	}
}

func (m multiHooks) DispatchStarted(name string) DispatchSpan {
	spans := make([]DispatchSpan, 0, len(m))
	for _, h := range m {
		spans = append(spans, h.DispatchStarted(name))
	}
	return multiSpan(spans)
}

func (m multiHooks) CodecError(name, kind string) {
	for _, h := range m {
		h.CodecError(name, kind)
	}
}

func (m multiHooks) HandshakeFailed() {
	for _, h := range m {
		h.HandshakeFailed()
	}
}

func (m multiHooks) PoolClosed() {
	for _, h := range m {
		h.PoolClosed()
	}
}

type multiSpan []DispatchSpan

func (s multiSpan) End(outcome DispatchOutcome) {
	for _, span := range s {
		span.End(outcome)
	}
}
