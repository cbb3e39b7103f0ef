package boss

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/devolvehq/devolve/pkg/queue"
	"github.com/devolvehq/devolve/pkg/wire"
)

// WorkerProxy represents one connected worker: its identity, its socket,
// and the running total of jobs it has completed. It is created on a
// successful handshake and owned exclusively by the listener's proxy
// registry; reads from other goroutines are only safe after the proxy's
// run loop has returned.
type WorkerProxy struct {
	ID            string
	Name          string
	PeerAddr      string
	RemotePid     int
	conn          net.Conn
	nJobs         int64 // atomic
	statusVal     atomic.Value
	queue         *queue.Queue
	logger        Logger
	hooks         Hooks
	postQuitGrace time.Duration
}

func newWorkerProxy(conn net.Conn, name, peerAddr string, pid int, q *queue.Queue, logger Logger, hooks Hooks, postQuitGrace time.Duration) *WorkerProxy {
	p := &WorkerProxy{
		ID:            uuid.New().String(),
		Name:          name,
		PeerAddr:      peerAddr,
		RemotePid:     pid,
		conn:          conn,
		queue:         q,
		logger:        logger,
		hooks:         hooks,
		postQuitGrace: postQuitGrace,
	}
	p.setStatus(StatusBusy)
	return p
}

// NJobs returns the number of jobs this proxy has completed. Safe to call
// at any time; it is a live atomic counter.
func (p *WorkerProxy) NJobs() int64 {
	return atomic.LoadInt64(&p.nJobs)
}

// Status returns the proxy's current lifecycle status.
func (p *WorkerProxy) Status() ProxyStatus {
	return p.statusVal.Load().(ProxyStatus)
}

func (p *WorkerProxy) setStatus(s ProxyStatus) {
	p.statusVal.Store(s)
}

// run executes the proxy's job loop: pop an item, dispatch it against the
// worker socket, deliver the result, repeat, until the QUIT sentinel is
// observed or an unrecoverable error occurs.
func (p *WorkerProxy) run() {
	r := bufio.NewReader(p.conn)
	finalStatus := StatusDone

	defer func() {
		p.shutdown(finalStatus)
	}()

	for {
		item, err := p.queue.Get(context.Background())
		if err != nil {
			// Only happens if the queue itself is torn down out from under
			// us, which the pool never does while proxies are running.
			finalStatus = StatusError
			return
		}
		p.hooks.QueueGet(p.queue.Len(), p.queue.Cap())

		if queue.IsQuit(item) {
			p.queue.PutBlocking(queue.Quit)
			finalStatus = StatusDone
			return
		}

		job := item.(queue.Job)
		if !p.dispatch(job, r) {
			finalStatus = StatusError
			return
		}
	}
}

// dispatch runs one get_work -> send -> recv -> put_result round trip.
// Returns false if the proxy must terminate (the caller sets status=error
// and exits SHUTDOWN).
func (p *WorkerProxy) dispatch(job queue.Job, r *bufio.Reader) bool {
	span := p.hooks.DispatchStarted(p.Name)

	payload := job.GetWork()

	if err := wire.Send(p.conn, r, payload); err != nil {
		p.failDispatch(job, span, err)
		return false
	}

	result, err := wire.Recv(p.conn, r)
	if err != nil {
		p.failDispatch(job, span, err)
		return false
	}

	// As in failDispatch, a panic from an untrusted put_result is isolated
	// to this proxy: it is logged and the proxy exits with status error.
	delivered := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Errorf("proxy %s: put_result panicked: %v", p.Name, r)
			}
		}()
		job.PutResult(result)
		return true
	}()
	atomic.AddInt64(&p.nJobs, 1)
	span.End(OutcomeSuccess)
	return delivered
}

func (p *WorkerProxy) failDispatch(job queue.Job, span DispatchSpan, err error) {
	outcome, kind, wrapped := classifyErr(p.Name, err)
	span.End(outcome)
	p.hooks.CodecError(p.Name, kind)
	p.logger.Warnf("proxy %s: dispatch failed: %v", p.Name, wrapped)

	// The application must be notified exactly once; isolate any panic
	// from an untrusted put_result so it cannot take down this proxy's
	// caller or any other proxy.
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Errorf("proxy %s: put_result(nil) panicked: %v", p.Name, r)
			}
		}()
		job.PutResult(nil)
	}()
}

// classifyErr wraps err into a typed error so callers can
// errors.As(err, &boss.ErrProtocol{}) across the codec -> proxy boundary:
// a *wire.ProtocolError becomes *ErrProtocol, anything else *ErrTransport.
// wire.Send and wire.Recv report every failure, I/O errors and premature
// EOF included, as a *wire.ProtocolError, so codec failures are classified
// as protocol errors. Both kinds are handled identically by the proxy.
func classifyErr(worker string, err error) (outcome DispatchOutcome, kind string, wrapped error) {
	var pe *wire.ProtocolError
	if errors.As(err, &pe) {
		return OutcomeProtocolError, "protocol", &ErrProtocol{Worker: worker, Err: err}
	}
	return OutcomeTransportError, "transport", &ErrTransport{Worker: worker, Err: err}
}

// shutdown sends the out-of-band "quit" line, gives the worker a short
// grace period to close its end, then closes the socket unilaterally.
func (p *WorkerProxy) shutdown(status ProxyStatus) {
	_ = wire.SendQuit(p.conn)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, _ = p.conn.Read(buf) // drained until EOF or grace expires
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.postQuitGrace):
	}

	_ = p.conn.Close()
	p.setStatus(status)
	p.hooks.ProxyStopped(p.Name, status, p.NJobs())
}
