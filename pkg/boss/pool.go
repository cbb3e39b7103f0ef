package boss

import (
	"fmt"
	"net"
	"sync"

	"github.com/devolvehq/devolve/pkg/queue"
)

// Pool is the boss side of devolve: it binds a listener, accepts worker
// connections, and dispatches jobs handed to Add across whichever workers
// are currently connected. Unlike the source implementation's process-wide
// singleton, Pool is an ordinary value returned by New; callers that want
// the historical global-instance behavior get it from Init/Instance below,
// which is a thin wrapper over this factory.
type Pool struct {
	cfg      Config
	queue    *queue.Queue
	listener *listener

	closeOnce sync.Once
	closeErr  error
}

// New binds a listener on cfg.Port and starts accepting worker
// connections. The returned Pool is ready for Add calls immediately;
// jobs queue up until a worker is available.
func New(cfg Config) (*Pool, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	nl, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, &ErrListener{Err: err}
	}

	q := queue.New(cfg.QueueSize)
	l := newListener(nl, q, cfg)
	go l.serve()

	return &Pool{cfg: cfg, queue: q, listener: l}, nil
}

// Add enqueues a job for dispatch to the next available worker. It blocks
// if the queue is at capacity. Add must not be called after Close.
func (p *Pool) Add(job queue.Job) {
	p.queue.PutBlocking(job)
	p.cfg.Hooks.QueuePut(p.queue.Len(), p.queue.Cap())
}

// Close publishes the QUIT sentinel exactly once and stops accepting new
// worker connections. It does not block for workers to drain; call Join
// for that. Close is idempotent.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.queue.PutBlocking(queue.Quit)
		p.cfg.Hooks.QueuePut(p.queue.Len(), p.queue.Cap())
		p.cfg.Hooks.PoolClosed()
		p.closeErr = p.listener.close()
	})
	return p.closeErr
}

// Join waits for every connected worker's proxy to observe QUIT and exit
// cleanly. Callers normally call Close then Join.
func (p *Pool) Join() {
	p.listener.wait()
}

// Workers returns a snapshot of every proxy accepted so far, for
// introspection (dashboard status, /healthz readiness, tests).
func (p *Pool) Workers() []*WorkerProxy {
	return p.listener.snapshot()
}

// QueueDepth returns the current number of items waiting in the queue.
func (p *Pool) QueueDepth() int {
	return p.queue.Len()
}

var (
	instanceMu sync.Mutex
	instance   *Pool
)

// Init installs the process-wide default Pool, mirroring the source
// implementation's init()/instance() global. New code should prefer New
// and thread the *Pool explicitly; Init/Instance exist for callers that
// need the historical single-boss-per-process shape. Calling Init again
// while an instance is already installed is not an error: it logs a
// warning and keeps the existing instance, rather than failing a caller
// that doesn't know (or care) whether some earlier code already called it.
func Init(cfg Config) error {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		logger := cfg.Logger
		if logger == nil {
			logger = NopLogger{}
		}
		logger.Warnf("boss: Init called twice, keeping existing instance")
		return nil
	}
	p, err := New(cfg)
	if err != nil {
		return err
	}
	instance = p
	return nil
}

// Instance returns the Pool installed by Init, or nil if Init has not
// been called.
func Instance() *Pool {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// ResetInstance clears the process-wide Pool so a later Init can install
// a new one. Intended for tests.
func ResetInstance() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}
