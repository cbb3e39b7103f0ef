package boss

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/devolvehq/devolve/pkg/core/concurrency"
	"github.com/devolvehq/devolve/pkg/queue"
)

// deadlineListener is satisfied by *net.TCPListener. When l.nl implements
// it, serve refreshes an AcceptFallbackDeadline before every Accept call so
// a platform where Close doesn't wake a blocked Accept still unblocks
// within one fallback interval instead of hanging forever.
type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// listener accepts worker connections, performs the name/pid handshake,
// and spawns one WorkerProxy per accepted worker. Unlike the source
// implementation's 30s accept-timeout poll loop, Close unblocks the
// in-flight Accept() directly by closing the underlying net.Listener, so
// shutdown latency is bounded by the OS rather than by a fixed poll
// interval (see AcceptFallbackDeadline).
//
// Accepted connections are handed to a bounded Executor for the
// handshake step only: a flood of connections that never finish their
// handshake is capped at the executor's queue size rather than spawning
// an unbounded goroutine per socket. Once a connection's handshake
// succeeds, its proxy runs on its own unbounded goroutine for the
// connection's full (potentially unbounded) lifetime.
type listener struct {
	nl     net.Listener
	queue  *queue.Queue
	cfg    Config
	logger Logger
	hooks  Hooks

	handshakes concurrency.Executor

	mu      sync.Mutex
	proxies []*WorkerProxy
	wg      sync.WaitGroup
}

func newListener(nl net.Listener, q *queue.Queue, cfg Config) *listener {
	execCfg := concurrency.DefaultExecutorConfig()
	execCfg.Workers = 32
	execCfg.QueueSize = 256

	return &listener{
		nl:         nl,
		queue:      q,
		cfg:        cfg,
		logger:     cfg.Logger,
		hooks:      cfg.Hooks,
		handshakes: concurrency.NewExecutor(context.Background(), execCfg),
	}
}

// serve runs the accept loop until the listener is closed. It never
// returns an error for a clean shutdown (net.ErrClosed on the accepting
// goroutine's Accept call); a fallback-deadline timeout is retried rather
// than treated as shutdown; any other Accept failure is logged and the
// loop exits.
func (l *listener) serve() {
	dl, hasFallbackDeadline := l.nl.(deadlineListener)

	for {
		if hasFallbackDeadline {
			_ = dl.SetDeadline(time.Now().Add(AcceptFallbackDeadline))
		}

		conn, err := l.nl.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			l.logger.Errorf("boss: accept failed: %v", err)
			return
		}

		task := concurrency.TaskFunc(func(ctx context.Context) error {
			l.handleConn(conn)
			return nil
		})
		if err := l.handshakes.Submit(task); err != nil {
			l.hooks.HandshakeFailed()
			l.logger.Warnf("boss: rejecting connection from %s, handshake queue full: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
		}
	}
}

func (l *listener) handleConn(conn net.Conn) {
	r := bufio.NewReader(conn)
	name, pid, err := readHandshake(r)
	if err != nil {
		hsErr := &ErrHandshake{Addr: conn.RemoteAddr().String(), Err: err}
		l.hooks.HandshakeFailed()
		l.logger.Warnf("boss: %v", hsErr)
		_ = conn.Close()
		return
	}

	proxy := newWorkerProxy(conn, name, conn.RemoteAddr().String(), pid, l.queue, l.logger, l.hooks, l.cfg.PostQuitGrace)

	l.mu.Lock()
	l.proxies = append(l.proxies, proxy)
	l.mu.Unlock()

	l.hooks.ProxyStarted(proxy.ID, proxy.Name, proxy.PeerAddr, proxy.RemotePid)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		proxy.run()
	}()
}

// readHandshake parses the two handshake lines a worker sends on
// connect: its name, then its pid, each newline-terminated.
func readHandshake(r *bufio.Reader) (name string, pid int, err error) {
	nameLine, err := r.ReadString('\n')
	if err != nil {
		return "", 0, fmt.Errorf("reading name: %w", err)
	}
	name = strings.TrimSpace(nameLine)
	if name == "" {
		return "", 0, fmt.Errorf("empty worker name")
	}

	pidLine, err := r.ReadString('\n')
	if err != nil {
		return "", 0, fmt.Errorf("reading pid: %w", err)
	}
	pid, err = strconv.Atoi(strings.TrimRight(pidLine, "\r\n"))
	if err != nil || pid <= 0 {
		return "", 0, fmt.Errorf("invalid worker pid %q", pidLine)
	}
	return name, pid, nil
}

// close stops accepting new connections and drains the handshake
// executor. It does not wait for in-flight proxies; call wait for that.
func (l *listener) close() error {
	err := l.nl.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), l.cfg.PostQuitGrace)
	defer cancel()
	_ = l.handshakes.Shutdown(shutdownCtx)
	return err
}

// wait blocks until every spawned proxy's run loop has returned.
func (l *listener) wait() {
	l.wg.Wait()
}

// snapshot returns the proxies accepted so far, for introspection (e.g. a
// dashboard or /healthz handler). The slice is a copy; safe to read freely.
func (l *listener) snapshot() []*WorkerProxy {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*WorkerProxy, len(l.proxies))
	copy(out, l.proxies)
	return out
}
