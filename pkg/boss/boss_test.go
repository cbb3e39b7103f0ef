package boss

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devolvehq/devolve/pkg/wire"
)

// fakeJob is a test double satisfying queue.Job; it records the result it
// received (or nil) for later assertion.
type fakeJob struct {
	work   []byte
	mu     sync.Mutex
	result []byte
	done   chan struct{}
}

func newFakeJob(work string) *fakeJob {
	return &fakeJob{work: []byte(work), done: make(chan struct{})}
}

func (j *fakeJob) GetWork() []byte { return j.work }

func (j *fakeJob) PutResult(result []byte) {
	j.mu.Lock()
	j.result = result
	j.mu.Unlock()
	close(j.done)
}

func (j *fakeJob) Result(t *testing.T) []byte {
	t.Helper()
	select {
	case <-j.done:
	case <-time.After(5 * time.Second):
		t.Fatal("job never received a result")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// fakeWorker dials a boss, performs the handshake, and exposes a simple
// script-driven loop for tests: it can echo work uppercased, refuse to ACK,
// or simply hang up, depending on which serve method the test runs.
type fakeWorker struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialFakeWorker(t *testing.T, addr string, name string, pid int) *fakeWorker {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial boss: %v", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n%d\n", name, pid); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	return &fakeWorker{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// serveEcho answers every job with its uppercased work, until it observes
// the "quit" sentinel, then closes its socket.
func (w *fakeWorker) serveEcho() {
	for {
		payload, err := wire.Recv(w.conn, w.r)
		if err != nil {
			_ = w.conn.Close()
			return
		}
		upper := make([]byte, len(payload))
		for i, b := range payload {
			if b >= 'a' && b <= 'z' {
				b -= 'a' - 'A'
			}
			upper[i] = b
		}
		if err := wire.Send(w.conn, w.r, upper); err != nil {
			_ = w.conn.Close()
			return
		}
	}
}

// serveCrashAfter answers n jobs successfully, then closes the connection
// without responding to the (n+1)th, simulating a mid-job crash.
func (w *fakeWorker) serveCrashAfter(n int) {
	for i := 0; i < n; i++ {
		payload, err := wire.Recv(w.conn, w.r)
		if err != nil {
			_ = w.conn.Close()
			return
		}
		if err := wire.Send(w.conn, w.r, payload); err != nil {
			_ = w.conn.Close()
			return
		}
	}
	_, _ = wire.Recv(w.conn, w.r)
	_ = w.conn.Close()
}

// serveNoAck reads one job and never sends a length/payload/ack back.
func (w *fakeWorker) serveNoAck() {
	line, err := w.r.ReadString('\n')
	if err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
			_, _ = io.ReadFull(w.r, make([]byte, n))
		}
	}
	time.Sleep(50 * time.Millisecond)
	_ = w.conn.Close()
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestPool_HappyPath_OneWorkerOneJob(t *testing.T) {
	port := freePort(t)
	p, err := New(Config{Port: port})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close(); p.Join() }()

	w := dialFakeWorker(t, fmt.Sprintf("127.0.0.1:%d", port), "w1", 123)
	go w.serveEcho()

	job := newFakeJob("hello")
	p.Add(job)

	if got := string(job.Result(t)); got != "HELLO" {
		t.Fatalf("result = %q, want HELLO", got)
	}
}

func TestPool_MultiWorkerFanOut(t *testing.T) {
	port := freePort(t)
	p, err := New(Config{Port: port})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close(); p.Join() }()

	const nWorkers = 4
	for i := 0; i < nWorkers; i++ {
		w := dialFakeWorker(t, fmt.Sprintf("127.0.0.1:%d", port), "w"+strconv.Itoa(i), 100+i)
		go w.serveEcho()
	}

	const nJobs = 100
	jobs := make([]*fakeJob, nJobs)
	for i := range jobs {
		jobs[i] = newFakeJob(fmt.Sprintf("job%d", i))
		p.Add(jobs[i])
	}

	for i, j := range jobs {
		want := fmt.Sprintf("JOB%d", i)
		if got := string(j.Result(t)); got != want {
			t.Fatalf("job %d: result = %q, want %q", i, got, want)
		}
	}
}

func TestPool_WorkerCrashMidJob(t *testing.T) {
	port := freePort(t)
	p, err := New(Config{Port: port})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close(); p.Join() }()

	w := dialFakeWorker(t, fmt.Sprintf("127.0.0.1:%d", port), "crasher", 1)
	go w.serveCrashAfter(1)

	good := newFakeJob("first")
	p.Add(good)
	if got := string(good.Result(t)); got != "first" {
		t.Fatalf("first job result = %q, want first", got)
	}

	bad := newFakeJob("second")
	p.Add(bad)
	if got := bad.Result(t); got != nil {
		t.Fatalf("crashed job result = %v, want nil", got)
	}
}

func TestPool_MissingAck(t *testing.T) {
	port := freePort(t)
	p, err := New(Config{Port: port})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close(); p.Join() }()

	w := dialFakeWorker(t, fmt.Sprintf("127.0.0.1:%d", port), "silent", 1)
	go w.serveNoAck()

	job := newFakeJob("ping")
	p.Add(job)
	if got := job.Result(t); got != nil {
		t.Fatalf("result = %v, want nil", got)
	}
}

func TestPool_BackpressureOnFullQueue(t *testing.T) {
	port := freePort(t)
	p, err := New(Config{Port: port, QueueSize: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close(); p.Join() }()

	p.Add(newFakeJob("a"))
	p.Add(newFakeJob("b"))

	addReturned := make(chan struct{})
	go func() {
		p.Add(newFakeJob("c"))
		close(addReturned)
	}()

	select {
	case <-addReturned:
		t.Fatal("Add returned before queue had room")
	case <-time.After(100 * time.Millisecond):
	}

	w := dialFakeWorker(t, fmt.Sprintf("127.0.0.1:%d", port), "drain", 1)
	go w.serveEcho()

	select {
	case <-addReturned:
	case <-time.After(5 * time.Second):
		t.Fatal("Add never unblocked once a worker drained the queue")
	}
}

func TestPool_OrderlyShutdownWithInFlightWork(t *testing.T) {
	port := freePort(t)
	p, err := New(Config{Port: port})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := dialFakeWorker(t, fmt.Sprintf("127.0.0.1:%d", port), "w1", 1)
	go w.serveEcho()

	job := newFakeJob("pending")
	p.Add(job)
	if got := string(job.Result(t)); got != "PENDING" {
		t.Fatalf("result = %q, want PENDING", got)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Join never returned after Close")
	}

	workers := p.Workers()
	if len(workers) != 1 || workers[0].Status() != StatusDone {
		t.Fatalf("worker status = %+v, want exactly one StatusDone", workers)
	}
}

func TestConfig_RejectsOutOfRangePort(t *testing.T) {
	_, err := New(Config{Port: 80})
	if err == nil {
		t.Fatal("expected an error for a privileged port")
	}
	var cfgErr *ErrConfig
	if !asErrConfig(err, &cfgErr) {
		t.Fatalf("err = %v, want *ErrConfig", err)
	}
}

func asErrConfig(err error, target **ErrConfig) bool {
	e, ok := err.(*ErrConfig)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestMulti_FansOutToEveryHook(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	record := func(name string) Hooks {
		return recordingHooks{name: name, mu: &mu, calls: &calls}
	}
	h := Multi(record("a"), record("b"))
	h.PoolClosed()

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("calls = %v, want [a b]", calls)
	}
}

type recordingHooks struct {
	NopHooks
	name  string
	mu    *sync.Mutex
	calls *[]string
}

func (r recordingHooks) PoolClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.calls = append(*r.calls, r.name)
}

func TestInit_SecondCallIsIdempotent(t *testing.T) {
	defer ResetInstance()

	if err := Init(Config{Port: 0}); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	first := Instance()
	if first == nil {
		t.Fatal("Instance() = nil after Init")
	}
	defer first.Close()

	var log recordingLogger
	if err := Init(Config{Port: 0, Logger: &log}); err != nil {
		t.Fatalf("second Init returned an error, want nil (log-and-keep): %v", err)
	}
	if Instance() != first {
		t.Fatal("second Init replaced the existing instance")
	}
	if len(log.warnings) != 1 {
		t.Fatalf("warnings logged = %d, want 1", len(log.warnings))
	}
}

type recordingLogger struct {
	NopLogger
	warnings []string
}

func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}
