// Package dashboard serves a live WebSocket feed of boss status: one
// broadcast per eventbus.Event plus a periodic heartbeat, so an operator
// can watch queue depth and worker status without polling /metrics. The
// connection upgrade follows the teacher's WebSocketEventBusBridge;
// the bridge itself is much simpler, since devolve has nothing resembling
// a full pub/sub RPC protocol to expose — it only ever pushes.
package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devolvehq/devolve/pkg/core/failfast"
	"github.com/devolvehq/devolve/pkg/eventbus"
)

// Server upgrades incoming HTTP connections to WebSocket and broadcasts
// every eventbus.Event it observes to all currently connected clients.
type Server struct {
	bus      *eventbus.Bus
	upgrader websocket.Upgrader
	logger   Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte

	heartbeat time.Duration
}

// Logger is the minimal sink Server needs; pkg/boss.Logger satisfies it.
type Logger interface {
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

// Option configures New.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHeartbeat overrides the default 15s heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// New returns a Server that forwards every event published on bus.
// Serve must be called to start broadcasting.
func New(bus *eventbus.Bus, opts ...Option) *Server {
	failfast.NotNil(bus, "bus")

	s := &Server{
		bus:     bus,
		logger:  nopLogger{},
		clients: make(map[*websocket.Conn]chan []byte),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		heartbeat: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve subscribes to bus and broadcasts until stop is closed.
func (s *Server) Serve(stop <-chan struct{}) {
	events := s.bus.SubscribeAll()
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			s.broadcast(snapshot{Type: "event", Event: ev})
		case <-ticker.C:
			s.broadcast(snapshot{Type: "heartbeat", At: time.Now().UTC()})
		case <-stop:
			s.closeAll()
			return
		}
	}
}

type snapshot struct {
	Type  string          `json:"type"`
	Event eventbus.Event  `json:"event,omitempty"`
	At    time.Time       `json:"at,omitempty"`
}

func (s *Server) broadcast(snap snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// HandleWebSocket upgrades the request and registers the connection as a
// broadcast recipient until it disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("dashboard: websocket upgrade failed: %v", err)
		return
	}

	ch := make(chan []byte, 32)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	go s.writePump(conn, ch)
	go s.readPump(conn)
}

func (s *Server) writePump(conn *websocket.Conn, ch chan []byte) {
	for payload := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.removeClient(conn)
			return
		}
	}
}

// readPump drains client messages (the dashboard is push-only) until the
// connection closes, which is how gorilla/websocket surfaces a client
// disconnect.
func (s *Server) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.removeClient(conn)
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	if ch, ok := s.clients[conn]; ok {
		close(ch)
		delete(s.clients, conn)
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		close(ch)
		_ = conn.Close()
		delete(s.clients, conn)
	}
}
