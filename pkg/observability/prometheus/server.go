package prometheus

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Server serves /metrics (Prometheus exposition format) and /healthz on a
// dedicated address. It never touches the boss's TCP wire protocol.
type Server struct {
	addr   string
	server *fasthttp.Server
	ready  int32
}

// NewMetricsServer builds a metrics/health server exposing the metrics
// registered against DefaultRegistry.
func NewMetricsServer(addr string) *Server {
	s := &Server{addr: addr}

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{}))

	s.server = &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/metrics":
				metricsHandler(ctx)
			case "/healthz":
				s.handleHealthz(ctx)
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}
	return s
}

func (s *Server) handleHealthz(ctx *fasthttp.RequestCtx) {
	if atomic.LoadInt32(&s.ready) == 1 {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	ctx.SetBodyString("not ready")
}

// SetReady flips /healthz to 200 once the listener has bound its port.
func (s *Server) SetReady(ready bool) {
	if ready {
		atomic.StoreInt32(&s.ready, 1)
	} else {
		atomic.StoreInt32(&s.ready, 0)
	}
}

// ListenAndServe blocks serving /metrics and /healthz until Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe(s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(_ context.Context) error {
	return s.server.Shutdown()
}
