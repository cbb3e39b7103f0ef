package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/devolvehq/devolve/pkg/boss"
)

// Hooks adapts the boss package's observation seam onto OpenTelemetry: one
// span per dispatch attempt, plus a short standalone span for each proxy
// start/stop and codec error. If tracing was never Initialize'd, Tracer
// falls back to a no-op tracer, so Hooks is always safe to wire in.
type Hooks struct {
	boss.NopHooks
}

// NewHooks returns a boss.Hooks that records one span per dispatch.
func NewHooks() boss.Hooks {
	return Hooks{}
}

type span struct {
	s oteltrace.Span
}

func (Hooks) DispatchStarted(name string) boss.DispatchSpan {
	_, s := Tracer().Start(context.Background(), "devolve.dispatch",
		oteltrace.WithAttributes(attribute.String("worker.name", name)),
	)
	return span{s: s}
}

func (s span) End(outcome boss.DispatchOutcome) {
	s.s.SetAttributes(attribute.String("outcome", string(outcome)))
	if outcome != boss.OutcomeSuccess {
		s.s.SetStatus(codes.Error, string(outcome))
	}
	s.s.End()
}

func (Hooks) ProxyStarted(id, name, addr string, pid int) {
	_, s := Tracer().Start(context.Background(), "devolve.proxy_started",
		oteltrace.WithAttributes(
			attribute.String("worker.id", id),
			attribute.String("worker.name", name),
			attribute.String("worker.addr", addr),
			attribute.Int("worker.pid", pid),
		),
	)
	s.End()
}

func (Hooks) ProxyStopped(name string, status boss.ProxyStatus, nJobs int64) {
	_, s := Tracer().Start(context.Background(), "devolve.proxy_stopped",
		oteltrace.WithAttributes(
			attribute.String("worker.name", name),
			attribute.String("status", string(status)),
			attribute.Int64("jobs_completed", nJobs),
		),
	)
	s.End()
}

func (Hooks) CodecError(name, kind string) {
	_, s := Tracer().Start(context.Background(), "devolve.codec_error",
		oteltrace.WithAttributes(
			attribute.String("worker.name", name),
			attribute.String("kind", kind),
		),
	)
	s.SetStatus(codes.Error, kind)
	s.End()
}
