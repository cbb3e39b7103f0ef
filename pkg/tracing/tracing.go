// Package tracing wires OpenTelemetry distributed tracing into a boss's
// dispatch loop, mirroring the Config/Initialize/IsInitialized shape used
// for observability elsewhere in this codebase's ecosystem.
package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	mu           sync.RWMutex
	globalTracer trace.Tracer
	provider     *sdktrace.TracerProvider
	initialized  bool
)

// Initialize builds and installs a global TracerProvider for cfg.Exporter.
// It returns an error if called a second time without an intervening
// Shutdown; devolve-boss only ever calls it once at startup.
func Initialize(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid tracing config: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return fmt.Errorf("tracing already initialized")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("building resource: %w", err)
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return err
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	provider = tp
	globalTracer = tp.Tracer(cfg.ServiceName)
	initialized = true
	return nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "jaeger":
		return newJaegerExporter(cfg.Endpoint)
	case "zipkin":
		return newZipkinExporter(cfg.Endpoint)
	case "stdout", "":
		return newStdoutExporter(), nil
	case "none":
		return &noopExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

// Tracer returns the global tracer, or a no-op tracer if Initialize has
// not (yet) succeeded.
func Tracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if globalTracer == nil {
		return trace.NewNoopTracerProvider().Tracer("noop")
	}
	return globalTracer
}

// IsInitialized reports whether Initialize has succeeded.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return initialized
}

// Shutdown flushes and stops the installed TracerProvider, if any, and
// clears the initialized flag so a later Initialize can run again.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		return nil
	}
	initialized = false
	tp := provider
	provider = nil
	globalTracer = nil
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
