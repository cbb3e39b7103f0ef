package tracing

import "fmt"

// Config configures tracing initialization. It matches the
// Config/Initialize/IsInitialized shape this codebase uses elsewhere for
// observability wiring.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Exporter is one of "jaeger", "zipkin", "stdout", "none".
	Exporter   string
	Endpoint   string
	SampleRate float64
}

// DefaultConfig returns a Config with devolve's own defaults: stdout
// export, full sampling, development environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "devolve-boss",
		ServiceVersion: "1.0.0",
		Exporter:       "stdout",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

func (c Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("sample rate must be between 0.0 and 1.0")
	}
	switch c.Exporter {
	case "jaeger", "zipkin", "stdout", "none", "":
	default:
		return fmt.Errorf("unsupported exporter: %s", c.Exporter)
	}
	return nil
}
