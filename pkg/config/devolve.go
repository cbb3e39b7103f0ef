package config

import "time"

// DevolveConfig is the full on-disk/env configuration surface for
// cmd/devolve-boss. It is loaded with LoadWithEnv(path, "DEVOLVE", &cfg),
// so every field can be overridden by a DEVOLVE_-prefixed environment
// variable (e.g. DEVOLVE_PORT, DEVOLVE_TRACING_ENDPOINT).
type DevolveConfig struct {
	// Port is the TCP port the boss listener binds.
	Port int `yaml:"port"`

	// QueueSize is the bounded job queue capacity.
	QueueSize int `yaml:"queue_size"`

	// PostQuitGrace is how long a proxy waits for a worker to close its
	// socket after "quit" before closing it unilaterally, e.g. "1s".
	PostQuitGrace time.Duration `yaml:"post_quit_grace"`

	// MetricsAddr, if non-empty, serves Prometheus /metrics and /healthz
	// on this address (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr"`

	// DashboardAddr, if non-empty, serves the live WebSocket dashboard on
	// this address (e.g. ":8081").
	DashboardAddr string `yaml:"dashboard_addr"`

	// NATSAddr, if non-empty, is the URL of an external NATS server that
	// lifecycle events are republished onto. If NATSEmbedded is true, an
	// in-process NATS server is started on a randomly chosen port and used
	// instead, and NATSAddr is not used.
	NATSAddr     string `yaml:"nats_addr"`
	NATSEmbedded bool   `yaml:"nats_embedded"`

	Tracing TracingConfig `yaml:"tracing"`
	History HistoryConfig `yaml:"history"`
}

// TracingConfig configures OpenTelemetry export. Tracing runs only when
// Enabled is true. Exporter is one of "stdout", "jaeger", "zipkin" or
// "none"; "" selects "stdout".
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
	ServiceName string  `yaml:"service_name"`
}

// HistoryConfig configures the job-outcome audit recorder. An empty
// Driver disables recording; otherwise one of "sqlite", "postgres",
// "postgres-legacy".
type HistoryConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Defaults returns a DevolveConfig with the documented defaults applied,
// suitable as the starting point before LoadWithEnv overlays a file and
// environment variables on top.
func Defaults() DevolveConfig {
	return DevolveConfig{
		Port:          11111,
		QueueSize:     5000,
		PostQuitGrace: time.Second,
		MetricsAddr:   ":9600",
		DashboardAddr: ":9601",
		History: HistoryConfig{
			Driver: "sqlite",
			DSN:    "devolve_history.db",
		},
	}
}
