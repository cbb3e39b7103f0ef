// Command devolve-boss runs a boss process: it accepts worker
// connections on the configured TCP port and optionally serves Prometheus
// metrics, a live WebSocket dashboard, a NATS event bridge, and job
// history recording. It exposes no interface for submitting jobs.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devolvehq/devolve/pkg/boss"
	"github.com/devolvehq/devolve/pkg/config"
	"github.com/devolvehq/devolve/pkg/core"
	"github.com/devolvehq/devolve/pkg/dashboard"
	"github.com/devolvehq/devolve/pkg/eventbus"
	"github.com/devolvehq/devolve/pkg/history"
	"github.com/devolvehq/devolve/pkg/observability/prometheus"
	"github.com/devolvehq/devolve/pkg/tracing"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := core.NewDefaultLogger()
	logger.Info("starting devolve-boss")

	bus := eventbus.New()
	hooksList := []boss.Hooks{eventbus.NewHooks(bus)}

	if cfg.Tracing.Enabled {
		tcfg := tracing.DefaultConfig()
		tcfg.ServiceName = cfg.Tracing.ServiceName
		if tcfg.ServiceName == "" {
			tcfg.ServiceName = "devolve-boss"
		}
		tcfg.Exporter = cfg.Tracing.Exporter
		tcfg.Endpoint = cfg.Tracing.Endpoint
		tcfg.SampleRate = cfg.Tracing.SampleRate
		if err := tracing.Initialize(ctx, tcfg); err != nil {
			logger.Warn("failed to initialize tracing", "error", err)
		} else {
			logger.Info("tracing enabled", "exporter", tcfg.Exporter)
			hooksList = append(hooksList, tracing.NewHooks())
		}
	}

	metrics := prometheus.GetMetrics()
	hooksList = append(hooksList, prometheus.NewHooks(metrics))

	var metricsSrv *prometheus.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = prometheus.NewMetricsServer(cfg.MetricsAddr)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
	}

	var recorder *history.Recorder
	historyStop := make(chan struct{})
	if cfg.History.Driver != "" {
		recorder, err = history.Open(ctx, history.Config{Driver: cfg.History.Driver, DSN: cfg.History.DSN})
		if err != nil {
			logger.Warn("failed to open history recorder", "error", err)
		} else {
			go recorder.Run(bus, historyStop)
			logger.Info("history recording enabled", "driver", cfg.History.Driver)
		}
	}

	var dashboardSrv *http.Server
	dashboardStop := make(chan struct{})
	if cfg.DashboardAddr != "" {
		dboard := dashboard.New(bus)
		go dboard.Serve(dashboardStop)
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", dboard.HandleWebSocket)
		dashboardSrv = &http.Server{Addr: cfg.DashboardAddr, Handler: mux}
		go func() {
			if err := dashboardSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("dashboard server stopped", "error", err)
			}
		}()
		logger.Info("dashboard server listening", "addr", cfg.DashboardAddr)
	}

	var natsBridge *eventbus.NATSBridge
	if cfg.NATSAddr != "" || cfg.NATSEmbedded {
		url := cfg.NATSAddr
		if cfg.NATSEmbedded {
			url = ""
		}
		natsBridge, err = eventbus.Connect(bus, eventbus.NATSBridgeConfig{URL: url})
		if err != nil {
			logger.Warn("failed to connect nats bridge", "error", err)
		} else {
			logger.Info("nats bridge connected", "addr", cfg.NATSAddr)
		}
	}

	pool, err := boss.New(boss.Config{
		Port:          cfg.Port,
		QueueSize:     cfg.QueueSize,
		PostQuitGrace: cfg.PostQuitGrace,
		Logger:        logger,
		Hooks:         boss.Multi(hooksList...),
	})
	if err != nil {
		log.Fatalf("failed to start boss: %v", err)
	}
	if metricsSrv != nil {
		metricsSrv.SetReady(true)
	}
	logger.Info("boss listening", "port", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down gracefully")

	if err := pool.Close(); err != nil {
		logger.Error("error closing pool", "error", err)
	}
	pool.Join()

	close(historyStop)
	close(dashboardStop)
	if recorder != nil {
		_ = recorder.Close()
	}
	if natsBridge != nil {
		natsBridge.Close()
	}
	if dashboardSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = dashboardSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	logger.Info("devolve-boss stopped")
}

func loadConfig() (config.DevolveConfig, error) {
	cfg := config.Defaults()

	path := os.Getenv("DEVOLVE_CONFIG_PATH")
	if path == "" {
		path = "devolve.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := config.LoadWithEnv(path, "DEVOLVE", &cfg); err != nil {
			return cfg, fmt.Errorf("loading %s: %w", path, err)
		}
	} else if err := config.ApplyEnvOverrides("DEVOLVE", &cfg); err != nil {
		return cfg, fmt.Errorf("applying env overrides: %w", err)
	}

	return cfg, nil
}
