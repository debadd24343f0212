package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deusflow/ainews/internal/app"
	"github.com/deusflow/ainews/internal/config"
	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("ainews failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	sourcesPath := os.Getenv("SOURCES_PATH")
	if sourcesPath == "" {
		sourcesPath = "configs/sources.yaml"
	}
	config.LoadEnv(sourcesPath)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		return err
	}
	log.Info("sources loaded", "count", len(sources), "path", cfg.SourcesPath)

	health := metrics.NewHealth()
	if cfg.EnableHTTPMonitoring {
		srv := newMonitoringServer(":"+cfg.MonitoringPort, health)
		go func() {
			log.Info("starting monitoring server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("monitoring server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pipeline, closeAll, err := app.Build(ctx, cfg, health, log)
	if err != nil {
		return err
	}
	defer closeAll()

	res, err := pipeline.Run(ctx, sources)
	if err != nil {
		return err
	}
	for i, it := range res.Selected {
		log.Info("selected",
			"rank", i+1,
			"score", it.Score,
			"perspective", it.Perspective,
			"source", it.SourceName,
			"title", it.Title,
			"url", it.CanonicalURL)
	}
	return nil
}

func newMonitoringServer(addr string, health *metrics.Health) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(health))
	mux.HandleFunc("/metrics", metricsHandler(health))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func healthHandler(health *metrics.Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := health.GetStats()

		status := "ok"
		code := http.StatusOK
		if !health.Healthy() {
			status = "error"
			code = http.StatusServiceUnavailable
		}

		response := map[string]interface{}{
			"status":     status,
			"last_run":   stats["last_run_time"],
			"last_error": stats["last_error"],
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}

func metricsHandler(health *metrics.Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health.GetStats())
	}
}
