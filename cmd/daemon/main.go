// Command daemon is the scheduler daemon process entry point (C5). It
// expects to be run under a process supervisor rather than self-daemonizing
// with the classic double-fork dance (original_source's utils/daemon.py);
// that matches distributedq's own cmd/worker/main.go, which is a plain
// foreground process with signal-driven shutdown.
//
// Usage:
//
//	go run ./cmd/daemon
//
// Configuration is entirely environment-driven; see internal/config.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/macq/tomtom-priority-queue/internal/config"
	"github.com/macq/tomtom-priority-queue/internal/errs"
	"github.com/macq/tomtom-priority-queue/internal/logger"
	"github.com/macq/tomtom-priority-queue/internal/metrics"
	"github.com/macq/tomtom-priority-queue/internal/payloadstore"
	"github.com/macq/tomtom-priority-queue/internal/remote"
	"github.com/macq/tomtom-priority-queue/internal/scheduler"
	"github.com/macq/tomtom-priority-queue/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Error().Err(err).Msg("configuration error")
		return exitCodeFor(err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.HomeFolder, "daemon.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to open daemon log file")
		return 1
	}
	defer logFile.Close()
	logger.Configure(cfg.LogLevel, logFile)

	payloads, err := payloadstore.New(filepath.Join(cfg.HomeFolder, "payloads"))
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to initialize payload store")
		return 1
	}

	s, err := store.Open(filepath.Join(cfg.HomeFolder, "db.parquet"))
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to open queue store")
		return 1
	}

	client, err := remote.New(cfg)
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to construct remote client")
		return exitCodeFor(err)
	}

	collector := metrics.NewCollector()
	go serveMetrics(collector, s)

	d := scheduler.New(s, payloads, client, filepath.Join(cfg.HomeFolder, "daemon.pid"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx, int(cfg.LoopPeriod.Seconds())); err != nil {
		logger.Log.Error().Err(err).Msg("failed to start scheduler")
		return exitCodeFor(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	logger.Log.Info().Msg("daemon started")
	<-sigCh

	logger.Log.Info().Msg("shutting down daemon")
	d.Stop()
	cancel()
	return 0
}

// serveMetrics exposes /metrics on :9090, mirroring cmd/worker/main.go's
// promhttp.Handler bootstrap. It is intentionally best-effort: a failed
// metrics listener should not take the daemon down.
func serveMetrics(collector *metrics.Collector, s *store.Store) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	collector.RefreshFromStore(s)

	if err := http.ListenAndServe(":9090", mux); err != nil {
		logger.Log.Warn().Err(err).Msg("metrics server stopped")
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrMisconfigured):
		return 2
	case errors.Is(err, errs.ErrForbidden):
		return 3
	default:
		return 1
	}
}
