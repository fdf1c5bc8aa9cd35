package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/config"
	"github.com/RichardKnop/minirel/internal/engine"
	"github.com/RichardKnop/minirel/internal/pkg/logging"
)

const (
	cliName string = "minirel"
)

var (
	configPath = flag.String("config", "", "path to an INI config file")
	connString = flag.String("db", "", "store path with optional parameters, e.g. db.dsk?persistent_blocks=64")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cliName, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return nil, err
		}
	}
	if *connString != "" {
		if err := cfg.ApplyConnectionString(*connString); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() // flushes buffer, if any

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	anEngine, err := engine.Open(cfg, logger, registry)
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = serveMetrics(logger, cfg.MetricsAddr, registry)
	}

	logger.Sugar().With(
		"store", cfg.StorePath,
		"persistent_blocks", cfg.PersistentBlocks,
		"cache_blocks", cfg.CacheBlocks,
		"metrics_addr", cfg.MetricsAddr,
	).Info("started")

	in, err := newLineReader(os.Stdin)
	if err != nil {
		anEngine.Close(ctx)
		return err
	}
	defer in.Close()

	aShell := &shell{
		db:     anEngine.Database,
		in:     in,
		out:    os.Stdout,
		logger: logger,
	}

	done := make(chan error, 1)
	go func() {
		done <- aShell.loop(ctx)
	}()

	var loopErr error
	select {
	case loopErr = <-done:
	case <-ctx.Done():
		// Print an additional line so the shell prompt starts clean
		fmt.Println()
	}

	// Shut down with a fresh context, ctx may already be cancelled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Sugar().With("error", err).Warn("failed to stop metrics server")
		}
	}

	if err := anEngine.Close(shutdownCtx); err != nil {
		return err
	}

	logger.Info("stopped")

	return loopErr
}

func serveMetrics(logger *zap.Logger, addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar().With("addr", addr, "error", err).Error("metrics server failed")
		}
	}()

	return server
}
