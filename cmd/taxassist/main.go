// Command taxassist serves the tax assistant chat API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/leofalp/taxassist/core/orchestrator"
	"github.com/leofalp/taxassist/internal/api"
	"github.com/leofalp/taxassist/internal/config"
	"github.com/leofalp/taxassist/providers/observability/slogobs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "taxassist:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML configuration file (environment only when empty)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before configuration")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logObserver := newLogObserver(cfg.Log)
	logger := logObserver.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := initTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()
	observer := tracing.observer(logObserver)

	generator, err := buildGenerator(cfg, observer)
	if err != nil {
		return err
	}

	store, err := buildStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}

	locker, err := buildLocker(ctx, cfg.Lock)
	if err != nil {
		_ = store.Close()
		return err
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Generator: generator,
		Store:     store,
		Knowledge: buildKnowledge(cfg.Knowledge),
		Search:    buildSearch(cfg.WebSearch),
		Locker:    locker,
	}, orchestratorOptions(cfg, observer)...)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := orch.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	apiOpts := []api.Option{api.WithLogger(logger), api.WithAuthKey(cfg.Auth.Key)}
	if cfg.RateLimit.Enabled {
		apiOpts = append(apiOpts, api.WithRateLimit(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize))
	}
	if cfg.Auth.Key == "" {
		logger.Warn("API authentication disabled, set ENDPOINT_AUTH_KEY to enable it")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.New(orch, apiOpts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", server.Addr,
			"providers", len(cfg.Providers),
			"store", cfg.Store.Driver,
			"lock", cfg.Lock.Driver,
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogObserver(cfg config.LogConfig) *slogobs.Observer {
	var opts []slogobs.Option
	if cfg.Format != "" {
		opts = append(opts, slogobs.WithFormat(slogobs.ParseFormat(cfg.Format)))
	}
	if cfg.Level != "" {
		opts = append(opts, slogobs.WithLevel(slogobs.ParseLogLevel(cfg.Level)))
	}
	return slogobs.New(opts...)
}
