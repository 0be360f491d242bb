// finsight-server exposes the query runtime over HTTP: a worker pool runs
// queries concurrently, an optional Postgres archive keeps finished runs.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/finsight-ai/finsight/pkg/agent"
	"github.com/finsight-ai/finsight/pkg/api"
	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/history"
	"github.com/finsight-ai/finsight/pkg/llm"
	"github.com/finsight-ai/finsight/pkg/queue"
	"github.com/finsight-ai/finsight/pkg/ticker"
	"github.com/finsight-ai/finsight/pkg/tools"
	"github.com/finsight-ai/finsight/pkg/tools/fin"
)

func main() {
	configPath := flag.String("config", "finsight.yaml", "path to the configuration file")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if cfg.LLM.APIKey == "" {
		logger.Error("No LLM API key configured", "provider", cfg.LLM.Provider)
		os.Exit(1)
	}

	client, err := llm.New(llm.Provider(cfg.LLM.Provider), llm.Options{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		logger.Error("Failed to create LLM client", "error", err)
		os.Exit(1)
	}

	registry, err := tools.NewRegistry(fin.FromEnv(logger)...)
	if err != nil {
		logger.Error("Failed to build tool registry", "error", err)
		os.Exit(1)
	}
	logger.Info("Tool registry ready", "tools", len(registry.Names()))

	pipeline, err := agent.NewPipeline(agent.Dependencies{
		LLM:       client,
		Registry:  registry,
		Extractor: ticker.NewCatalogExtractor(),
		Engine:    cfg.Engine,
		Logger:    logger,
		Observer:  agent.NewMetricsObserver(),
	})
	if err != nil {
		logger.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var (
		store    *history.Store
		poolOpts []queue.Option
	)
	if cfg.History.DatabaseURL != "" {
		store, err = history.Open(ctx, cfg.History.DatabaseURL, logger)
		if err != nil {
			logger.Error("Failed to open history store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Error closing history store", "error", err)
			}
		}()
		poolOpts = append(poolOpts, queue.WithArchiver(store))
	} else {
		logger.Info("DATABASE_URL not set, history archive disabled")
	}

	pool := queue.NewPool(cfg.Queue, pipeline, logger, poolOpts...)
	pool.Start(ctx)

	server := api.NewServer(pool, store, logger)
	httpServer := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.API.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("finsight-server started", "workers", cfg.Queue.WorkerCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
	}

	// Stop taking requests first, then drain the pool.
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	pool.Stop()
	logger.Info("Shutdown complete")
}
