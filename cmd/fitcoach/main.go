// Command fitcoach runs the coaching onboarding service: the orchestrator
// core behind a small JSON HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fitcoach/pkg/classify"
	"fitcoach/pkg/config"
	"fitcoach/pkg/handlers"
	"fitcoach/pkg/llm"
	"fitcoach/pkg/logx"
	"fitcoach/pkg/metrics"
	"fitcoach/pkg/orchestrator"
	"fitcoach/pkg/persistence"
	"fitcoach/pkg/usercontext"
)

const shutdownGrace = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("FITCOACH_CONFIG")
	}

	logger := logx.NewLogger("main")

	if err := run(configPath, logger); err != nil {
		logger.Error("fatal: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *logx.Logger) error {
	if err := config.LoadConfig(configPath); err != nil {
		return logx.Wrap(err, "config load")
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	if err := persistence.Initialize(cfg.Storage.DBPath); err != nil {
		return logx.Wrap(err, "database init")
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			logger.Warn("database close: %v", err)
		}
	}()
	store := persistence.Progress()

	client, err := llm.NewClient(cfg.Model.Provider, cfg.Model.APIKey, cfg.Model.Name, cfg.Model.Host)
	if err != nil {
		return logx.Wrap(err, "model client init")
	}
	logger.Info("model backend: %s (%s)", cfg.Model.Provider, client.GetModelName())

	recorder := metrics.NewRecorder()
	cache := usercontext.NewCache(cfg.Context.TTL)

	orch, err := orchestrator.New(orchestrator.Options{
		Store:                  store,
		Registry:               handlers.NewRegistry(client),
		Cache:                  cache,
		Loader:                 usercontext.NewProgressLoader(store),
		Classifier:             classify.NewKeywordClassifier(),
		ClassifierMemoCapacity: cfg.Classifier.MemoCapacity,
		HistoryTokenBudget:     cfg.Context.HistoryTokenBudget,
		Recorder:               recorder,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           NewServer(orch, store).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
