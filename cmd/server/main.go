package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/noesislabs/noesis/internal/config"
	"github.com/noesislabs/noesis/internal/core"
	"github.com/noesislabs/noesis/internal/core/contradiction"
	"github.com/noesislabs/noesis/internal/core/distill"
	"github.com/noesislabs/noesis/internal/llm"
	"github.com/noesislabs/noesis/internal/resilience"
	"github.com/noesislabs/noesis/internal/server"
	"github.com/noesislabs/noesis/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.toml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Warn("config file not loaded, using defaults",
			zap.String("path", configPath), zap.Error(err))
		cfg = config.Default()
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("failed to create database directory", zap.Error(err))
		}
	}
	st, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		logger.Fatal("failed to initialize llm client", zap.Error(err))
	}
	defer client.Close()

	policy := resilience.Policy{
		Timeout:    cfg.LLMTimeout(),
		MaxRetries: cfg.Resilience.MaxRetries,
		BaseDelay:  cfg.LLMBaseDelay(),
		Logger:     logger,
	}
	curator := core.NewCurator(st,
		distill.NewDistiller(client, policy, cfg.Prompts.DistillSystem, logger),
		contradiction.NewFinder(client, policy, cfg.Prompts.Contradiction, logger),
		logger)

	srv := server.New(st, curator, server.Options{
		Auth:            server.StaticTokens(cfg.Auth.Tokens),
		RateLimitMax:    cfg.RateLimit.ContradictionMaxRequests,
		RateLimitWindow: cfg.ContradictionWindow(),
		Mode:            cfg.Server.Mode,
	}, logger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
