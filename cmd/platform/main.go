// Package main boots the storefront customer-service reply engine and serves
// its HTTP API.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/easeaico/storefront-cs/internal/bootstrap"
	"github.com/easeaico/storefront-cs/internal/config"
	"github.com/easeaico/storefront-cs/internal/handler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	slog.Info("slog logger initialized", "level", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	slog.Info("configuration loaded",
		"data_dir", cfg.DataDir,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"knowledge_first", cfg.KnowledgeFirst,
		"knowledge_threshold", cfg.KnowledgeThreshold,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize engine: %v", err)
	}
	defer rt.Close()

	scheduler, err := startJobs(ctx, rt.Engine, cfg)
	if err != nil {
		log.Fatalf("failed to schedule jobs: %v", err)
	}
	defer func() { <-scheduler.Stop().Done() }()

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	handler.New(rt.Engine, rt.Knowledge).RegisterRoutes(r)

	srv := newServer(ctx, cfg, r)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatalf("http server failed: %v", err)
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err.Error())
	}
	slog.Info("shutdown complete")
}

// newServer builds the HTTP server. Request contexts derive from ctx so a
// shutdown cancels in-flight model calls.
func newServer(ctx context.Context, cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelDebug
	}
	return level
}
