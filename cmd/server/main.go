package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admissions/internal/app"
	"admissions/internal/platform/config"
	"admissions/internal/platform/httpserver"
	"admissions/internal/platform/logger"
	"admissions/pkg/requestcontext"
)

const shutdownTimeout = 30 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}

	if a.DB == nil && cfg.Environment != "production" {
		if _, err := a.SeedDemo(ctx, requestcontext.Now(ctx), app.SeedOptions{}); err != nil {
			return err
		}
	}

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if a.Relay == nil {
			return
		}
		if err := a.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("outbox relay stopped", "error", err)
		}
	}()

	srv := httpserver.New(cfg.Addr, newRouter(a))
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting admissions server",
			"addr", cfg.Addr,
			"environment", cfg.Environment,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			stop()
			<-relayDone
			_ = a.Close(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	<-relayDone
	return a.Close(shutdownCtx)
}
