// Command dpc-server serves the dpc-retriever process endpoint and the
// product listing over HTTP.
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

	httpadapter "github.com/SaferPlaces2023/dpc-retriever/internal/adapter/http"
	"github.com/SaferPlaces2023/dpc-retriever/internal/app"
	"github.com/SaferPlaces2023/dpc-retriever/internal/config"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
	"github.com/SaferPlaces2023/dpc-retriever/internal/scratch"
)

// Scratch directories older than this are left over from crashed runs.
const (
	sweepInterval = time.Hour
	sweepMaxAge   = 6 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	a, err := app.New(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	if cfg.APIToken == "" {
		logger.Warn("INT_API_TOKEN is not set, every process execution will be denied")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, a.Pipeline, a.Pipeline, a.Source, cfg.APIToken, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Sweep stale scratch directories.
	go sweep(ctx, cfg.ScratchDir, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := a.Close(); err != nil {
		logger.Error("resource close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func sweep(ctx context.Context, dir string, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		if _, err := scratch.Sweep(dir, sweepMaxAge, logger); err != nil {
			logger.Warn("scratch sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
