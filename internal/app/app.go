// Package app wires the pipeline stages from configuration.
package app

import (
	"errors"
	"io"
	"log/slog"

	"github.com/SaferPlaces2023/dpc-retriever/internal/adapter/dpc"
	kafkaadapter "github.com/SaferPlaces2023/dpc-retriever/internal/adapter/kafka"
	"github.com/SaferPlaces2023/dpc-retriever/internal/archive"
	"github.com/SaferPlaces2023/dpc-retriever/internal/catalog"
	"github.com/SaferPlaces2023/dpc-retriever/internal/config"
	"github.com/SaferPlaces2023/dpc-retriever/internal/geo"
	"github.com/SaferPlaces2023/dpc-retriever/internal/lock"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
	"github.com/SaferPlaces2023/dpc-retriever/internal/pipeline"
	"github.com/SaferPlaces2023/dpc-retriever/internal/retriever"
	"github.com/SaferPlaces2023/dpc-retriever/internal/storage"
)

// App holds the wired pipeline and the resources to release on exit.
type App struct {
	Pipeline *pipeline.Pipeline
	Source   *dpc.CachedClient

	closers []io.Closer
	logger  *slog.Logger
}

// New builds the DPC client, the stages and the pipeline.
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{logger: logger}

	client := dpc.NewClient(cfg.DPCBaseURL, cfg.DPCTimeout, cfg.DPCRateLimit, logger, metrics)
	a.Source = dpc.NewCachedClient(client, cfg.DPCCacheSize, metrics)

	mutex, err := lock.New(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	if c, ok := mutex.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	var notifier archive.Notifier
	if cfg.NotificationsEnabled() {
		n := kafkaadapter.NewNotifier(cfg, logger)
		a.closers = append(a.closers, n)
		notifier = n
		logger.Info("catalog notifications enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	archiver := archive.NewService(nil,
		storage.Options{Region: cfg.S3Region, Endpoint: cfg.S3Endpoint},
		catalog.NewRegistrar(mutex, logger, metrics),
		notifier, logger, metrics,
	)
	a.Pipeline = pipeline.New(
		retriever.New(a.Source, nil, logger, metrics),
		geo.NewProcessor(logger, metrics),
		archiver,
		pipeline.Options{ScratchDir: cfg.ScratchDir, MaxAge: cfg.ProcessMaxAge},
		logger, metrics,
	)
	return a, nil
}

// Close releases the lock backend and the notifier.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
