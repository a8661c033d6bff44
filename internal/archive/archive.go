// Package archive uploads processed artifacts into their hive partition and
// registers them in the partition catalog.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/SaferPlaces2023/dpc-retriever/internal/catalog"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
	"github.com/SaferPlaces2023/dpc-retriever/internal/storage"
)

// mandatorySidecars must accompany a stored .shp. A shapefile without .prj
// has no CRS.
var mandatorySidecars = map[string]bool{".shx": true, ".dbf": true, ".prj": true}

// Notifier announces registered catalog records.
type Notifier interface {
	Notify(ctx context.Context, rec domain.CatalogRecord) error
}

// Opener resolves a bucket URI to a store.
type Opener func(ctx context.Context, bucketURI string, opts storage.Options) (storage.ObjectStore, error)

// StoreRequest describes one artifact to archive.
type StoreRequest struct {
	Product         domain.Product
	Path            string
	DateTime        time.Time
	Bucket          string
	RegisterCatalog bool
}

// Service stores artifacts. Opened buckets are reused across calls.
type Service struct {
	open      Opener
	opts      storage.Options
	registrar *catalog.Registrar
	notifier  Notifier
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu     sync.Mutex
	stores map[string]storage.ObjectStore
}

// NewService creates a Service. A nil opener means storage.Open; a nil
// notifier disables notifications.
func NewService(open Opener, opts storage.Options, registrar *catalog.Registrar, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if open == nil {
		open = storage.Open
	}
	return &Service{
		open:      open,
		opts:      opts,
		registrar: registrar,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
		stores:    make(map[string]storage.ObjectStore),
	}
}

// Store uploads req.Path (with its sidecars) to data/<hive>/<filename> and,
// when asked, appends a catalog record. It returns the URI of the payload.
// Upload failures are *domain.StorageError; catalog failures are
// *domain.CatalogError and leave the payload stored.
func (s *Service) Store(ctx context.Context, ws catalog.Workspace, req StoreRequest) (string, error) {
	store, err := s.bucket(ctx, req.Bucket)
	if err != nil {
		return "", &domain.StorageError{Path: req.Path, URI: req.Bucket, Err: err}
	}

	uri, err := s.upload(ctx, store, req)
	if err != nil {
		return "", err
	}
	if !req.RegisterCatalog {
		return uri, nil
	}

	rec := domain.CatalogRecord{Product: req.Product.Code, DateTime: req.DateTime.UTC(), URI: uri}
	if err := s.registrar.Append(ctx, store, ws, rec); err != nil {
		return uri, err
	}
	s.notify(ctx, rec)
	return uri, nil
}

// Upload puts a single file at <bucket>/<filename>, outside the hive layout.
func (s *Service) Upload(ctx context.Context, bucketURI, localPath string) (string, error) {
	store, err := s.bucket(ctx, bucketURI)
	if err != nil {
		return "", &domain.StorageError{Path: localPath, URI: bucketURI, Err: err}
	}
	key := filepath.Base(localPath)
	uri, err := store.Upload(ctx, localPath, key)
	if err != nil {
		s.metrics.Uploads.WithLabelValues("error").Inc()
		return "", &domain.StorageError{Path: localPath, URI: store.URI(key), Err: err}
	}
	s.metrics.Uploads.WithLabelValues("success").Inc()
	s.logger.Info("file uploaded", "path", localPath, "uri", uri)
	return uri, nil
}

func (s *Service) bucket(ctx context.Context, uri string) (storage.ObjectStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.stores[uri]; ok {
		return store, nil
	}
	store, err := s.open(ctx, uri, s.opts)
	if err != nil {
		return nil, err
	}
	s.stores[uri] = store
	return store, nil
}

// upload attempts every file even after a failure and reports the first one.
func (s *Service) upload(ctx context.Context, store storage.ObjectStore, req StoreRequest) (string, error) {
	files := append([]string{req.Path}, domain.Sidecars(req.Path)...)

	var (
		payloadURI string
		first      *domain.StorageError
		errs       []error
	)
	for i, f := range files {
		key := domain.DataKey(req.DateTime, req.Product.Code, f)
		if i > 0 {
			if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) && !mandatorySidecars[strings.ToLower(filepath.Ext(f))] {
				s.logger.Debug("optional sidecar absent", "path", f)
				continue
			}
		}

		uri, err := store.Upload(ctx, f, key)
		if err != nil {
			s.metrics.Uploads.WithLabelValues("error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			if first == nil {
				first = &domain.StorageError{Path: f, URI: store.URI(key)}
			}
			continue
		}
		s.metrics.Uploads.WithLabelValues("success").Inc()
		if i == 0 {
			payloadURI = uri
		}
	}

	if first != nil {
		first.Err = errors.Join(errs...)
		return "", first
	}
	s.logger.Info("artifact stored", "product", req.Product.Code, "date_time", req.DateTime, "uri", payloadURI, "files", len(files))
	return payloadURI, nil
}

func (s *Service) notify(ctx context.Context, rec domain.CatalogRecord) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, rec); err != nil {
		s.logger.Warn("catalog notification failed", "uri", rec.URI, "error", err)
	}
}
