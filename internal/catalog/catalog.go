// Package catalog maintains the per-partition JSON-lines index of stored
// payloads.
package catalog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/lock"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
	"github.com/SaferPlaces2023/dpc-retriever/internal/storage"
)

// Workspace hands out local paths for the catalog copy being edited.
type Workspace interface {
	TempPath(prefix, suffix string) string
}

// Registrar appends records to partition catalogs. Appends to the same
// catalog are serialized through the partition mutex.
type Registrar struct {
	mutex   lock.PartitionedMutex
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRegistrar creates a Registrar.
func NewRegistrar(mutex lock.PartitionedMutex, logger *slog.Logger, metrics *observability.Metrics) *Registrar {
	return &Registrar{mutex: mutex, logger: logger, metrics: metrics}
}

// Append adds rec to the catalog of its partition in store. Failures are
// *domain.CatalogError; a lock that cannot be taken in time also matches
// domain.ErrLockTimeout.
func (r *Registrar) Append(ctx context.Context, store storage.ObjectStore, ws Workspace, rec domain.CatalogRecord) error {
	key := domain.CatalogKey(rec.DateTime, rec.Product)
	uri := store.URI(key)
	if err := r.append(ctx, store, ws, key, rec); err != nil {
		r.metrics.CatalogAppends.WithLabelValues("error").Inc()
		return &domain.CatalogError{URI: uri, Err: err}
	}
	r.metrics.CatalogAppends.WithLabelValues("success").Inc()
	r.logger.Info("catalog record appended", "uri", uri, "product", rec.Product, "date_time", rec.DateTime)
	return nil
}

func (r *Registrar) append(ctx context.Context, store storage.ObjectStore, ws Workspace, key string, rec domain.CatalogRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	guard, err := r.mutex.Acquire(ctx, store.URI(key))
	if err != nil {
		return err
	}
	defer func() {
		if err := guard.Release(); err != nil {
			r.logger.Error("release catalog lock", "uri", store.URI(key), "error", err)
		}
	}()

	local := ws.TempPath("catalog-", ".json")
	defer func() {
		if err := os.Remove(local); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("remove local catalog copy", "path", local, "error", err)
		}
	}()

	var current []byte
	switch err := store.Download(ctx, key, local); {
	case errors.Is(err, storage.ErrObjectNotFound):
	case err != nil:
		return fmt.Errorf("fetch catalog: %w", err)
	default:
		if current, err = os.ReadFile(local); err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
	}

	if len(current) > 0 && current[len(current)-1] != '\n' {
		current = append(current, '\n')
	}
	current = append(current, line...)
	current = append(current, '\n')
	if err := os.WriteFile(local, current, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}

	if _, err := store.Upload(ctx, local, key); err != nil {
		return fmt.Errorf("upload catalog: %w", err)
	}
	return nil
}

// Read returns the records of the partition holding (t, product), in append
// order. A missing catalog has no records.
func Read(ctx context.Context, store storage.ObjectStore, ws Workspace, t time.Time, product string) ([]domain.CatalogRecord, error) {
	local := ws.TempPath("catalog-", ".json")
	defer func() { _ = os.Remove(local) }()

	key := domain.CatalogKey(t, product)
	err := store.Download(ctx, key, local)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.CatalogError{URI: store.URI(key), Err: err}
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return nil, &domain.CatalogError{URI: store.URI(key), Err: err}
	}

	var records []domain.CatalogRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec domain.CatalogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, &domain.CatalogError{URI: store.URI(key), Err: fmt.Errorf("decode line: %w", err)}
		}
		records = append(records, rec)
	}
	return records, sc.Err()
}
