//go:build gcp

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
)

// GCSStore implements ObjectStore on Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	loc    Location
}

// NewGCSStore creates a client using Application Default Credentials.
func NewGCSStore(ctx context.Context, loc Location) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, loc: loc}, nil
}

func (s *GCSStore) URI(key string) string { return s.loc.URI(key) }

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.loc.Bucket).Object(s.loc.Key(key))
}

// Upload streams the file to key.
func (s *GCSStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := s.object(key).NewWriter(ctx)
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", s.URI(key), err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", s.URI(key), err)
	}
	return s.URI(key), nil
}

// Download writes key to localPath.
func (s *GCSStore) Download(ctx context.Context, key, localPath string) error {
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, s.URI(key))
		}
		return fmt.Errorf("gcs get %s: %w", s.URI(key), err)
	}
	defer func() { _ = r.Close() }()
	return writeLocal(localPath, r)
}

// Exists reports whether key is present.
func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("gcs attrs %s: %w", s.URI(key), err)
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
