package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore implements ObjectStore on a directory tree.
type LocalStore struct {
	loc Location
}

// NewLocalStore roots a store at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	loc, err := localLocation(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(loc.Bucket, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &LocalStore{loc: loc}, nil
}

func (s *LocalStore) URI(key string) string { return s.loc.URI(key) }

func (s *LocalStore) path(key string) (string, error) {
	p := filepath.Join(s.loc.Bucket, filepath.FromSlash(strings.TrimLeft(key, "/")))
	if !strings.HasPrefix(p, s.loc.Bucket+string(os.PathSeparator)) {
		return "", fmt.Errorf("key %q escapes the store", key)
	}
	return p, nil
}

// Upload copies the file to key.
func (s *LocalStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := copyFile(localPath, dst); err != nil {
		return "", err
	}
	return s.URI(key), nil
}

// Download copies key to localPath.
func (s *LocalStore) Download(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := s.path(key)
	if err != nil {
		return err
	}
	err = copyFile(src, localPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, s.URI(key))
	}
	return err
}

// Exists reports whether key is a file in the store.
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	default:
		return !info.IsDir(), nil
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeLocal(dst, in)
}
