// Package scratch tracks the temporary files of one invocation so they can be
// removed on every exit path.
package scratch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

// DirPrefix names every per-invocation scratch directory.
const DirPrefix = "dpc-retriever-"

// Registry owns a scratch directory and the extra files registered with it.
// It is safe for concurrent use.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	files  map[string]struct{}
	closed bool
}

// New creates a fresh scratch directory under base.
func New(base string, logger *slog.Logger) (*Registry, error) {
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, DirPrefix+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Registry{
		dir:    dir,
		logger: logger,
		files:  make(map[string]struct{}),
	}, nil
}

// Dir is the scratch directory. Everything under it is removed by Close.
func (r *Registry) Dir() string {
	return r.dir
}

// Track registers files living outside the scratch directory for removal.
// Shapefiles bring their sidecars along.
func (r *Registry) Track(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range paths {
		if p == "" {
			continue
		}
		r.files[p] = struct{}{}
		for _, s := range domain.Sidecars(p) {
			r.files[s] = struct{}{}
		}
	}
}

// TempPath returns a unique path inside the scratch directory.
func (r *Registry) TempPath(prefix, suffix string) string {
	return filepath.Join(r.dir, prefix+uuid.NewString()+suffix)
}

// Close removes the tracked files and the scratch directory. Failures are
// logged, never returned. Close is idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	removed := 0
	for p := range r.files {
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Error("remove temporary file", "path", p, "error", err)
			}
			continue
		}
		removed++
	}
	r.files = make(map[string]struct{})

	if err := os.RemoveAll(r.dir); err != nil {
		r.logger.Error("remove scratch dir", "path", r.dir, "error", err)
	}
	r.logger.Debug("scratch cleaned", "dir", r.dir, "tracked_removed", removed)
}

// Sweep removes scratch directories under base older than maxAge, left
// behind by invocations that did not exit cleanly. It returns how many were
// removed.
func Sweep(base string, maxAge time.Duration, logger *slog.Logger) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0, fmt.Errorf("read scratch base %s: %w", base, err)
	}
	cutoff := domain.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), DirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(base, e.Name())
		if err := os.RemoveAll(p); err != nil {
			logger.Error("sweep scratch dir", "path", p, "error", err)
			continue
		}
		removed++
	}
	logger.Debug("scratch sweep done", "base", base, "removed", removed)
	return removed, nil
}
