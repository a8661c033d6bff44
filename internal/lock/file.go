package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

// FileMutex locks one file per key under dir with flock(2).
type FileMutex struct {
	dir     string
	timeout time.Duration
	poll    time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFileMutex creates a FileMutex. A zero timeout waits as long as ctx allows.
func NewFileMutex(dir string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *FileMutex {
	return &FileMutex{dir: dir, timeout: timeout, poll: defaultPollInterval, logger: logger, metrics: metrics}
}

func (m *FileMutex) Acquire(ctx context.Context, key string) (Guard, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(filepath.Join(m.dir, sanitize(key)+".lock"))

	actx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	ok, err := fl.TryLockContext(actx, m.poll)
	m.metrics.LockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, timeoutError(ctx, key, m.timeout, err)
	}
	if !ok {
		return nil, timeoutError(ctx, key, m.timeout, context.DeadlineExceeded)
	}

	m.logger.Debug("lock acquired", "key", key, "backend", "file", "wait", time.Since(start))
	return &fileGuard{fl: fl}, nil
}

type fileGuard struct {
	fl *flock.Flock
}

func (g *fileGuard) Release() error {
	return g.fl.Unlock()
}
