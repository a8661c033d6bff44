// Package lock serializes read-modify-write cycles on shared objects, one
// mutex per key. The file backend covers processes on one host; the redis
// backend covers producers on different hosts.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SaferPlaces2023/dpc-retriever/internal/config"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

const defaultPollInterval = 100 * time.Millisecond

// Guard is a held lock.
type Guard interface {
	Release() error
}

// PartitionedMutex hands out one exclusive lock per key.
type PartitionedMutex interface {
	// Acquire blocks until the lock for key is held, ctx is done, or the
	// backend timeout elapses (ErrLockTimeout).
	Acquire(ctx context.Context, key string) (Guard, error)
}

// New builds the mutex selected by cfg.LockBackend. Backends holding a
// connection also implement io.Closer.
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (PartitionedMutex, error) {
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisMutex(client, cfg.LockTimeout, logger, metrics), nil
	case config.LockBackendFile, "":
		return NewFileMutex(cfg.LockDir, cfg.LockTimeout, logger, metrics), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

// sanitize turns a slash-separated object key into a flat lock name.
func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == '=':
			return r
		default:
			return '_'
		}
	}, key)
}

// withTimeout bounds ctx by timeout when positive.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// timeoutError maps an expired acquisition deadline to ErrLockTimeout while
// keeping caller cancellation as is.
func timeoutError(parent context.Context, key string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s not acquired within %s", domain.ErrLockTimeout, key, timeout)
	}
	return err
}
