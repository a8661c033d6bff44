package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

const (
	redisKeyPrefix = "dpc-retriever:lock:"
	// defaultLease bounds how long a crashed holder can block others.
	defaultLease = 5 * time.Minute
)

// releaseScript deletes the lock only if it still carries our token.
// KEYS[1] = lock key, ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisMutex implements PartitionedMutex with SET NX PX.
type RedisMutex struct {
	client  redis.UniversalClient
	timeout time.Duration
	lease   time.Duration
	poll    time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRedisMutex creates a RedisMutex. A zero timeout waits as long as ctx allows.
func NewRedisMutex(client redis.UniversalClient, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *RedisMutex {
	return &RedisMutex{
		client:  client,
		timeout: timeout,
		lease:   defaultLease,
		poll:    defaultPollInterval,
		logger:  logger,
		metrics: metrics,
	}
}

// Close closes the underlying client.
func (m *RedisMutex) Close() error {
	return m.client.Close()
}

func (m *RedisMutex) Acquire(ctx context.Context, key string) (Guard, error) {
	rkey := redisKeyPrefix + sanitize(key)
	token := uuid.NewString()

	actx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	defer func() { m.metrics.LockWait.Observe(time.Since(start).Seconds()) }()

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		ok, err := m.client.SetNX(actx, rkey, token, m.lease).Result()
		if err != nil && actx.Err() == nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			m.logger.Debug("lock acquired", "key", key, "backend", "redis", "wait", time.Since(start))
			return &redisGuard{client: m.client, key: rkey, token: token}, nil
		}

		select {
		case <-actx.Done():
			return nil, timeoutError(ctx, key, m.timeout, actx.Err())
		case <-ticker.C:
		}
	}
}

type redisGuard struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Release uses a fresh context so a cancelled caller still frees the lock.
func (g *redisGuard) Release() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, g.client, []string{g.key}, g.token).Err(); err != nil {
		return fmt.Errorf("redis unlock %s: %w", g.key, err)
	}
	return nil
}
