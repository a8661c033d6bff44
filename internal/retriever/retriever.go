// Package retriever fetches one product payload from the DPC API with a
// bounded, constant-delay retry budget.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

// Source is the DPC API as seen by the retriever.
type Source interface {
	IsAvailable(ctx context.Context, p domain.Product, t time.Time) bool
	LatestAvailable(ctx context.Context, p domain.Product) (time.Time, error)
	Download(ctx context.Context, p domain.Product, t time.Time, dir string) (string, error)
}

// Workspace is where downloads land; every file written there is tracked for cleanup.
type Workspace interface {
	Dir() string
	Track(paths ...string)
}

// RetryPolicy bounds the attempts of one retrieval. MaxRetry is the number of
// retries after the first attempt; Delay is the constant wait between them.
type RetryPolicy struct {
	MaxRetry int
	Delay    time.Duration
}

// Retrieval is a payload on local disk and the timestamp it was fetched for.
type Retrieval struct {
	Path     string
	DateTime time.Time
}

// Retriever downloads product payloads.
type Retriever struct {
	source  Source
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Retriever. A nil clock means real time.
func New(source Source, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Retriever {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Retriever{source: source, clock: clock, logger: logger, metrics: metrics}
}

// Retrieve fetches p at t into ws. A zero t means the latest published
// timestamp; otherwise t is floored to the product cadence first. Each failed
// attempt is retried after policy.Delay until policy.MaxRetry retries are
// spent, then a *domain.RetrievalError is returned.
func (r *Retriever) Retrieve(ctx context.Context, ws Workspace, p domain.Product, t time.Time, policy RetryPolicy) (Retrieval, error) {
	if !t.IsZero() {
		t = p.Floor(t)
	}
	maxRetry := max(policy.MaxRetry, 0)

	var lastErr error
	attempts := 0
	for {
		attempts++
		res, err := r.attempt(ctx, ws, p, t)
		if err == nil {
			r.metrics.Retrievals.WithLabelValues(p.Code, "success").Inc()
			r.logger.Info("product retrieved", "product", p.Code, "date_time", res.DateTime, "path", res.Path, "attempts", attempts)
			return res, nil
		}
		lastErr = err

		if attempts > maxRetry {
			break
		}
		r.logger.Debug("retrieval attempt failed, retrying",
			"product", p.Code,
			"date_time", t,
			"error", err,
			"delay", policy.Delay,
			"remaining_retries", maxRetry-attempts+1,
		)
		r.metrics.RetrievalRetries.WithLabelValues(p.Code).Inc()
		if err := r.wait(ctx, policy.Delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	r.metrics.Retrievals.WithLabelValues(p.Code, "failure").Inc()
	return Retrieval{}, &domain.RetrievalError{Product: p.Code, DateTime: t, Attempts: attempts, Err: lastErr}
}

// attempt runs resolve, probe, download and unpack once.
func (r *Retriever) attempt(ctx context.Context, ws Workspace, p domain.Product, t time.Time) (Retrieval, error) {
	if err := ctx.Err(); err != nil {
		return Retrieval{}, err
	}

	if t.IsZero() {
		latest, err := r.source.LatestAvailable(ctx, p)
		if err != nil {
			return Retrieval{}, err
		}
		t = latest
	}

	if !r.source.IsAvailable(ctx, p, t) {
		return Retrieval{}, fmt.Errorf("%w: %s at %s", domain.ErrNotAvailable, p.Code, t.Format(time.RFC3339))
	}

	path, err := r.source.Download(ctx, p, t, ws.Dir())
	if err != nil {
		return Retrieval{}, err
	}
	ws.Track(path)

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		path, err = unpack(path, t, ws)
		if err != nil {
			return Retrieval{}, err
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Retrieval{}, fmt.Errorf("%w: downloaded file %s: %v", domain.ErrNotAvailable, path, err)
	}
	if info.Size() == 0 {
		return Retrieval{}, fmt.Errorf("%w: downloaded file %s is empty", domain.ErrNotAvailable, path)
	}
	return Retrieval{Path: path, DateTime: t}, nil
}

// wait blocks for d on the retriever clock, returning early with the context
// error if ctx is cancelled.
func (r *Retriever) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := r.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
