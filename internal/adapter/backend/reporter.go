// Package backend posts job progress to an external status server.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Reporter sends {jid, progress, message} to the backend URL. Delivery is
// best effort: failures are logged and never reach the caller.
type Reporter struct {
	url        string
	jid        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewReporter creates a Reporter. An empty jid is replaced by a random one.
func NewReporter(url, jid string, timeout time.Duration, logger *slog.Logger) *Reporter {
	if jid == "" {
		jid = uuid.NewString()
	}
	return &Reporter{
		url: url,
		jid: jid,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("jid", jid),
	}
}

// JobID identifies the job in every update.
func (r *Reporter) JobID() string {
	return r.jid
}

type statusUpdate struct {
	JobID    string `json:"jid"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// Report posts one update.
func (r *Reporter) Report(ctx context.Context, percent int, message string) {
	if err := r.post(ctx, statusUpdate{JobID: r.jid, Progress: percent, Message: message}); err != nil {
		r.logger.Warn("status update failed", "progress", percent, "error", err)
		return
	}
	r.logger.Debug("status update sent", "progress", percent, "message", message)
}

func (r *Reporter) post(ctx context.Context, update statusUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend error: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
