// Package dpc is the HTTP client for the DPC radar product API.
package dpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

// Endpoint names, also used as metric labels.
const (
	endpointExists   = "existsProduct"
	endpointLatest   = "findLastProductByType"
	endpointDownload = "downloadProduct"
)

var errCircuitOpen = errors.New("circuit breaker open")

// Client queries and downloads products from the DPC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a DPC API client. rps paces outgoing requests; zero
// disables pacing.
func NewClient(baseURL string, timeout time.Duration, rps float64, logger *slog.Logger, metrics *observability.Metrics) *Client {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "dpc",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		metrics: metrics,
	}
}

// IsAvailable reports whether the product is published for t. Any failure
// reads as "not available".
func (c *Client) IsAvailable(ctx context.Context, p domain.Product, t time.Time) bool {
	params := url.Values{
		"type": {p.Code},
		"time": {unixMillis(t)},
	}
	resp, err := c.do(ctx, endpointExists, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(endpointExists)+"?"+params.Encode(), nil)
	})
	if err != nil {
		c.logger.Debug("availability probe failed", "product", p.Code, "date_time", t, "error", err)
		return false
	}
	defer resp.Body.Close()

	var available bool
	if err := json.NewDecoder(resp.Body).Decode(&available); err != nil {
		c.logger.Debug("decode availability response", "product", p.Code, "error", err)
		return false
	}
	return available
}

// LatestAvailable returns the most recent published timestamp of the product.
func (c *Client) LatestAvailable(ctx context.Context, p domain.Product) (time.Time, error) {
	params := url.Values{"type": {p.Code}}
	resp, err := c.do(ctx, endpointLatest, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(endpointLatest)+"?"+params.Encode(), nil)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("latest %s: %w", p.Code, err)
	}
	defer resp.Body.Close()

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("latest %s: decode response: %w: %v", p.Code, domain.ErrRemote, err)
	}
	for _, lp := range body.LastProducts {
		if lp.ProductType == p.Code {
			return time.Unix(lp.Time/1000, 0).UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("latest %s: %w", p.Code, domain.ErrNotAvailable)
}

// Download fetches the payload for t into dir and returns its path. The file
// name is taken from the Content-Disposition header.
func (c *Client) Download(ctx context.Context, p domain.Product, t time.Time, dir string) (string, error) {
	payload, err := json.Marshal(downloadRequest{ProductType: p.Code, ProductDate: unixMillis(t)})
	if err != nil {
		return "", fmt.Errorf("encode download request: %w", err)
	}
	resp, err := c.do(ctx, endpointDownload, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(endpointDownload), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", p.Code, err)
	}
	defer resp.Body.Close()

	name := attachmentFilename(resp.Header.Get("Content-Disposition"))
	if name == "" {
		return "", fmt.Errorf("download %s: %w: no filename in response headers", p.Code, domain.ErrRemote)
	}

	out := filepath.Join(dir, name)
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", out, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("download %s: write %s: %w: %v", p.Code, out, domain.ErrRemote, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", out, err)
	}
	c.logger.Debug("product downloaded", "product", p.Code, "date_time", t, "path", out)
	return out, nil
}

// do paces, times, and runs one request through the circuit breaker. Any
// non-200 response is an ErrRemote; on success the caller owns the body.
func (c *Client) do(ctx context.Context, endpoint string, build func() (*http.Request, error)) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemote, err)
	}

	start := time.Now()
	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
		return resp, nil
	})
	c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w: %v", domain.ErrRemote, errCircuitOpen, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrRemote, endpoint, err)
	}
	c.metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type from circuit breaker", domain.ErrRemote)
	}
	return resp, nil
}

func (c *Client) endpoint(name string) string {
	return c.baseURL + "/" + name
}

func unixMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// attachmentFilename extracts a bare file name from a Content-Disposition value.
func attachmentFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := filepath.Base(params["filename"])
	if name == "." || name == "/" || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// DPC API payloads.

type latestResponse struct {
	LastProducts []lastProduct `json:"lastProducts"`
}

type lastProduct struct {
	ProductType string `json:"productType"`
	Time        int64  `json:"time"` // unix ms
}

type downloadRequest struct {
	ProductType string `json:"productType"`
	ProductDate string `json:"productDate"` // unix ms
}
