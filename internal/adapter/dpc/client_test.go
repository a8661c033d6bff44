package dpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var testDateTime = time.Date(2025, 6, 30, 10, 55, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, 0, testLogger(), observability.NewMetricsForTesting())
}

func sri(t *testing.T) domain.Product {
	t.Helper()
	p, ok := domain.LookupProduct("SRI")
	require.True(t, ok)
	return p
}

func TestClient_IsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/existsProduct", r.URL.Path)
		assert.Equal(t, "SRI", r.URL.Query().Get("type"))
		assert.Equal(t, "1751280900000", r.URL.Query().Get("time"))
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte("true"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	assert.True(t, c.IsAvailable(context.Background(), sri(t), testDateTime))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.UpstreamRequests.WithLabelValues(endpointExists, "success")))
}

func TestClient_IsAvailable_FailuresReadAsFalse(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"false body": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("false"))
		},
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"garbage body": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			assert.False(t, testClient(srv.URL).IsAvailable(context.Background(), sri(t), testDateTime))
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		assert.False(t, testClient(srv.URL).IsAvailable(context.Background(), sri(t), testDateTime))
	})
}

func TestClient_LatestAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/findLastProductByType", r.URL.Path)
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(latestResponse{LastProducts: []lastProduct{
			{ProductType: "VMI", Time: 1751280000000},
			{ProductType: "SRI", Time: 1751280900123},
		}}))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).LatestAvailable(context.Background(), sri(t))
	require.NoError(t, err)
	assert.Equal(t, testDateTime, got)
}

func TestClient_LatestAvailable_Errors(t *testing.T) {
	t.Run("no entry for product", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"lastProducts":[{"productType":"VMI","time":1751280000000}]}`))
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).LatestAvailable(context.Background(), sri(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotAvailable)
	})

	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).LatestAvailable(context.Background(), sri(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRemote)
		assert.Contains(t, err.Error(), "502")
	})
}

func TestClient_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/downloadProduct", r.URL.Path)

		var req downloadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, downloadRequest{ProductType: "SRI", ProductDate: "1751280900000"}, req)

		w.Header().Set("Content-Disposition", `attachment; filename="SRI_30-06-2025-10-55.tif"`)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path, err := testClient(srv.URL).Download(context.Background(), sri(t), testDateTime, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "SRI_30-06-2025-10-55.tif"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestClient_Download_MissingFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Download(context.Background(), sri(t), testDateTime, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemote)
}

func TestClient_CircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for range 10 {
		_, err := c.LatestAvailable(context.Background(), sri(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRemote)
	}
	// gobreaker trips after more than 5 consecutive failures.
	assert.Equal(t, int32(6), calls.Load())

	_, err := c.LatestAvailable(context.Background(), sri(t))
	assert.ErrorIs(t, err, errCircuitOpen)
}

func TestAttachmentFilename(t *testing.T) {
	assert.Equal(t, "a.zip", attachmentFilename(`attachment; filename="a.zip"`))
	assert.Equal(t, "evil.tif", attachmentFilename(`attachment; filename="../../evil.tif"`))
	assert.Empty(t, attachmentFilename(""))
	assert.Empty(t, attachmentFilename("attachment"))
}
