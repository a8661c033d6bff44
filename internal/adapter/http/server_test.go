package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/SaferPlaces2023/dpc-retriever/internal/adapter/http"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/pipeline"
)

const testToken = "s3cret"

var lastSRI = time.Date(2025, 6, 30, 10, 55, 0, 0, time.UTC)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockRunner struct {
	requests []pipeline.RangeRequest
	result   domain.Result
}

func (m *mockRunner) RunRange(_ context.Context, req pipeline.RangeRequest, _ pipeline.Reporter) domain.Result {
	m.requests = append(m.requests, req)
	return m.result
}

type mockLatest struct{}

func (mockLatest) LatestAvailable(_ context.Context, p domain.Product) (time.Time, error) {
	if p.Code == "SRI" {
		return lastSRI, nil
	}
	return time.Time{}, domain.ErrNotAvailable
}

func newTestServer(readyErr error, runner *mockRunner) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, runner, mockLatest{}, testToken, logger)
}

func serve(srv *httpadapter.Server, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(nil, &mockRunner{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(nil, &mockRunner{}), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(fmt.Errorf("scratch dir not writable"), &mockRunner{}), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(nil, &mockRunner{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestProducts(t *testing.T) {
	rec := serve(newTestServer(nil, &mockRunner{}), http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []domain.ProductInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Len(t, infos, len(domain.Products()))
	for _, info := range infos {
		assert.Empty(t, info.Description)
		if info.Code == "SRI" {
			require.NotNil(t, info.LastAvailable)
			assert.True(t, lastSRI.Equal(*info.LastAvailable))
		} else {
			assert.Nil(t, info.LastAvailable, info.Code)
		}
	}
}

func TestProduct(t *testing.T) {
	srv := newTestServer(nil, &mockRunner{})

	rec := serve(srv, http.MethodGet, "/products/SRI", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info domain.ProductInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "SRI", info.Code)
	assert.NotEmpty(t, info.Description)

	assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/products/NOPE", "").Code)
}

func TestExecute(t *testing.T) {
	runner := &mockRunner{result: domain.Result{Status: domain.StatusOK, Message: "3 band(s) of SRI composed"}}
	srv := newTestServer(nil, runner)

	rec := serve(srv, http.MethodPost, "/processes/dpc-retriever/execution", `{
		"token": "s3cret",
		"product": "SRI",
		"lat_range": [45.15, 45.6],
		"long_range": [12, 12.7],
		"time_range": ["2025-06-30T10:55:00", null],
		"bucket_destination": "s3://bucket/out"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, domain.StatusOK, res.Status)

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, "SRI", req.Product)
	assert.True(t, req.Start.Equal(lastSRI))
	assert.True(t, req.End.IsZero())
	assert.Equal(t, "s3://bucket/out", req.Bucket)
	require.NotNil(t, req.BBox)
	assert.Equal(t, [4]float64{12, 45.15, 12.7, 45.6}, req.BBox.Values())
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     domain.Result
		wantCode   int
		wantStatus domain.Status
		wantRun    bool
	}{
		{
			name:       "wrong token",
			body:       `{"token":"nope","product":"SRI","time_range":["2025-06-30T10:55:00"]}`,
			wantCode:   http.StatusForbidden,
			wantStatus: domain.StatusDenied,
		},
		{
			name:       "malformed body without token",
			body:       `{"token":`,
			wantCode:   http.StatusForbidden,
			wantStatus: domain.StatusDenied,
		},
		{
			name:       "wrong token with invalid fields",
			body:       `{"token":"nope","product":5,"lat_range":[45,95]}`,
			wantCode:   http.StatusForbidden,
			wantStatus: domain.StatusDenied,
		},
		{
			name:       "valid token with mistyped field",
			body:       `{"token":"s3cret","product":5,"time_range":["2025-06-30T10:55:00"]}`,
			wantCode:   http.StatusBadRequest,
			wantStatus: domain.StatusInvalid,
		},
		{
			name:       "latitude out of range",
			body:       `{"token":"s3cret","product":"SRI","lat_range":[45,95],"long_range":[12,13],"time_range":["2025-06-30T10:55:00"]}`,
			wantCode:   http.StatusBadRequest,
			wantStatus: domain.StatusInvalid,
		},
		{
			name:       "lat range without long range",
			body:       `{"token":"s3cret","product":"SRI","lat_range":[45,46],"time_range":["2025-06-30T10:55:00"]}`,
			wantCode:   http.StatusBadRequest,
			wantStatus: domain.StatusInvalid,
		},
		{
			name:       "inverted longitude",
			body:       `{"token":"s3cret","product":"SRI","lat_range":[45,46],"long_range":[13,12],"time_range":["2025-06-30T10:55:00"]}`,
			wantCode:   http.StatusBadRequest,
			wantStatus: domain.StatusInvalid,
		},
		{
			name:       "missing time range",
			body:       `{"token":"s3cret","product":"SRI"}`,
			wantCode:   http.StatusBadRequest,
			wantStatus: domain.StatusInvalid,
		},
		{
			name:       "unparseable start",
			body:       `{"token":"s3cret","product":"SRI","time_range":["yesterday"]}`,
			wantCode:   http.StatusBadRequest,
			wantStatus: domain.StatusInvalid,
		},
		{
			name:       "pipeline error",
			body:       `{"token":"s3cret","product":"SRI","time_range":["2025-06-30T10:55:00"]}`,
			result:     domain.Fail(errors.New("retrieve SRI: failed after 1 attempt(s)")),
			wantCode:   http.StatusInternalServerError,
			wantStatus: domain.StatusError,
			wantRun:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{result: tt.result}
			rec := serve(newTestServer(nil, runner), http.MethodPost, "/processes/dpc-retriever/execution", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			var res domain.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.NotEmpty(t, res.Message)
			assert.Equal(t, tt.wantRun, len(runner.requests) == 1)
		})
	}
}

func TestExecute_EmptyTokenDeniesEverything(t *testing.T) {
	runner := &mockRunner{}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, runner, mockLatest{}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := serve(srv, http.MethodPost, "/processes/dpc-retriever/execution", `{"token":"","product":"SRI","time_range":["2025-06-30T10:55:00"]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, runner.requests)
}
