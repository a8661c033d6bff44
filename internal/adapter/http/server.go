package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/pipeline"
)

// processTimeout bounds one process execution.
const processTimeout = 10 * time.Minute

// Runner executes range requests.
type Runner interface {
	RunRange(ctx context.Context, req pipeline.RangeRequest, reporter pipeline.Reporter) domain.Result
}

// LatestSource resolves the last published timestamp of a product.
type LatestSource interface {
	LatestAvailable(ctx context.Context, p domain.Product) (time.Time, error)
}

// Server exposes the process endpoint, the product listing, and health,
// readiness and metrics routes.
type Server struct {
	httpServer *http.Server
	runner     Runner
	latest     LatestSource
	token      string
	logger     *slog.Logger
}

// NewServer creates the HTTP server. An empty token rejects every process
// execution.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runner Runner, latest LatestSource, token string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: processTimeout + 30*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runner: runner,
		latest: latest,
		token:  token,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /products", s.handleProducts)
	mux.HandleFunc("GET /products/{code}", s.handleProduct)
	mux.HandleFunc("POST /processes/dpc-retriever/execution", s.handleExecute)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	describe := r.URL.Query().Get("describe") == "true"
	products := domain.Products()
	infos := make([]domain.ProductInfo, 0, len(products))
	for _, p := range products {
		infos = append(infos, s.info(ctx, p, describe))
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := domain.LookupProduct(r.PathValue("code"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown product"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, s.info(ctx, p, true))
}

// info fills the last available timestamp, left empty when upstream fails.
func (s *Server) info(ctx context.Context, p domain.Product, describe bool) domain.ProductInfo {
	info := p.Info(describe)
	t, err := s.latest.LatestAvailable(ctx, p)
	if err != nil {
		s.logger.Debug("last available lookup failed", "product", p.Code, "error", err)
		return info
	}
	info.LastAvailable = &t
	return info
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
