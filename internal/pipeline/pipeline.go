// Package pipeline runs the retrieve, process and store stages for one
// invocation and turns every outcome into a domain.Result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/SaferPlaces2023/dpc-retriever/internal/archive"
	"github.com/SaferPlaces2023/dpc-retriever/internal/catalog"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/geo"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
	"github.com/SaferPlaces2023/dpc-retriever/internal/retriever"
	"github.com/SaferPlaces2023/dpc-retriever/internal/scratch"
)

// Retriever fetches a product payload into the workspace.
type Retriever interface {
	Retrieve(ctx context.Context, ws retriever.Workspace, p domain.Product, t time.Time, policy retriever.RetryPolicy) (retriever.Retrieval, error)
}

// Processor normalizes payloads and stacks rasters.
type Processor interface {
	Process(ctx context.Context, req geo.ProcessRequest) (string, error)
	Compose(ctx context.Context, req geo.ComposeRequest) (string, error)
}

// Archiver persists outputs to a bucket.
type Archiver interface {
	Store(ctx context.Context, ws catalog.Workspace, req archive.StoreRequest) (string, error)
	Upload(ctx context.Context, bucketURI, localPath string) (string, error)
}

// Options configures where runs keep their files.
type Options struct {
	// ScratchDir holds the per-run scratch directories.
	ScratchDir string
	// ResultsDir receives composites when the caller names no output.
	ResultsDir string
	// MaxAge bounds how far back a range request may end.
	MaxAge time.Duration
}

// Output describes the artifact produced by a run.
type Output struct {
	Product  string    `json:"product"`
	DateTime time.Time `json:"date_time"`
	Filename string    `json:"filename"`
	// Path is the local copy; empty when the file only lived in scratch.
	Path string `json:"path,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// Pipeline orchestrates the retrieve-process-store stages.
type Pipeline struct {
	retriever Retriever
	processor Processor
	archiver  Archiver
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(r Retriever, p Processor, a Archiver, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	if opts.ResultsDir == "" {
		opts.ResultsDir = filepath.Join(opts.ScratchDir, "dpc-retriever-results")
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 48 * time.Hour
	}
	return &Pipeline{
		retriever: r,
		processor: p,
		archiver:  a,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil if the scratch directory accepts new files.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if err := os.MkdirAll(p.opts.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("scratch dir unavailable: %w", err)
	}
	f, err := os.CreateTemp(p.opts.ScratchDir, ".ready-*")
	if err != nil {
		return fmt.Errorf("scratch dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Run executes one invocation. It never panics and never returns an error:
// failures are reported through the Result status.
func (p *Pipeline) Run(ctx context.Context, req Request, reporter Reporter) (res domain.Result) {
	reporter = orNop(reporter)
	defer p.finish(time.Now(), "run", &res)

	reporter.Report(ctx, ProgressStarted, "started")
	out, err := p.run(ctx, req, reporter)
	if err != nil {
		return p.fail(ctx, reporter, err, out)
	}
	reporter.Report(ctx, ProgressDone, "done")

	res = domain.Result{Status: domain.StatusOK, Message: "product " + out.Product + " retrieved", Body: out}
	for _, f := range []string{out.Path, out.URI} {
		if f != "" {
			res.Files = append(res.Files, f)
		}
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, req Request, reporter Reporter) (Output, error) {
	product, err := req.Validate()
	if err != nil {
		return Output{}, err
	}
	reporter.Report(ctx, ProgressValidated, "arguments validated")

	ws, err := scratch.New(p.opts.ScratchDir, p.logger)
	if err != nil {
		return Output{}, err
	}
	defer ws.Close()

	got, err := p.retriever.Retrieve(ctx, ws, product, req.DateTime, retriever.RetryPolicy{
		MaxRetry: req.MaxRetry,
		Delay:    req.RetryDelay,
	})
	if err != nil {
		return Output{}, err
	}
	reporter.Report(ctx, ProgressRetrieved, "retrieved "+product.Code+" at "+got.DateTime.Format(time.RFC3339))

	// Without a bucket the processed file is the only result and must
	// outlive the scratch directory.
	outputDir := req.OutputDir
	if outputDir == "" && req.Bucket == "" {
		outputDir = "."
	}
	path, err := p.processor.Process(ctx, geo.ProcessRequest{
		Product:   product,
		Path:      got.Path,
		DateTime:  got.DateTime,
		BBox:      req.BBox,
		TargetCRS: req.TargetCRS,
		OutFormat: req.OutFormat,
		OutputDir: outputDir,
	})
	if err != nil {
		return Output{}, err
	}
	reporter.Report(ctx, ProgressProcessed, "processed")

	out := Output{Product: product.Code, DateTime: got.DateTime, Filename: filepath.Base(path)}
	if !within(ws.Dir(), path) {
		out.Path = path
	}
	if req.Bucket == "" {
		return out, nil
	}

	uri, err := p.archiver.Store(ctx, ws, archive.StoreRequest{
		Product:         product,
		Path:            path,
		DateTime:        got.DateTime,
		Bucket:          req.Bucket,
		RegisterCatalog: req.RegisterCatalog,
	})
	out.URI = uri
	if err != nil {
		return out, err
	}
	reporter.Report(ctx, ProgressStored, "stored")
	return out, nil
}

// fail converts err into a result. A payload that reached the bucket before
// the failure is still reported.
func (p *Pipeline) fail(ctx context.Context, reporter Reporter, err error, out Output) domain.Result {
	p.logger.Error("pipeline failed", "product", out.Product, "error", err)
	reporter.Report(ctx, ProgressDone, "failed: "+err.Error())
	res := domain.Fail(err)
	if out.URI != "" {
		res.Body = out
		res.Files = []string{out.URI}
	}
	return res
}

// finish records metrics and converts a panic into an ERROR result.
func (p *Pipeline) finish(start time.Time, kind string, res *domain.Result) {
	if r := recover(); r != nil {
		p.logger.Error("pipeline panic", "kind", kind, "panic", r, "stack", string(debug.Stack()))
		*res = domain.Fail(fmt.Errorf("internal error: %v", r))
	}
	p.metrics.PipelineRuns.WithLabelValues(string(res.Status)).Inc()
	p.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("pipeline finished", "kind", kind, "status", res.Status, "duration", time.Since(start))
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
