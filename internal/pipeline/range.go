package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/geo"
	"github.com/SaferPlaces2023/dpc-retriever/internal/retriever"
	"github.com/SaferPlaces2023/dpc-retriever/internal/scratch"
)

// rangeGranularity is the step range bounds are floored to.
const rangeGranularity = 5 * time.Minute

// RangeRequest retrieves every cadence step of a time range and stacks the
// steps into one multi-band GeoTIFF.
type RangeRequest struct {
	Product string
	Start   time.Time
	// End defaults to Start plus one hour.
	End  time.Time
	BBox *domain.BBox
	// Out is the composite path; empty means a name under the results dir.
	Out    string
	Bucket string
}

// RangeOutput describes a composite produced by RunRange.
type RangeOutput struct {
	Product  string      `json:"product"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
	Bands    []time.Time `json:"bands"`
	Filename string      `json:"filename"`
	URI      string      `json:"uri,omitempty"`
}

// normalize floors the bounds, applies defaults and validates the range
// against now.
func (r RangeRequest) normalize(maxAge time.Duration) (domain.Product, RangeRequest, error) {
	p, ok := domain.LookupProduct(r.Product)
	if !ok {
		return p, r, domain.Invalid("unknown product %q", r.Product)
	}
	if p.UpdateFrequency.IsZero() {
		return p, r, domain.Invalid("product %s has no update frequency", p.Code)
	}
	if r.Start.IsZero() {
		return p, r, domain.Invalid("time range start is required")
	}
	if r.BBox != nil {
		if err := r.BBox.Validate(); err != nil {
			return p, r, err
		}
	}
	if err := validateBucket(r.Bucket); err != nil {
		return p, r, err
	}

	r.Start = r.Start.UTC().Truncate(rangeGranularity)
	if r.End.IsZero() {
		r.End = r.Start.Add(time.Hour)
	}
	r.End = r.End.UTC().Truncate(rangeGranularity)
	if r.Start.After(r.End) {
		return p, r, domain.Invalid("time range start %s is after end %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	if oldest := domain.Now().Add(-maxAge); r.End.Before(oldest) {
		return p, r, domain.Invalid("time range must end after %s", oldest.Format(time.RFC3339))
	}
	if r.Out != "" && !isGeoTIFF(r.Out) {
		return p, r, domain.Invalid("out %q must be a GeoTIFF", r.Out)
	}
	return p, r, nil
}

// RunRange executes a range invocation. Every step is retrieved once, without
// retries; any failing step fails the run.
func (p *Pipeline) RunRange(ctx context.Context, req RangeRequest, reporter Reporter) (res domain.Result) {
	reporter = orNop(reporter)
	defer p.finish(time.Now(), "range", &res)

	reporter.Report(ctx, ProgressStarted, "started")
	out, err := p.runRange(ctx, req, reporter)
	if err != nil {
		return p.fail(ctx, reporter, err, Output{Product: req.Product, URI: out.URI})
	}
	reporter.Report(ctx, ProgressDone, "done")

	res = domain.Result{
		Status:  domain.StatusOK,
		Message: fmt.Sprintf("%d band(s) of %s composed", len(out.Bands), out.Product),
		Body:    out,
		Files:   []string{out.Filename},
	}
	if out.URI != "" {
		res.Files = append(res.Files, out.URI)
	}
	return res
}

func (p *Pipeline) runRange(ctx context.Context, req RangeRequest, reporter Reporter) (RangeOutput, error) {
	product, req, err := req.normalize(p.opts.MaxAge)
	if err != nil {
		return RangeOutput{}, err
	}
	steps, err := product.Steps(req.Start, req.End)
	if err != nil {
		return RangeOutput{}, domain.Invalid("%v", err)
	}
	if len(steps) == 0 {
		return RangeOutput{}, domain.Invalid("time range %s..%s holds no %s step", req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339), product.Code)
	}
	reporter.Report(ctx, ProgressValidated, fmt.Sprintf("arguments validated, %d step(s)", len(steps)))

	ws, err := scratch.New(p.opts.ScratchDir, p.logger)
	if err != nil {
		return RangeOutput{}, err
	}
	defer ws.Close()

	rasters := make([]string, 0, len(steps))
	for i, t := range steps {
		got, err := p.retriever.Retrieve(ctx, ws, product, t, retriever.RetryPolicy{})
		if err != nil {
			return RangeOutput{}, err
		}
		path, err := p.processor.Process(ctx, geo.ProcessRequest{
			Product:   product,
			Path:      got.Path,
			DateTime:  got.DateTime,
			BBox:      req.BBox,
			TargetCRS: domain.BBoxSRS,
			OutFormat: ".tif",
			OutputDir: filepath.Join(ws.Dir(), "steps", strconv.Itoa(i)),
		})
		if err != nil {
			return RangeOutput{}, err
		}
		rasters = append(rasters, path)
		reporter.Report(ctx, ProgressValidated+(ProgressProcessed-ProgressValidated)*(i+1)/len(steps),
			"processed "+got.DateTime.Format(time.RFC3339))
	}

	out := req.Out
	if out == "" {
		out = p.compositePath(product, steps[len(steps)-1])
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return RangeOutput{}, fmt.Errorf("create output dir: %w", err)
	}
	composite, err := p.processor.Compose(ctx, geo.ComposeRequest{
		Product:   product,
		Rasters:   rasters,
		DateTimes: steps,
		Out:       out,
	})
	if err != nil {
		return RangeOutput{}, err
	}
	reporter.Report(ctx, ProgressProcessed, "composed")

	res := RangeOutput{Product: product.Code, Start: req.Start, End: req.End, Bands: steps, Filename: composite}
	if req.Bucket != "" {
		uri, err := p.archiver.Upload(ctx, req.Bucket, composite)
		if err != nil {
			return res, err
		}
		res.URI = uri
		reporter.Report(ctx, ProgressStored, "uploaded")
	}
	return res, nil
}

// compositePath is the default composite location:
// <results>/DPC/<code>/DPC__<code>__<last step>.tif.
func (p *Pipeline) compositePath(product domain.Product, last time.Time) string {
	name := fmt.Sprintf("DPC__%s__%s.tif", product.Code, last.UTC().Format("2006-01-02T15-04-05"))
	return filepath.Join(p.opts.ResultsDir, "DPC", product.Code, name)
}

func isGeoTIFF(path string) bool {
	switch geo.NormalizeFormat(filepath.Ext(path)) {
	case ".tif", ".tiff", ".geotiff":
		return true
	}
	return false
}
