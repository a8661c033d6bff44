package geo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

var registerOnce sync.Once

// ProcessRequest describes one normalization. Zero values mean "leave as is":
// nil BBox, empty TargetCRS, empty OutFormat (keep the source format) and
// empty OutputDir (write next to the input).
type ProcessRequest struct {
	Product   domain.Product
	Path      string
	DateTime  time.Time
	BBox      *domain.BBox
	TargetCRS string
	OutFormat string
	OutputDir string
}

func (r ProcessRequest) fail(err error) error {
	return &domain.ProcessingError{Product: r.Product.Code, DateTime: r.DateTime, Path: r.Path, Err: err}
}

// Processor turns raw artifacts into normalized ones with GDAL.
type Processor struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewProcessor registers the GDAL drivers on first use.
func NewProcessor(logger *slog.Logger, metrics *observability.Metrics) *Processor {
	registerOnce.Do(godal.RegisterAll)
	return &Processor{logger: logger, metrics: metrics}
}

// Process normalizes the artifact at req.Path and returns the path of the
// result. Every failure is a *domain.ProcessingError.
func (p *Processor) Process(ctx context.Context, req ProcessRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", req.fail(err)
	}
	art, err := Classify(req.Path)
	if err != nil {
		return "", req.fail(err)
	}

	var out string
	switch art.Kind {
	case KindRaster:
		out, err = p.processRaster(art, req)
	case KindVector:
		out, err = p.processVector(art, req)
	default:
		out, err = p.processOpaque(art, req)
	}
	if err != nil {
		p.metrics.Processed.WithLabelValues(art.Kind.String(), "error").Inc()
		return "", req.fail(err)
	}

	p.metrics.Processed.WithLabelValues(art.Kind.String(), "success").Inc()
	p.logger.Debug("artifact processed",
		"product", req.Product.Code,
		"date_time", req.DateTime,
		"kind", art.Kind.String(),
		"path", out,
	)
	return out, nil
}

// processOpaque moves files it cannot interpret; any transformation is refused.
func (p *Processor) processOpaque(art Artifact, req ProcessRequest) (string, error) {
	format := NormalizeFormat(req.OutFormat)
	if req.BBox != nil || req.TargetCRS != "" || (format != "" && format != art.Ext()) {
		return "", fmt.Errorf("%w: cannot clip, reproject or convert a %s file", domain.ErrUnsupportedFormat, art.Ext())
	}
	if req.OutputDir == "" {
		return art.Path, nil
	}
	dest := destination(req, art.Ext())
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := moveFile(art.Path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// destination is <OutputDir>/<hive>/<stem><ext>, or <dir of input>/<stem><ext>.
func destination(req ProcessRequest, ext string) string {
	name := stem(req.Path) + ext
	if req.OutputDir == "" {
		return filepath.Join(filepath.Dir(req.Path), name)
	}
	hive := filepath.FromSlash(domain.HivePath(req.DateTime, req.Product.Code))
	return filepath.Join(req.OutputDir, hive, name)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// bboxSwitch renders the box corners for GDAL switches.
func bboxSwitch(b domain.BBox) []string {
	v := b.Values()
	out := make([]string, len(v))
	for i, f := range v {
		out[i] = fmt.Sprintf("%.10g", f)
	}
	return out
}
