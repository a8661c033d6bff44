package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

// ComposeRequest stacks single-timestep rasters of one product. Rasters[i]
// becomes band i+1, described by DateTimes[i].
type ComposeRequest struct {
	Product   domain.Product
	Rasters   []string
	DateTimes []time.Time
	Out       string
}

// Compose writes the rasters as one multi-band GeoTIFF at req.Out. All inputs
// must share the grid of the first one. NaN is saved as the product sentinel.
func (p *Processor) Compose(ctx context.Context, req ComposeRequest) (string, error) {
	var first time.Time
	if len(req.DateTimes) > 0 {
		first = req.DateTimes[0]
	}
	fail := func(err error) error {
		p.metrics.Processed.WithLabelValues("composite", "error").Inc()
		return &domain.ProcessingError{Product: req.Product.Code, DateTime: first, Path: req.Out, Err: err}
	}

	if len(req.Rasters) == 0 {
		return "", fail(errors.New("nothing to compose"))
	}
	if len(req.Rasters) != len(req.DateTimes) {
		return "", fail(fmt.Errorf("%d rasters for %d timestamps", len(req.Rasters), len(req.DateTimes)))
	}
	if rasterDrivers[NormalizeFormat(filepath.Ext(req.Out))] != "GTiff" {
		return "", fail(fmt.Errorf("%w %q for a composite, want a GeoTIFF", domain.ErrUnsupportedFormat, filepath.Ext(req.Out)))
	}
	if err := os.MkdirAll(filepath.Dir(req.Out), 0o755); err != nil {
		return "", fail(fmt.Errorf("create output dir: %w", err))
	}

	sentinel := req.Product.NoData
	if sentinel == 0 {
		sentinel = domain.DefaultNoData
	}
	err := writeAtomic(req.Out, func(tmp string) error {
		return p.compose(ctx, tmp, req, sentinel)
	})
	if err != nil {
		return "", fail(err)
	}

	p.metrics.Processed.WithLabelValues("composite", "success").Inc()
	p.logger.Info("rasters composed", "product", req.Product.Code, "bands", len(req.Rasters), "path", req.Out)
	return req.Out, nil
}

func (p *Processor) compose(ctx context.Context, tmp string, req ComposeRequest, sentinel float64) error {
	ref, err := godal.Open(req.Rasters[0], godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("open %s: %w", req.Rasters[0], err)
	}
	defer func() { _ = ref.Close() }()

	st := ref.Structure()
	gt, err := ref.GeoTransform()
	if err != nil {
		return fmt.Errorf("geotransform of %s: %w", req.Rasters[0], err)
	}

	out, err := godal.Create(godal.GTiff, tmp, len(req.Rasters), godal.Float32, st.SizeX, st.SizeY,
		godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("create composite: %w", err)
	}
	if err := out.SetGeoTransform(gt); err != nil {
		_ = out.Close()
		return fmt.Errorf("set geotransform: %w", err)
	}
	if sr := ref.SpatialRef(); sr != nil {
		if err := out.SetSpatialRef(sr); err != nil {
			_ = out.Close()
			return fmt.Errorf("set spatial ref: %w", err)
		}
	}

	bands := out.Bands()
	buf := make([]float32, st.SizeX*st.SizeY)
	for i, path := range req.Rasters {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			return err
		}
		if err := readBand(path, st.SizeX, st.SizeY, buf); err != nil {
			_ = out.Close()
			return err
		}
		for j, v := range buf {
			if math.IsNaN(float64(v)) {
				buf[j] = float32(sentinel)
			}
		}
		if err := bands[i].Write(0, 0, buf, st.SizeX, st.SizeY); err != nil {
			_ = out.Close()
			return fmt.Errorf("write band %d: %w", i+1, err)
		}
	}

	if err := describeComposite(out, req, sentinel); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// describeComposite sets the sentinel and the step timestamp on every band and
// the product attributes on the dataset. Band descriptions are the only record
// of which step a band holds.
func describeComposite(ds *godal.Dataset, req ComposeRequest, sentinel float64) error {
	bands := ds.Bands()
	if len(bands) != len(req.DateTimes) {
		return fmt.Errorf("%d bands for %d timestamps", len(bands), len(req.DateTimes))
	}
	for i, band := range bands {
		if err := band.SetNoData(sentinel); err != nil {
			return fmt.Errorf("set no-data on band %d: %w", i+1, err)
		}
		if err := band.SetDescription(req.DateTimes[i].UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("describe band %d: %w", i+1, err)
		}
	}
	return stampComposite(ds, req)
}

// readBand reads band 1 of path into buf after checking the grid size.
func readBand(path string, sizeX, sizeY int, buf []float32) error {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	st := ds.Structure()
	if st.SizeX != sizeX || st.SizeY != sizeY {
		return fmt.Errorf("%s is %dx%d, want %dx%d", filepath.Base(path), st.SizeX, st.SizeY, sizeX, sizeY)
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		return fmt.Errorf("%s has no bands", filepath.Base(path))
	}
	if err := bands[0].Read(0, 0, buf, sizeX, sizeY); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func stampComposite(ds *godal.Dataset, req ComposeRequest) error {
	meta := map[string]string{
		"product": req.Product.Code,
		"type":    req.Product.MeasureType,
		"unit":    req.Product.MeasureUnit,
		"bands":   strconv.Itoa(len(req.Rasters)),
	}
	for k, v := range meta {
		if v == "" {
			continue
		}
		if err := ds.SetMetadata(k, v); err != nil {
			return fmt.Errorf("set metadata %s: %w", k, err)
		}
	}
	return nil
}
