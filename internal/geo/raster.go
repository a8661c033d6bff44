package geo

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

func (p *Processor) processRaster(art Artifact, req ProcessRequest) (string, error) {
	ext := NormalizeFormat(req.OutFormat)
	if ext == "" {
		ext = art.Ext()
	}
	driver, ok := rasterDrivers[ext]
	if !ok {
		return "", fmt.Errorf("%w %q for raster output", domain.ErrUnsupportedFormat, ext)
	}

	mem, err := loadRaster(art.Path, req.Product.NoData)
	if err != nil {
		return "", err
	}
	defer mem.Close()
	if err := stamp(mem, req.Product, req.DateTime); err != nil {
		return "", err
	}

	out := mem
	if req.BBox != nil || req.TargetCRS != "" {
		warped, err := mem.Warp("", warpSwitches(req))
		if err != nil {
			return "", fmt.Errorf("clip/reproject: %w", err)
		}
		defer warped.Close()
		// gdalwarp does not carry band descriptions over.
		if err := stamp(warped, req.Product, req.DateTime); err != nil {
			return "", err
		}
		out = warped
	}

	dest := destination(req, ext)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	err = writeAtomic(dest, func(tmp string) error {
		ds, err := out.Translate(tmp, translateSwitches(driver))
		if err != nil {
			return fmt.Errorf("write %s: %w", driver, err)
		}
		return ds.Close()
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

// loadRaster copies the file into an in-memory Float32 dataset with the
// sentinel (and any declared no-data value) replaced by NaN. The file itself
// is closed before returning so it can be overwritten.
func loadRaster(path string, sentinel float64) (*godal.Dataset, error) {
	src, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("open raster: %w", err)
	}
	defer func() { _ = src.Close() }()

	mem, err := src.Translate("", []string{"-of", "MEM", "-ot", "Float32"})
	if err != nil {
		return nil, fmt.Errorf("load raster: %w", err)
	}

	st := mem.Structure()
	buf := make([]float32, st.SizeX*st.SizeY)
	nan := float32(math.NaN())
	for i, band := range mem.Bands() {
		declared, hasDeclared := band.NoData()
		if err := band.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
			_ = mem.Close()
			return nil, fmt.Errorf("read band %d: %w", i+1, err)
		}
		for j, v := range buf {
			f := float64(v)
			if isSentinel(f, sentinel) || (hasDeclared && f == declared) {
				buf[j] = nan
			}
		}
		if err := band.Write(0, 0, buf, st.SizeX, st.SizeY); err != nil {
			_ = mem.Close()
			return nil, fmt.Errorf("write band %d: %w", i+1, err)
		}
		if err := band.SetNoData(math.NaN()); err != nil {
			_ = mem.Close()
			return nil, fmt.Errorf("set no-data on band %d: %w", i+1, err)
		}
	}
	return mem, nil
}

// isSentinel matches the sentinel and, for negative sentinels, anything below it.
func isSentinel(v, sentinel float64) bool {
	return v == sentinel || (sentinel < 0 && v < sentinel)
}

// stamp writes the timestamp into every band description and the product
// attributes into the dataset metadata.
func stamp(ds *godal.Dataset, p domain.Product, t time.Time) error {
	iso := ""
	if !t.IsZero() {
		iso = t.UTC().Format(time.RFC3339)
	}
	if iso != "" {
		for i, band := range ds.Bands() {
			if err := band.SetDescription(iso); err != nil {
				return fmt.Errorf("describe band %d: %w", i+1, err)
			}
		}
	}
	meta := [][2]string{
		{"product", p.Code},
		{"date_time", iso},
		{"type", p.MeasureType},
		{"unit", p.MeasureUnit},
	}
	for _, kv := range meta {
		if kv[1] == "" {
			continue
		}
		if err := ds.SetMetadata(kv[0], kv[1]); err != nil {
			return fmt.Errorf("set metadata %s: %w", kv[0], err)
		}
	}
	return nil
}

// warpSwitches clips with -te so the output extent is exactly the box, which
// is always given in lon/lat.
func warpSwitches(req ProcessRequest) []string {
	sw := []string{"-of", "MEM", "-ot", "Float32", "-srcnodata", "nan", "-dstnodata", "nan", "-r", "near"}
	if req.TargetCRS != "" {
		sw = append(sw, "-t_srs", req.TargetCRS)
	}
	if req.BBox != nil {
		sw = append(sw, "-te")
		sw = append(sw, bboxSwitch(*req.BBox)...)
		sw = append(sw, "-te_srs", domain.BBoxSRS)
	}
	return sw
}

func translateSwitches(driver string) []string {
	sw := []string{"-of", driver}
	if driver == "GTiff" {
		sw = append(sw, "-co", "COMPRESS=DEFLATE", "-co", "TILED=YES")
	}
	return sw
}
