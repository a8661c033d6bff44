package geo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

func (p *Processor) processVector(art Artifact, req ProcessRequest) (string, error) {
	ext := NormalizeFormat(req.OutFormat)
	if ext == "" {
		ext = art.Ext()
	}
	driver, ok := vectorDrivers[ext]
	if !ok {
		return "", fmt.Errorf("%w %q for vector output", domain.ErrUnsupportedFormat, ext)
	}
	// A shapefile without .prj is rewritten in place with the lon/lat CRS.
	if req.BBox == nil && req.TargetCRS == "" && ext == art.Ext() && req.OutputDir == "" && hasDeclaredSRS(art) {
		return art.Path, nil
	}

	dest := destination(req, ext)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	sw := vectorSwitches(art, req, driver)
	err := writeAtomic(dest, func(tmp string) error {
		src, err := godal.Open(art.Path, godal.VectorOnly())
		if err != nil {
			return fmt.Errorf("open vector: %w", err)
		}
		defer func() { _ = src.Close() }()

		ds, err := src.VectorTranslate(tmp, sw)
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

func vectorSwitches(art Artifact, req ProcessRequest, driver string) []string {
	sw := []string{"-f", driver}
	// DPC shapefiles sometimes ship without a .prj; their coordinates are lon/lat.
	if !hasDeclaredSRS(art) {
		if req.TargetCRS != "" {
			sw = append(sw, "-s_srs", domain.BBoxSRS)
		} else {
			sw = append(sw, "-a_srs", domain.BBoxSRS)
		}
	}
	if req.TargetCRS != "" {
		sw = append(sw, "-t_srs", req.TargetCRS)
	}
	if req.BBox != nil {
		sw = append(sw, "-spat")
		sw = append(sw, bboxSwitch(*req.BBox)...)
		sw = append(sw, "-spat_srs", domain.BBoxSRS)
	}
	return sw
}

// hasDeclaredSRS reports whether the source carries a CRS. GeoJSON is lon/lat
// unless it says otherwise, so only shapefiles can lack one.
func hasDeclaredSRS(art Artifact) bool {
	if art.Ext() != ".shp" {
		return true
	}
	prj := strings.TrimSuffix(art.Path, filepath.Ext(art.Path)) + ".prj"
	_, err := os.Stat(prj)
	return err == nil
}
