// Package geo normalizes downloaded products into their canonical spatial
// form: sentinel values masked, clipped to a bounding box, reprojected and
// written in the requested format.
package geo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind classifies an artifact once, by extension.
type Kind int

const (
	KindOpaque Kind = iota
	KindRaster
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindVector:
		return "vector"
	default:
		return "opaque"
	}
}

var (
	rasterDrivers = map[string]string{
		".tif":     "GTiff",
		".tiff":    "GTiff",
		".geotiff": "GTiff",
		".nc":      "netCDF",
		".netcdf":  "netCDF",
	}
	vectorDrivers = map[string]string{
		".shp":     "ESRI Shapefile",
		".geojson": "GeoJSON",
		".json":    "GeoJSON",
	}
)

var errUnclassifiable = errors.New("file has no extension, cannot classify")

// Artifact is a local file tagged with its kind.
type Artifact struct {
	Path string
	Kind Kind
}

// Ext is the lower-case extension of the artifact, with the dot.
func (a Artifact) Ext() string {
	return strings.ToLower(filepath.Ext(a.Path))
}

// Classify tags the file at path. Files without an extension cannot be
// classified.
func Classify(path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	if info.IsDir() {
		return Artifact{}, fmt.Errorf("%s is a directory", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == "":
		return Artifact{}, errUnclassifiable
	case rasterDrivers[ext] != "":
		return Artifact{Path: path, Kind: KindRaster}, nil
	case vectorDrivers[ext] != "":
		return Artifact{Path: path, Kind: KindVector}, nil
	default:
		return Artifact{Path: path, Kind: KindOpaque}, nil
	}
}

// NormalizeFormat turns "tif", ".TIF" or " .tif " into ".tif". Empty stays empty.
func NormalizeFormat(f string) string {
	f = strings.ToLower(strings.TrimSpace(f))
	if f == "" || strings.HasPrefix(f, ".") {
		return f
	}
	return "." + f
}
