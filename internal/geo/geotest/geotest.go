// Package geotest builds small GDAL fixtures for tests.
package geotest

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
)

// Grid describes a north-up raster fixture. EPSG defaults to 4326.
type Grid struct {
	MinX, MaxY float64 // top-left corner
	Res        float64
	SizeX      int
	SizeY      int
	EPSG       int
}

// Italy covers lon 11..14, lat 44..47 at 0.1 degrees.
var Italy = Grid{MinX: 11, MaxY: 47, Res: 0.1, SizeX: 30, SizeY: 30}

// ItalyUTM covers roughly lon 10.3..14, lat 43.8..46.5 in UTM zone 32N at 5 km.
var ItalyUTM = Grid{MinX: 600000, MaxY: 5150000, Res: 5000, SizeX: 60, SizeY: 60, EPSG: 32632}

// WriteRaster creates a single-band Float32 GeoTIFF on g. Pixel values are
// value(x, y).
func WriteRaster(t *testing.T, path string, g Grid, value func(x, y int) float32) {
	t.Helper()
	godal.RegisterAll()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, g.SizeX, g.SizeY)
	require.NoError(t, err)
	epsg := g.EPSG
	if epsg == 0 {
		epsg = 4326
	}
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	require.NoError(t, err)
	defer sr.Close()
	require.NoError(t, ds.SetSpatialRef(sr))
	require.NoError(t, ds.SetGeoTransform([6]float64{g.MinX, g.Res, 0, g.MaxY, 0, -g.Res}))

	buf := make([]float32, g.SizeX*g.SizeY)
	for y := 0; y < g.SizeY; y++ {
		for x := 0; x < g.SizeX; x++ {
			buf[y*g.SizeX+x] = value(x, y)
		}
	}
	require.NoError(t, ds.Bands()[0].Write(0, 0, buf, g.SizeX, g.SizeY))
	require.NoError(t, ds.Close())
}

// WithSentinel fills the grid with x+y and puts -9999 on the diagonal.
func WithSentinel(x, y int) float32 {
	if x == y {
		return -9999
	}
	return float32(x + y)
}

// Bounds returns minx, miny, maxx, maxy of the raster at path.
func Bounds(t *testing.T, path string) [4]float64 {
	t.Helper()
	ds, err := godal.Open(path, godal.RasterOnly())
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()

	gt, err := ds.GeoTransform()
	require.NoError(t, err)
	st := ds.Structure()
	minx, maxy := gt[0], gt[3]
	maxx := minx + gt[1]*float64(st.SizeX)
	miny := maxy + gt[5]*float64(st.SizeY)
	return [4]float64{minx, miny, maxx, maxy}
}

// IsEPSG4326 reports whether the dataset at path is in lon/lat WGS84.
func IsEPSG4326(t *testing.T, path string) bool {
	t.Helper()
	return IsEPSG(t, path, 4326)
}

// IsEPSG reports whether the dataset at path, or its first layer, is in the
// given EPSG system.
func IsEPSG(t *testing.T, path string, code int) bool {
	t.Helper()
	ds, err := godal.Open(path)
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()

	want, err := godal.NewSpatialRefFromEPSG(code)
	require.NoError(t, err)
	defer want.Close()
	got := ds.SpatialRef()
	if got == nil {
		if layers := ds.Layers(); len(layers) > 0 {
			got = layers[0].SpatialRef()
		}
	}
	return got != nil && got.IsSame(want)
}

// ReadBand returns every value of the given 1-based band.
func ReadBand(t *testing.T, path string, band int) []float32 {
	t.Helper()
	ds, err := godal.Open(path, godal.RasterOnly())
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()

	st := ds.Structure()
	buf := make([]float32, st.SizeX*st.SizeY)
	require.NoError(t, ds.Bands()[band-1].Read(0, 0, buf, st.SizeX, st.SizeY))
	return buf
}

// WriteGeoJSON writes a point FeatureCollection in lon/lat.
func WriteGeoJSON(t *testing.T, path string, points ...[2]float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	fc := geojson.NewFeatureCollection()
	for i, p := range points {
		f := geojson.NewFeature(orb.Point{p[0], p[1]})
		f.Properties["id"] = i
		fc.Append(f)
	}
	doc, err := fc.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, doc, 0o644))
}

// FeatureCount returns the number of features in the first layer at path.
func FeatureCount(t *testing.T, path string) int {
	t.Helper()
	ds, err := godal.Open(path, godal.VectorOnly())
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()

	layers := ds.Layers()
	require.NotEmpty(t, layers)
	n, err := layers[0].FeatureCount()
	require.NoError(t, err)
	return n
}

// WebMercator projects lon/lat degrees to EPSG:3857 metres.
func WebMercator(lon, lat float64) (x, y float64) {
	const r = 6378137.0
	x = r * lon * math.Pi / 180
	y = r * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// WriteShapefileWithoutCRS is WriteShapefile with the .prj removed.
func WriteShapefileWithoutCRS(t *testing.T, path string, points ...[2]float64) {
	t.Helper()
	WriteShapefile(t, path, points...)
	require.NoError(t, os.Remove(strings.TrimSuffix(path, filepath.Ext(path))+".prj"))
}

// WriteShapefile writes the points as an ESRI Shapefile with a .prj.
func WriteShapefile(t *testing.T, path string, points ...[2]float64) {
	t.Helper()
	godal.RegisterAll()
	src := filepath.Join(t.TempDir(), "points.geojson")
	WriteGeoJSON(t, src, points...)

	ds, err := godal.Open(src, godal.VectorOnly())
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()
	out, err := ds.VectorTranslate(path, []string{"-f", "ESRI Shapefile"})
	require.NoError(t, err)
	require.NoError(t, out.Close())
}
