package domain

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Object key prefixes inside a bucket.
const (
	DataPrefix    = "data"
	CatalogPrefix = "catalog"
)

// HivePath formats the partition for a product at t as
// "year=YYYY/month=M/day=D/product=CODE". Integers are not zero-padded.
func HivePath(t time.Time, code string) string {
	t = t.UTC()
	return fmt.Sprintf("year=%d/month=%d/day=%d/product=%s", t.Year(), int(t.Month()), t.Day(), code)
}

// DataKey is the object key a payload file is stored under.
func DataKey(t time.Time, code, filename string) string {
	return path.Join(DataPrefix, HivePath(t, code), filepath.Base(filename))
}

// CatalogKey is the object key of the catalog for one partition.
func CatalogKey(t time.Time, code string) string {
	return path.Join(CatalogPrefix, HivePath(t, code), code+".json")
}

// ShapefileSidecars lists the companion files stored alongside a .shp.
var ShapefileSidecars = []string{".shx", ".dbf", ".prj", ".cpg"}

// Sidecars returns the sidecar paths of a shapefile. Non-shapefiles have none.
func Sidecars(p string) []string {
	ext := filepath.Ext(p)
	if !strings.EqualFold(ext, ".shp") {
		return nil
	}
	stem := strings.TrimSuffix(p, ext)
	out := make([]string, len(ShapefileSidecars))
	for i, s := range ShapefileSidecars {
		out[i] = stem + s
	}
	return out
}
