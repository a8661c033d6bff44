package domain

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BBoxSRS is the reference system bounding boxes are expressed in.
const BBoxSRS = "EPSG:4326"

// BBox is a lon/lat bounding box (minx, miny, maxx, maxy) in EPSG:4326.
type BBox struct {
	orb.Bound
}

// NewBBox builds a box from its corners.
func NewBBox(minx, miny, maxx, maxy float64) BBox {
	return BBox{orb.Bound{Min: orb.Point{minx, miny}, Max: orb.Point{maxx, maxy}}}
}

// ParseBBox parses "minx,miny,maxx,maxy" and validates it.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, Invalid("bbox must have 4 comma-separated values, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, Invalid("bbox value %q is not a number", p)
		}
		v[i] = f
	}
	b := NewBBox(v[0], v[1], v[2], v[3])
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Validate checks coordinate ranges and corner ordering.
func (b BBox) Validate() error {
	for _, x := range []float64{b.Left(), b.Right()} {
		if x < -180 || x > 180 {
			return Invalid("longitude %g out of range [-180, 180]", x)
		}
	}
	for _, y := range []float64{b.Bottom(), b.Top()} {
		if y < -90 || y > 90 {
			return Invalid("latitude %g out of range [-90, 90]", y)
		}
	}
	if b.Left() > b.Right() {
		return Invalid("bbox minx %g greater than maxx %g", b.Left(), b.Right())
	}
	if b.Bottom() > b.Top() {
		return Invalid("bbox miny %g greater than maxy %g", b.Bottom(), b.Top())
	}
	return nil
}

// Values returns minx, miny, maxx, maxy.
func (b BBox) Values() [4]float64 {
	return [4]float64{b.Left(), b.Bottom(), b.Right(), b.Top()}
}

// String formats the box as "minx,miny,maxx,maxy".
func (b BBox) String() string {
	v := b.Values()
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
