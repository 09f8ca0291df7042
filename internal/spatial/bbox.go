// Package spatial validates package geometries and indexes their extents
// for bounding-box search.
package spatial

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrInvalidBBox is returned for bounding boxes that are not four
// comma separated numbers.
var ErrInvalidBBox = errors.New("spatial: invalid bounding box")

// ErrUnsupportedCRS is returned when a CRS string cannot be parsed or the
// store cannot reproject into its own SRID.
var ErrUnsupportedCRS = errors.New("spatial: unsupported crs")

// BBox is an axis-aligned rectangle in the coordinates of some SRID.
type BBox struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
}

// ValidateBBox parses "minx,miny,maxx,maxy".
func ValidateBBox(s string) (*BBox, error) {
	return ValidateBBoxValues(strings.Split(s, ","))
}

// ValidateBBoxValues parses an already split bounding box.
func ValidateBBoxValues(values []string) (*BBox, error) {
	if len(values) != 4 {
		return nil, eris.Wrapf(ErrInvalidBBox, "expected 4 values, got %d", len(values))
	}

	var f [4]float64
	for i, v := range values {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidBBox, "value %q is not a number", v)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, eris.Wrapf(ErrInvalidBBox, "value %q is not finite", v)
		}
		f[i] = n
	}

	b := &BBox{MinX: f[0], MinY: f[1], MaxX: f[2], MaxY: f[3]}
	if b.MinX > b.MaxX || b.MinY > b.MaxY {
		return nil, eris.Wrapf(ErrInvalidBBox, "min exceeds max in %s", b)
	}
	return b, nil
}

// String renders the box in the same form ValidateBBox accepts.
func (b BBox) String() string {
	parts := []string{
		strconv.FormatFloat(b.MinX, 'f', -1, 64),
		strconv.FormatFloat(b.MinY, 'f', -1, 64),
		strconv.FormatFloat(b.MaxX, 'f', -1, 64),
		strconv.FormatFloat(b.MaxY, 'f', -1, 64),
	}
	return strings.Join(parts, ",")
}

// Intersects reports whether the two boxes share at least one point.
func (b BBox) Intersects(o BBox) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX &&
		b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Polygon returns the box as a closed polygon ring with the given SRID.
func (b BBox) Polygon(srid int) *geom.Polygon {
	flat := []float64{
		b.MinX, b.MinY,
		b.MaxX, b.MinY,
		b.MaxX, b.MaxY,
		b.MinX, b.MaxY,
		b.MinX, b.MinY,
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(srid)
}

// BoundsOf returns the 2D envelope of g.
func BoundsOf(g geom.T) BBox {
	bounds := g.Bounds()
	return BBox{
		MinX: bounds.Min(0),
		MinY: bounds.Min(1),
		MaxX: bounds.Max(0),
		MaxY: bounds.Max(1),
	}
}

// ParseCRS extracts the SRID from "EPSG:4326" or a bare "4326".
// An empty string yields def.
func ParseCRS(crs string, def int) (int, error) {
	crs = strings.TrimSpace(crs)
	if crs == "" {
		return def, nil
	}
	code := crs
	if i := strings.LastIndex(crs, ":"); i >= 0 {
		if !strings.EqualFold(crs[:strings.Index(crs, ":")], "EPSG") {
			return 0, eris.Wrapf(ErrUnsupportedCRS, "%q", crs)
		}
		code = crs[i+1:]
	}
	srid, err := strconv.Atoi(code)
	if err != nil || srid <= 0 {
		return 0, eris.Wrapf(ErrUnsupportedCRS, "%q", crs)
	}
	return srid, nil
}
