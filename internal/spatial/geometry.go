package spatial

import (
	"encoding/json"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// WGS84 is the SRID of plain longitude/latitude coordinates.
const WGS84 = 4326

// DecodeError reports a spatial value that is not valid JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// GeometryError reports valid JSON that does not describe a usable geometry.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string { return e.Reason }

func geometryErrorf(format string, args ...any) *GeometryError {
	return &GeometryError{Reason: fmt.Sprintf(format, args...)}
}

// ParseGeoJSON decodes a GeoJSON geometry object and validates it.
// The result carries srid.
func ParseGeoJSON(value string, srid int) (geom.T, error) {
	var raw any
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, geometryErrorf("expected a GeoJSON geometry object, got %s", jsonKind(raw))
	}

	var g geom.T
	if err := geojson.Unmarshal([]byte(value), &g); err != nil {
		return nil, geometryErrorf("%v", err)
	}
	if g == nil {
		return nil, geometryErrorf("geometry is null")
	}

	g, err := WithSRID(g, srid)
	if err != nil {
		return nil, err
	}
	if err := ValidateGeometry(g); err != nil {
		return nil, err
	}
	return g, nil
}

// MarshalGeoJSON encodes g as a GeoJSON geometry.
func MarshalGeoJSON(g geom.T) (string, error) {
	data, err := geojson.Marshal(g)
	if err != nil {
		return "", geometryErrorf("encode geojson: %v", err)
	}
	return string(data), nil
}

// WithSRID returns g tagged with srid.
func WithSRID(g geom.T, srid int) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Point:
		return t.SetSRID(srid), nil
	case *geom.LineString:
		return t.SetSRID(srid), nil
	case *geom.Polygon:
		return t.SetSRID(srid), nil
	case *geom.MultiPoint:
		return t.SetSRID(srid), nil
	case *geom.MultiLineString:
		return t.SetSRID(srid), nil
	case *geom.MultiPolygon:
		return t.SetSRID(srid), nil
	case *geom.GeometryCollection:
		return t.SetSRID(srid), nil
	default:
		return nil, geometryErrorf("unsupported geometry type %T", g)
	}
}

// ValidateGeometry rejects empty geometries, unclosed or degenerate polygon
// rings, and out-of-range coordinates for WGS84 geometries.
func ValidateGeometry(g geom.T) error {
	if err := validateShape(g); err != nil {
		return err
	}
	if g.SRID() == WGS84 {
		b := BoundsOf(g)
		if b.MinX < -180 || b.MaxX > 180 || b.MinY < -90 || b.MaxY > 90 {
			return geometryErrorf("coordinates out of range for EPSG:4326: %s", b)
		}
	}
	return nil
}

func validateShape(g geom.T) error {
	switch t := g.(type) {
	case *geom.GeometryCollection:
		if t.NumGeoms() == 0 {
			return geometryErrorf("empty geometry collection")
		}
		for i := 0; i < t.NumGeoms(); i++ {
			if err := validateShape(t.Geom(i)); err != nil {
				return err
			}
		}
		return nil
	case *geom.Polygon:
		return validatePolygon(t)
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return geometryErrorf("empty multipolygon")
		}
		for i := 0; i < t.NumPolygons(); i++ {
			if err := validatePolygon(t.Polygon(i)); err != nil {
				return err
			}
		}
		return nil
	case *geom.LineString:
		if t.NumCoords() < 2 {
			return geometryErrorf("linestring needs at least 2 positions, got %d", t.NumCoords())
		}
		return nil
	}
	if len(g.FlatCoords()) == 0 {
		return geometryErrorf("empty geometry")
	}
	return nil
}

func validatePolygon(p *geom.Polygon) error {
	if p.NumLinearRings() == 0 {
		return geometryErrorf("empty polygon")
	}
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		n := ring.NumCoords()
		if n < 4 {
			return geometryErrorf("polygon ring %d needs at least 4 positions, got %d", i, n)
		}
		first, last := ring.Coord(0), ring.Coord(n-1)
		if first.X() != last.X() || first.Y() != last.Y() {
			return geometryErrorf("polygon ring %d is not closed", i)
		}
	}
	return nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "object"
	}
}
