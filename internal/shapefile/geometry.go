package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ToGeometry converts a go-shp shape to a go-geom geometry tagged with srid.
// It returns nil for unsupported or empty shapes.
func ToGeometry(shape shp.Shape, srid int) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		flat := make([]float64, 0, len(s.Points)*2)
		for _, p := range s.Points {
			flat = append(flat, p.X, p.Y)
		}
		return geom.NewMultiPointFlat(geom.XY, flat).SetSRID(srid)
	case *shp.PolyLine:
		return polyLine(s.Parts, s.Points, srid)
	case *shp.Polygon:
		return polygon(s.Parts, s.Points, srid)
	default:
		return nil
	}
}

// partRange returns the point index range of part i. ok is false when the
// offsets read from the file fall outside points or run backwards.
func partRange(parts []int32, points []shp.Point, i int) (start, end int32, ok bool) {
	start = parts[i]
	end = int32(len(points))
	if i+1 < len(parts) {
		end = parts[i+1]
	}
	if start < 0 || end > int32(len(points)) || start >= end {
		return 0, 0, false
	}
	return start, end, true
}

func polyLine(parts []int32, points []shp.Point, srid int) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY).SetSRID(srid)
	for i := range parts {
		start, end, ok := partRange(parts, points, i)
		if !ok {
			zap.L().Debug("shapefile: skipping malformed line part", zap.Int("part", i))
			continue
		}
		ls := geom.NewLineStringFlat(geom.XY, flatCoords(points[start:end]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("shapefile: skipping malformed line part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygon maps every ring to its own polygon.
func polygon(parts []int32, points []shp.Point, srid int) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	for i := range parts {
		start, end, ok := partRange(parts, points, i)
		if !ok {
			zap.L().Debug("shapefile: skipping malformed ring", zap.Int("part", i))
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(points[start:end]))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("shapefile: skipping malformed ring", zap.Int("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon", zap.Int("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func flatCoords(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
