// Package shapefile reads ESRI shapefiles into geometries keyed by one of
// their attribute columns.
package shapefile

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/spatial"
)

// Record is one shape with its key attribute.
type Record struct {
	Key    string
	Bounds spatial.BBox
	// Geometry is nil for shape types without a geometry mapping.
	Geometry geom.T
}

// Result is the outcome of reading a shapefile.
type Result struct {
	Records []Record
	Skipped int
}

// Read opens the shapefile at path and returns a record for every shape
// whose keyField attribute is non-empty. Field names match case-insensitively.
// Geometries are tagged with srid.
func Read(path, keyField string, srid int) (*Result, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	keyIdx := -1
	var names []string
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		names = append(names, name)
		if strings.EqualFold(name, keyField) {
			keyIdx = i
		}
	}
	if keyIdx < 0 {
		return nil, eris.Errorf("shapefile: field %q not found in %s (have %s)",
			keyField, path, strings.Join(names, ", "))
	}

	res := &Result{}
	for reader.Next() {
		_, shape := reader.Shape()
		key := strings.TrimSpace(strings.TrimRight(reader.Attribute(keyIdx), "\x00"))
		if shape == nil || key == "" {
			res.Skipped++
			continue
		}
		if _, isNull := shape.(*shp.Null); isNull {
			res.Skipped++
			continue
		}

		box := shape.BBox()
		res.Records = append(res.Records, Record{
			Key:      key,
			Bounds:   spatial.BBox{MinX: box.MinX, MinY: box.MinY, MaxX: box.MaxX, MaxY: box.MaxY},
			Geometry: ToGeometry(shape, srid),
		})
	}

	if res.Skipped > 0 {
		zap.L().Debug("shapefile: skipped records",
			zap.String("path", path),
			zap.Int("skipped", res.Skipped),
		)
	}
	return res, nil
}
