package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spatial-catalog/internal/catalog"
	"github.com/sells-group/spatial-catalog/internal/spatial"
)

func TestExtentSetGetDelete(t *testing.T) {
	env := newTestCatalog(t)
	ctx := context.Background()
	pkg := createPackage(t, env, "spain-roads", "")

	require.NoError(t, runExtentSet(ctx, env, "spain-roads", spainPolygon))

	var out bytes.Buffer
	require.NoError(t, runExtentGet(ctx, env, &out, pkg.ID))

	var got struct {
		PackageID string          `json:"package_id"`
		Bounds    spatial.BBox    `json:"bounds"`
		Geometry  json.RawMessage `json:"geometry"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, pkg.ID, got.PackageID)
	assert.Equal(t, spatial.BBox{MinX: -9, MinY: 36, MaxX: 3, MaxY: 43}, got.Bounds)
	assert.Contains(t, string(got.Geometry), `"Polygon"`)

	require.NoError(t, runExtentDelete(ctx, env, "spain-roads"))
	err := runExtentGet(ctx, env, &out, "spain-roads")
	assert.True(t, errors.Is(err, spatial.ErrExtentNotFound))
}

func TestExtentSet_Errors(t *testing.T) {
	env := newTestCatalog(t)
	ctx := context.Background()
	createPackage(t, env, "spain-roads", "")

	err := runExtentSet(ctx, env, "missing", spainPolygon)
	assert.True(t, errors.Is(err, catalog.ErrNotFound))

	err = runExtentSet(ctx, env, "spain-roads", `{"type":`)
	var decodeErr *spatial.DecodeError
	assert.True(t, errors.As(err, &decodeErr))

	err = runExtentSet(ctx, env, "spain-roads", `{"type":"Point","coordinates":[500,0]}`)
	var geomErr *spatial.GeometryError
	assert.True(t, errors.As(err, &geomErr))
}

func TestGeoJSONInput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "extent.geojson")
	require.NoError(t, os.WriteFile(file, []byte(ukPolygon), 0o644))

	v, err := geoJSONInput(nil, []string{spainPolygon}, "")
	require.NoError(t, err)
	assert.Equal(t, spainPolygon, v)

	v, err = geoJSONInput(nil, nil, file)
	require.NoError(t, err)
	assert.Equal(t, ukPolygon, v)

	v, err = geoJSONInput(strings.NewReader(spainPolygon), nil, "-")
	require.NoError(t, err)
	assert.Equal(t, spainPolygon, v)

	_, err = geoJSONInput(nil, []string{spainPolygon}, file)
	assert.Error(t, err)
	_, err = geoJSONInput(nil, nil, "")
	assert.Error(t, err)
	_, err = geoJSONInput(nil, nil, filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestExtentQuery(t *testing.T) {
	env := newTestCatalog(t)
	ctx := context.Background()
	uk := createPackage(t, env, "uk-rivers", ukPolygon)
	es := createPackage(t, env, "spain-roads", spainPolygon)

	var out bytes.Buffer
	require.NoError(t, runExtentQuery(ctx, env, &out, "-10,45,5,60", ""))
	assert.Equal(t, uk.ID+"\n", out.String())

	out.Reset()
	require.NoError(t, runExtentQuery(ctx, env, &out, "-10,30,5,60", "EPSG:4326"))
	assert.Contains(t, out.String(), uk.ID)
	assert.Contains(t, out.String(), es.ID)

	out.Reset()
	require.NoError(t, runExtentQuery(ctx, env, &out, "100,-10,110,0", ""))
	assert.Empty(t, out.String())

	assert.True(t, errors.Is(runExtentQuery(ctx, env, &out, "1,2,3", ""), spatial.ErrInvalidBBox))
	assert.True(t, errors.Is(runExtentQuery(ctx, env, &out, "-10,45,5,60", "urn:x"), spatial.ErrUnsupportedCRS))
}

func writeShapefile(t *testing.T, rows map[string][4]float64, order []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extents.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("DATASET", 40)}))

	for _, name := range order {
		b := rows[name]
		pl := shp.NewPolyLine([][]shp.Point{{
			{X: b[0], Y: b[1]}, {X: b[0], Y: b[3]}, {X: b[2], Y: b[3]}, {X: b[2], Y: b[1]}, {X: b[0], Y: b[1]},
		}})
		poly := shp.Polygon(*pl)
		n := w.Write(&poly)
		require.NoError(t, w.WriteAttribute(int(n), 0, name))
	}
	w.Close()
	return path
}

func TestImportShapefile(t *testing.T) {
	env := newTestCatalog(t)
	ctx := context.Background()
	uk := createPackage(t, env, "uk-rivers", "")
	es := createPackage(t, env, "spain-roads", "")

	path := writeShapefile(t, map[string][4]float64{
		"uk-rivers":   {-6, 49, 2, 59},
		"spain-roads": {-9, 36, 3, 43},
		"unknown":     {0, 0, 1, 1},
		"too-far":     {-200, 0, 1, 1},
	}, []string{"uk-rivers", "spain-roads", "unknown", "too-far"})
	createPackage(t, env, "too-far", "")

	res, err := runImportShapefile(ctx, env, path, "dataset", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Saved)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, 1, res.Invalid)

	ext, err := env.Extents.GetExtent(ctx, uk.ID)
	require.NoError(t, err)
	assert.Equal(t, spatial.BBox{MinX: -6, MinY: 49, MaxX: 2, MaxY: 59}, ext.Bounds)

	var out bytes.Buffer
	require.NoError(t, runExtentQuery(ctx, env, &out, "-10,37,0,40", ""))
	assert.Equal(t, es.ID+"\n", out.String())
}

func TestImportShapefile_Errors(t *testing.T) {
	env := newTestCatalog(t)
	ctx := context.Background()
	path := writeShapefile(t, map[string][4]float64{"a": {0, 0, 1, 1}}, []string{"a"})

	_, err := runImportShapefile(ctx, env, path, "", false)
	assert.Error(t, err)

	_, err = runImportShapefile(ctx, env, path, "code", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "code" not found`)
}

func TestReindex(t *testing.T) {
	env := newTestCatalog(t)
	ctx := context.Background()

	insertPackage(t, env, "id-uk", "uk-rivers", ukPolygon)
	insertPackage(t, env, "id-es", "spain-roads", spainPolygon)
	insertPackage(t, env, "id-bad", "broken", `{"type":"Polygon"`)
	insertPackage(t, env, "id-none", "no-extent", "")

	g, err := spatial.ParseGeoJSON(ukPolygon, spatial.WGS84)
	require.NoError(t, err)
	require.NoError(t, env.Extents.SaveExtent(ctx, "id-none", g))

	res, err := runReindex(ctx, env, 3)
	require.NoError(t, err)
	assert.Equal(t, &reindexResult{Indexed: 2, Cleared: 1, Failed: 1}, res)

	n, err := env.Extents.CountExtents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = env.Extents.GetExtent(ctx, "id-none")
	assert.True(t, errors.Is(err, spatial.ErrExtentNotFound))
}

func TestReindex_ManyPages(t *testing.T) {
	env := newTestCatalog(t)
	ctx := context.Background()

	total := reindexPageSize + 5
	for i := 0; i < total; i++ {
		insertPackage(t, env, fmt.Sprintf("id-%03d", i), fmt.Sprintf("pkg-%03d", i), spainPolygon)
	}

	res, err := runReindex(ctx, env, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(total), res.Indexed)
}
