package spatial

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func newMockExtentStore(t *testing.T) (*PostgresExtentStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresExtentStore(mock, WGS84), mock
}

func testPolygon(t *testing.T) geom.T {
	t.Helper()
	g, err := ParseGeoJSON(polygonJSON, WGS84)
	require.NoError(t, err)
	return g
}

func TestPostgresSaveExtent_Upsert(t *testing.T) {
	s, mock := newMockExtentStore(t)
	g := testPolygon(t)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO spatial.package_extent .+ST_GeomFromEWKB\(\$2\).+ON CONFLICT \(package_id\) DO UPDATE`).
		WithArgs("pkg-1", data).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveExtent(context.Background(), "pkg-1", g))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveExtent_UntaggedGetsStoreSRID(t *testing.T) {
	s, mock := newMockExtentStore(t)
	pt := geom.NewPointFlat(geom.XY, []float64{1, 2})
	tagged := geom.NewPointFlat(geom.XY, []float64{1, 2}).SetSRID(WGS84)
	data, err := ewkb.Marshal(tagged, ewkb.NDR)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO spatial.package_extent`).
		WithArgs("pkg-1", data).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveExtent(context.Background(), "pkg-1", pt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveExtent_TransformsForeignSRID(t *testing.T) {
	s, mock := newMockExtentStore(t)
	g, err := ParseGeoJSON(`{"type":"Point","coordinates":[530000,180000]}`, 27700)
	require.NoError(t, err)

	mock.ExpectExec(`ST_Transform\(ST_GeomFromEWKB\(\$2\), \$3\)`).
		WithArgs("pkg-1", pgxmock.AnyArg(), WGS84).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveExtent(context.Background(), "pkg-1", g))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveExtent_NilDeletes(t *testing.T) {
	s, mock := newMockExtentStore(t)

	mock.ExpectExec(`DELETE FROM spatial.package_extent WHERE package_id = \$1`).
		WithArgs("pkg-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.SaveExtent(context.Background(), "pkg-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveExtent_Error(t *testing.T) {
	s, mock := newMockExtentStore(t)

	mock.ExpectExec(`INSERT INTO spatial.package_extent`).
		WillReturnError(fmt.Errorf("connection refused"))

	err := s.SaveExtent(context.Background(), "pkg-1", testPolygon(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save extent pkg-1")
}

func TestPostgresGetExtent_Success(t *testing.T) {
	s, mock := newMockExtentStore(t)
	g := testPolygon(t)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	require.NoError(t, err)
	now := time.Now()

	mock.ExpectQuery(`SELECT package_id, ST_AsEWKB\(the_geom\), updated_at`).
		WithArgs("pkg-1").
		WillReturnRows(pgxmock.NewRows([]string{"package_id", "st_asewkb", "updated_at"}).
			AddRow("pkg-1", data, now))

	e, err := s.GetExtent(context.Background(), "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, "pkg-1", e.PackageID)
	assert.Equal(t, WGS84, e.Geometry.SRID())
	assert.Equal(t, BBox{MinX: -10, MinY: 35, MaxX: 30, MaxY: 60}, e.Bounds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetExtent_NotFound(t *testing.T) {
	s, mock := newMockExtentStore(t)

	mock.ExpectQuery(`SELECT package_id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetExtent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrExtentNotFound)
}

func TestPostgresQueryBBox_SameSRID(t *testing.T) {
	s, mock := newMockExtentStore(t)
	b := BBox{MinX: -5, MinY: 40, MaxX: 5, MaxY: 50}

	mock.ExpectQuery(`WHERE ST_Intersects\(the_geom, ST_MakeEnvelope\(\$1, \$2, \$3, \$4, \$5\)\)`).
		WithArgs(b.MinX, b.MinY, b.MaxX, b.MaxY, WGS84).
		WillReturnRows(pgxmock.NewRows([]string{"package_id"}).AddRow("a").AddRow("b"))

	ids, err := s.QueryBBox(context.Background(), b, WGS84)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryBBox_Transforms(t *testing.T) {
	s, mock := newMockExtentStore(t)
	b := BBox{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000}

	mock.ExpectQuery(`ST_Transform\(ST_MakeEnvelope\(\$1, \$2, \$3, \$4, \$5\), \$6\)`).
		WithArgs(b.MinX, b.MinY, b.MaxX, b.MaxY, 3857, WGS84).
		WillReturnRows(pgxmock.NewRows([]string{"package_id"}))

	ids, err := s.QueryBBox(context.Background(), b, 3857)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryBBox_Error(t *testing.T) {
	s, mock := newMockExtentStore(t)

	mock.ExpectQuery(`SELECT package_id FROM spatial.package_extent`).
		WillReturnError(fmt.Errorf("connection lost"))

	_, err := s.QueryBBox(context.Background(), BBox{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query bbox")
}

func TestPostgresCountExtents(t *testing.T) {
	s, mock := newMockExtentStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM spatial.package_extent`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountExtents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestPostgresBulkSaveExtents(t *testing.T) {
	s, mock := newMockExtentStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_spatial_package_extent"}, []string{"package_id", "the_geom", "updated_at"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "spatial"."package_extent"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.BulkSaveExtents(context.Background(), []Extent{
		{PackageID: "a", Geometry: testPolygon(t)},
		{PackageID: "skipped"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostgresBulkSaveExtents_RejectsForeignSRID(t *testing.T) {
	s, _ := newMockExtentStore(t)
	g, err := ParseGeoJSON(`{"type":"Point","coordinates":[530000,180000]}`, 27700)
	require.NoError(t, err)

	_, err = s.BulkSaveExtents(context.Background(), []Extent{{PackageID: "a", Geometry: g}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupportedCRS))
}

func TestPostgresClose(t *testing.T) {
	closed := false
	s := NewPostgresExtentStore(nil, WGS84).WithCloser(func() { closed = true })
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
