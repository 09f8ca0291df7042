package spatial

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SQLiteExtentStore implements ExtentStore on SQLite. Geometries are kept as
// GeoJSON next to their envelope, so intersection is envelope overlap and
// reprojection is not available.
type SQLiteExtentStore struct {
	db   *sql.DB
	srid int
}

// NewSQLiteExtentStore wraps an open SQLite handle. The caller owns conn.
func NewSQLiteExtentStore(conn *sql.DB, srid int) *SQLiteExtentStore {
	return &SQLiteExtentStore{db: conn, srid: srid}
}

const sqliteExtentMigration = `
CREATE TABLE IF NOT EXISTS package_extent (
	package_id TEXT PRIMARY KEY,
	geojson    TEXT NOT NULL,
	srid       INTEGER NOT NULL,
	minx       REAL NOT NULL,
	miny       REAL NOT NULL,
	maxx       REAL NOT NULL,
	maxy       REAL NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_package_extent_x ON package_extent(minx, maxx);
CREATE INDEX IF NOT EXISTS idx_package_extent_y ON package_extent(miny, maxy);
`

const sqliteUpsertExtent = `
INSERT INTO package_extent (package_id, geojson, srid, minx, miny, maxx, maxy, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(package_id) DO UPDATE SET
	geojson = excluded.geojson,
	srid = excluded.srid,
	minx = excluded.minx,
	miny = excluded.miny,
	maxx = excluded.maxx,
	maxy = excluded.maxy,
	updated_at = excluded.updated_at
`

// Migrate implements ExtentStore.
func (s *SQLiteExtentStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteExtentMigration)
	return eris.Wrap(err, "sqlite: migrate extents")
}

// Close implements ExtentStore. The shared handle is closed by its owner.
func (s *SQLiteExtentStore) Close() error {
	return nil
}

type extentRow struct {
	geojson string
	bounds  BBox
}

func (s *SQLiteExtentStore) prepare(g geom.T) (*extentRow, error) {
	if g.SRID() != 0 && g.SRID() != s.srid {
		return nil, eris.Wrapf(ErrUnsupportedCRS, "geometry SRID %d, store uses %d", g.SRID(), s.srid)
	}
	data, err := MarshalGeoJSON(g)
	if err != nil {
		return nil, err
	}
	return &extentRow{geojson: data, bounds: BoundsOf(g)}, nil
}

// SaveExtent implements ExtentStore.
func (s *SQLiteExtentStore) SaveExtent(ctx context.Context, packageID string, g geom.T) error {
	if g == nil {
		return s.DeleteExtent(ctx, packageID)
	}
	row, err := s.prepare(g)
	if err != nil {
		return err
	}
	b := row.bounds
	_, err = s.db.ExecContext(ctx, sqliteUpsertExtent,
		packageID, row.geojson, s.srid, b.MinX, b.MinY, b.MaxX, b.MaxY, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save extent %s", packageID)
}

// DeleteExtent implements ExtentStore.
func (s *SQLiteExtentStore) DeleteExtent(ctx context.Context, packageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM package_extent WHERE package_id = ?`, packageID)
	return eris.Wrapf(err, "sqlite: delete extent %s", packageID)
}

// GetExtent implements ExtentStore.
func (s *SQLiteExtentStore) GetExtent(ctx context.Context, packageID string) (*Extent, error) {
	var (
		e    Extent
		data string
		srid int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT package_id, geojson, srid, minx, miny, maxx, maxy, updated_at FROM package_extent WHERE package_id = ?`,
		packageID,
	).Scan(&e.PackageID, &data, &srid, &e.Bounds.MinX, &e.Bounds.MinY, &e.Bounds.MaxX, &e.Bounds.MaxY, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExtentNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get extent %s", packageID)
	}

	g, err := ParseGeoJSON(data, srid)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode extent %s", packageID)
	}
	e.Geometry = g
	return &e, nil
}

// QueryBBox implements ExtentStore.
func (s *SQLiteExtentStore) QueryBBox(ctx context.Context, bbox BBox, srid int) ([]string, error) {
	if srid > 0 && srid != s.srid {
		return nil, eris.Wrapf(ErrUnsupportedCRS, "cannot reproject EPSG:%d to EPSG:%d", srid, s.srid)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT package_id FROM package_extent
		WHERE minx <= ? AND maxx >= ? AND miny <= ? AND maxy >= ?
		ORDER BY package_id`,
		bbox.MaxX, bbox.MinX, bbox.MaxY, bbox.MinY,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query bbox")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bbox row")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate bbox rows")
}

// CountExtents implements ExtentStore.
func (s *SQLiteExtentStore) CountExtents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM package_extent`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count extents")
	}
	return n, nil
}

// BulkSaveExtents implements ExtentStore.
func (s *SQLiteExtentStore) BulkSaveExtents(ctx context.Context, extents []Extent) (int64, error) {
	if len(extents) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk extents")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertExtent)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare bulk extents")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, e := range extents {
		if e.Geometry == nil {
			continue
		}
		row, err := s.prepare(e.Geometry)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk extent %s", e.PackageID)
		}
		b := row.bounds
		if _, err := stmt.ExecContext(ctx, e.PackageID, row.geojson, s.srid, b.MinX, b.MinY, b.MaxX, b.MaxY, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk extent %s", e.PackageID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk extents")
	}
	return n, nil
}
