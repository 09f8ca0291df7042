package spatial

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/spatial-catalog/internal/db"
)

// PostgresExtentStore implements ExtentStore on PostGIS.
type PostgresExtentStore struct {
	pool    db.Pool
	srid    int
	closeFn func()
}

// NewPostgresExtentStore creates a store whose extents are kept in srid.
func NewPostgresExtentStore(pool db.Pool, srid int) *PostgresExtentStore {
	return &PostgresExtentStore{pool: pool, srid: srid}
}

// WithCloser registers a function run by Close, typically the pool's Close.
func (s *PostgresExtentStore) WithCloser(fn func()) *PostgresExtentStore {
	s.closeFn = fn
	return s
}

// SRID returns the reference system extents are stored in.
func (s *PostgresExtentStore) SRID() int {
	return s.srid
}

// encode marshals g to EWKB, tagging it with the store SRID when untagged.
func (s *PostgresExtentStore) encode(g geom.T) ([]byte, int, error) {
	srid := g.SRID()
	if srid == 0 {
		tagged, err := WithSRID(g, s.srid)
		if err != nil {
			return nil, 0, err
		}
		g, srid = tagged, s.srid
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, 0, eris.Wrap(err, "spatial: encode EWKB")
	}
	return data, srid, nil
}

// SaveExtent implements ExtentStore.
func (s *PostgresExtentStore) SaveExtent(ctx context.Context, packageID string, g geom.T) error {
	if g == nil {
		return s.DeleteExtent(ctx, packageID)
	}

	data, srid, err := s.encode(g)
	if err != nil {
		return err
	}

	geomExpr := "ST_GeomFromEWKB($2)"
	args := []any{packageID, data}
	if srid != s.srid {
		geomExpr = "ST_Transform(ST_GeomFromEWKB($2), $3)"
		args = append(args, s.srid)
	}

	sql := `
		INSERT INTO spatial.package_extent (package_id, the_geom, updated_at)
		VALUES ($1, ` + geomExpr + `, now())
		ON CONFLICT (package_id) DO UPDATE SET
			the_geom = EXCLUDED.the_geom,
			updated_at = now()
	`
	_, err = s.pool.Exec(ctx, sql, args...)
	return eris.Wrapf(err, "spatial: save extent %s", packageID)
}

// DeleteExtent implements ExtentStore.
func (s *PostgresExtentStore) DeleteExtent(ctx context.Context, packageID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM spatial.package_extent WHERE package_id = $1`, packageID)
	return eris.Wrapf(err, "spatial: delete extent %s", packageID)
}

// GetExtent implements ExtentStore.
func (s *PostgresExtentStore) GetExtent(ctx context.Context, packageID string) (*Extent, error) {
	sql := `
		SELECT package_id, ST_AsEWKB(the_geom), updated_at
		FROM spatial.package_extent WHERE package_id = $1
	`
	var (
		e    Extent
		data []byte
	)
	err := s.pool.QueryRow(ctx, sql, packageID).Scan(&e.PackageID, &data, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExtentNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: get extent %s", packageID)
	}

	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: decode extent %s", packageID)
	}
	e.Geometry = g
	e.Bounds = BoundsOf(g)
	return &e, nil
}

// QueryBBox implements ExtentStore.
func (s *PostgresExtentStore) QueryBBox(ctx context.Context, bbox BBox, srid int) ([]string, error) {
	if srid <= 0 {
		srid = s.srid
	}

	envelope := "ST_MakeEnvelope($1, $2, $3, $4, $5)"
	args := []any{bbox.MinX, bbox.MinY, bbox.MaxX, bbox.MaxY, srid}
	if srid != s.srid {
		envelope = "ST_Transform(" + envelope + ", $6)"
		args = append(args, s.srid)
	}

	sql := `
		SELECT package_id FROM spatial.package_extent
		WHERE ST_Intersects(the_geom, ` + envelope + `)
		ORDER BY package_id
	`
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: query bbox")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "spatial: scan bbox row")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "spatial: iterate bbox rows")
	}
	return ids, nil
}

// CountExtents implements ExtentStore.
func (s *PostgresExtentStore) CountExtents(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM spatial.package_extent`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "spatial: count extents")
	}
	return n, nil
}

// BulkSaveExtents implements ExtentStore. Geometries must already be in the
// store SRID or untagged.
func (s *PostgresExtentStore) BulkSaveExtents(ctx context.Context, extents []Extent) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(extents))
	for _, e := range extents {
		if e.Geometry == nil {
			continue
		}
		data, srid, err := s.encode(e.Geometry)
		if err != nil {
			return 0, err
		}
		if srid != s.srid {
			return 0, eris.Wrapf(ErrUnsupportedCRS, "bulk extent %s has SRID %d, store uses %d", e.PackageID, srid, s.srid)
		}
		rows = append(rows, []any{e.PackageID, data, now})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "spatial.package_extent",
		Columns:      []string{"package_id", "the_geom", "updated_at"},
		ConflictKeys: []string{"package_id"},
		TempTypes: map[string]string{
			"package_id": "text",
			"the_geom":   "bytea",
			"updated_at": "timestamptz",
		},
		SelectExprs: map[string]string{"the_geom": "ST_GeomFromEWKB(the_geom)"},
	}, rows)
}

// Migrate implements ExtentStore.
func (s *PostgresExtentStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Close implements ExtentStore.
func (s *PostgresExtentStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
