package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/db"
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgresStore wraps an existing pool. The caller owns the pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPool connects to Postgres, retrying transient failures such as a
// server that is still starting.
func OpenPool(ctx context.Context, cfg config.StoreConfig) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if cfg.Pool.MaxConns > 0 {
		maxConns = cfg.Pool.MaxConns
	}
	if cfg.Pool.MinConns > 0 {
		minConns = cfg.Pool.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	retry := resilience.FromConfig(cfg.Retry)
	retry.OnRetry = resilience.RetryLogger("catalog", "postgres connect")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: create pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "postgres: ping")
		}
		return pool, nil
	})
}

// WithCloser sets a function called by Close, typically the pool's Close.
func (s *PostgresStore) WithCloser(fn func()) *PostgresStore {
	s.closeFn = fn
	return s
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS packages (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL DEFAULT '',
	notes      TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT 'active',
	extras     JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_packages_state ON packages(state);
`

// Migrate creates the packages table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate catalog")
}

// Close releases the pool if a closer was set.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreatePackage(ctx context.Context, pkg *model.Package) error {
	extras, err := json.Marshal(nonNilExtras(pkg.Extras))
	if err != nil {
		return eris.Wrap(err, "catalog: marshal extras")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO packages (id, name, title, notes, state, extras, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pkg.ID, pkg.Name, pkg.Title, pkg.Notes, string(pkg.State), extras, pkg.CreatedAt, pkg.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return eris.Wrapf(ErrConflict, "postgres: insert package %s", pkg.Name)
	}
	return eris.Wrapf(err, "postgres: insert package %s", pkg.Name)
}

func (s *PostgresStore) UpdatePackage(ctx context.Context, pkg *model.Package) error {
	extras, err := json.Marshal(nonNilExtras(pkg.Extras))
	if err != nil {
		return eris.Wrap(err, "catalog: marshal extras")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE packages SET name = $1, title = $2, notes = $3, state = $4, extras = $5, updated_at = $6 WHERE id = $7`,
		pkg.Name, pkg.Title, pkg.Notes, string(pkg.State), extras, pkg.UpdatedAt, pkg.ID,
	)
	if isUniqueViolation(err) {
		return eris.Wrapf(ErrConflict, "postgres: update package %s", pkg.Name)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: update package %s", pkg.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "package %s", pkg.ID)
	}
	return nil
}

const pgSelectPackage = `SELECT id, name, title, notes, state, extras, created_at, updated_at FROM packages`

func (s *PostgresStore) GetPackage(ctx context.Context, idOrName string) (*model.Package, error) {
	row := s.pool.QueryRow(ctx,
		pgSelectPackage+` WHERE id = $1 OR name = $1 ORDER BY (id = $1) DESC LIMIT 1`,
		idOrName,
	)
	pkg, err := scanPgPackage(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get package %s", idOrName)
	}
	return pkg, nil
}

func (s *PostgresStore) DeletePackage(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE packages SET state = $1, updated_at = now() WHERE id = $2`,
		string(model.StateDeleted), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete package %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "package %s", id)
	}
	return nil
}

func (s *PostgresStore) PurgePackage(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM packages WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: purge package %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "package %s", id)
	}
	return nil
}

func (s *PostgresStore) SearchPackages(ctx context.Context, params model.SearchParams) (*model.SearchResult, error) {
	params.Normalize()
	where, args := pgSearchWhere(params)

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM packages`+where, args...).Scan(&count); err != nil {
		return nil, eris.Wrap(err, "postgres: count packages")
	}

	n := len(args)
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("%s%s ORDER BY name LIMIT $%d OFFSET $%d", pgSelectPackage, where, n+1, n+2),
		append(args, params.Rows, params.Start)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search packages")
	}
	results, err := collectPgPackages(rows)
	if err != nil {
		return nil, err
	}
	return &model.SearchResult{Count: count, Results: results, Q: params.Q}, nil
}

func pgSearchWhere(params model.SearchParams) (string, []any) {
	clauses := []string{"state = $1"}
	args := []any{string(model.StateActive)}

	for _, term := range strings.Fields(params.Text) {
		args = append(args, "%"+term+"%")
		p := len(args)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR title ILIKE $%d OR notes ILIKE $%d)", p, p, p))
	}
	if params.FilterIDs != nil {
		args = append(args, params.FilterIDs)
		clauses = append(clauses, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *PostgresStore) ListPackages(ctx context.Context, limit, offset int) ([]model.Package, error) {
	rows, err := s.pool.Query(ctx,
		pgSelectPackage+` WHERE state = $1 ORDER BY name LIMIT $2 OFFSET $3`,
		string(model.StateActive), limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list packages")
	}
	return collectPgPackages(rows)
}

func scanPgPackage(row pgx.Row) (*model.Package, error) {
	var p model.Package
	var state string
	var extras []byte
	err := row.Scan(&p.ID, &p.Name, &p.Title, &p.Notes, &state, &extras, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan package")
	}
	p.State = model.State(state)
	if err := json.Unmarshal(extras, &p.Extras); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal extras")
	}
	return &p, nil
}

func collectPgPackages(rows pgx.Rows) ([]model.Package, error) {
	defer rows.Close()
	out := []model.Package{}
	for rows.Next() {
		p, err := scanPgPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate packages")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nonNilExtras(extras []model.Extra) []model.Extra {
	if extras == nil {
		return []model.Extra{}
	}
	return extras
}
