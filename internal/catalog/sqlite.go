package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spatial-catalog/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite wraps an open SQLite handle. Close closes the handle.
func NewSQLite(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS packages (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL DEFAULT '',
	notes      TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT 'active',
	extras     TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_packages_state ON packages(state);
`

// Migrate creates the packages table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate catalog")
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreatePackage(ctx context.Context, pkg *model.Package) error {
	extras, err := marshalExtras(pkg.Extras)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO packages (id, name, title, notes, state, extras, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pkg.ID, pkg.Name, pkg.Title, pkg.Notes, string(pkg.State), extras, pkg.CreatedAt, pkg.UpdatedAt,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrConflict, "sqlite: insert package %s", pkg.Name)
	}
	return eris.Wrapf(err, "sqlite: insert package %s", pkg.Name)
}

func (s *SQLiteStore) UpdatePackage(ctx context.Context, pkg *model.Package) error {
	extras, err := marshalExtras(pkg.Extras)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE packages SET name = ?, title = ?, notes = ?, state = ?, extras = ?, updated_at = ? WHERE id = ?`,
		pkg.Name, pkg.Title, pkg.Notes, string(pkg.State), extras, pkg.UpdatedAt, pkg.ID,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrConflict, "sqlite: update package %s", pkg.Name)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update package %s", pkg.ID)
	}
	return checkRowsAffected(res, pkg.ID)
}

const sqliteSelectPackage = `SELECT id, name, title, notes, state, extras, created_at, updated_at FROM packages`

func (s *SQLiteStore) GetPackage(ctx context.Context, idOrName string) (*model.Package, error) {
	row := s.db.QueryRowContext(ctx,
		sqliteSelectPackage+` WHERE id = ? OR name = ? ORDER BY (id = ?) DESC LIMIT 1`,
		idOrName, idOrName, idOrName,
	)
	pkg, err := scanPackage(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get package %s", idOrName)
	}
	return pkg, nil
}

func (s *SQLiteStore) DeletePackage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE packages SET state = ?, updated_at = ? WHERE id = ?`,
		string(model.StateDeleted), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete package %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) PurgePackage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: purge package %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) SearchPackages(ctx context.Context, params model.SearchParams) (*model.SearchResult, error) {
	params.Normalize()
	where, args := sqliteSearchWhere(params)

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`+where, args...).Scan(&count); err != nil {
		return nil, eris.Wrap(err, "sqlite: count packages")
	}

	rows, err := s.db.QueryContext(ctx,
		sqliteSelectPackage+where+` ORDER BY name LIMIT ? OFFSET ?`,
		append(args, params.Rows, params.Start)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search packages")
	}
	defer rows.Close() //nolint:errcheck

	results, err := scanPackages(rows)
	if err != nil {
		return nil, err
	}
	return &model.SearchResult{Count: count, Results: results, Q: params.Q}, nil
}

func sqliteSearchWhere(params model.SearchParams) (string, []any) {
	clauses := []string{"state = ?"}
	args := []any{string(model.StateActive)}

	if text := strings.TrimSpace(params.Text); text != "" {
		for _, term := range strings.Fields(strings.ToLower(text)) {
			clauses = append(clauses, "(lower(name) LIKE ? OR lower(title) LIKE ? OR lower(notes) LIKE ?)")
			like := "%" + term + "%"
			args = append(args, like, like, like)
		}
	}
	if params.FilterIDs != nil {
		if len(params.FilterIDs) == 0 {
			clauses = append(clauses, "0")
		} else {
			ph := strings.TrimSuffix(strings.Repeat("?,", len(params.FilterIDs)), ",")
			clauses = append(clauses, "id IN ("+ph+")")
			for _, id := range params.FilterIDs {
				args = append(args, id)
			}
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) ListPackages(ctx context.Context, limit, offset int) ([]model.Package, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteSelectPackage+` WHERE state = ? ORDER BY name LIMIT ? OFFSET ?`,
		string(model.StateActive), limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list packages")
	}
	defer rows.Close() //nolint:errcheck
	return scanPackages(rows)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "package %s", id)
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPackage(row scannable) (*model.Package, error) {
	var p model.Package
	var state, extras string
	err := row.Scan(&p.ID, &p.Name, &p.Title, &p.Notes, &state, &extras, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan package")
	}
	p.State = model.State(state)
	if err := json.Unmarshal([]byte(extras), &p.Extras); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal extras")
	}
	return &p, nil
}

func scanPackages(rows *sql.Rows) ([]model.Package, error) {
	out := []model.Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate packages")
}

func marshalExtras(extras []model.Extra) (string, error) {
	if extras == nil {
		extras = []model.Extra{}
	}
	data, err := json.Marshal(extras)
	if err != nil {
		return "", eris.Wrap(err, "catalog: marshal extras")
	}
	return string(data), nil
}
