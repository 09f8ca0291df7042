package spatial

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockKey is hashed into the advisory lock key held while
// migrating, so concurrent processes apply each file once.
const migrationLockKey = "spatial.schema_migrations"

// Migrate applies the embedded PostGIS migrations not yet recorded in
// spatial.schema_migrations, in file name order. Each file runs in its own
// transaction together with its tracking row.
func Migrate(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "spatial.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", migrationLockKey); err != nil {
		return eris.Wrap(err, "spatial: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock(hashtext($1))", migrationLockKey); err != nil {
			log.Warn("spatial: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if err := ensureMigrationTable(ctx, pool); err != nil {
		return err
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}

		log.Info("applying migration", zap.String("file", name))
		if err := applyMigration(ctx, pool, name); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, pool db.Pool, name string) error {
	data, err := migrationFS.ReadFile("migrations/" + name)
	if err != nil {
		return eris.Wrapf(err, "spatial: read migration %s", name)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "spatial: begin migration %s", name)
	}
	if _, err := tx.Exec(ctx, string(data)); err != nil {
		_ = tx.Rollback(ctx)
		return eris.Wrapf(err, "spatial: apply migration %s", name)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO spatial.schema_migrations (filename, applied_at) VALUES ($1, now())",
		name,
	); err != nil {
		_ = tx.Rollback(ctx)
		return eris.Wrapf(err, "spatial: record migration %s", name)
	}
	return eris.Wrapf(tx.Commit(ctx), "spatial: commit migration %s", name)
}

// migrationNames lists embedded migration files sorted by name.
func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "spatial: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func ensureMigrationTable(ctx context.Context, pool db.Pool) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS spatial;
		CREATE TABLE IF NOT EXISTS spatial.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "spatial: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool db.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM spatial.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "spatial: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "spatial: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
