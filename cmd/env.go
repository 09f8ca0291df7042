package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/catalog"
	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/db"
	"github.com/sells-group/spatial-catalog/internal/plugin"
	"github.com/sells-group/spatial-catalog/internal/spatial"
	"github.com/sells-group/spatial-catalog/internal/spatialext"
)

// catalogEnv holds the stores and services shared by the subcommands.
type catalogEnv struct {
	Config   *config.Config
	Catalog  catalog.Store
	Extents  spatial.ExtentStore
	Registry *plugin.Registry
	Service  *catalog.Service

	closers []func()
}

// openStores connects the catalog and extent stores for cfg.Store.Driver.
// Plugins are not set up; call initPlugins for commands that go through
// the catalog service.
func openStores(ctx context.Context, cfg *config.Config) (*catalogEnv, error) {
	env := &catalogEnv{Config: cfg}

	switch cfg.Store.Driver {
	case "postgres":
		pool, err := catalog.OpenPool(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, pool.Close)
		env.Catalog = catalog.NewPostgresStore(pool)
		env.Extents = spatial.NewPostgresExtentStore(pool, cfg.Spatial.SRID)
	case "sqlite":
		conn, err := db.OpenSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, func() { _ = conn.Close() })
		env.Catalog = catalog.NewSQLite(conn)
		env.Extents = spatial.NewSQLiteExtentStore(conn, cfg.Spatial.SRID)
	default:
		return nil, eris.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	if cfg.Spatial.CacheEntries > 0 {
		cache := spatial.NewQueryCache(cfg.Spatial.CacheEntries, time.Duration(cfg.Spatial.CacheTTLSecs)*time.Second)
		env.Extents = spatial.NewCachedExtentStore(env.Extents, cache)
	}

	zap.L().Debug("stores opened",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("srid", cfg.Spatial.SRID),
	)
	return env, nil
}

// initPlugins registers and configures the spatial plugins and builds the
// catalog service around them.
func (e *catalogEnv) initPlugins(ctx context.Context) error {
	reg, err := plugin.NewRegistry(spatialext.Plugins(e.Extents, e.Config)...)
	if err != nil {
		return err
	}
	reg.UpdateConfig(e.Config)
	if err := reg.Configure(ctx, e.Config); err != nil {
		return err
	}
	e.Registry = reg
	e.Service = catalog.NewService(e.Catalog, reg)
	return nil
}

// Close releases the database handles.
func (e *catalogEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// openCatalog validates cfg for CLI use, opens the stores and sets up plugins.
func openCatalog(ctx context.Context, cfg *config.Config) (*catalogEnv, error) {
	if err := cfg.Validate("cli"); err != nil {
		return nil, err
	}
	env, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := env.initPlugins(ctx); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}
