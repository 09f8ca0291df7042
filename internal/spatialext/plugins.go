package spatialext

import (
	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/plugin"
	"github.com/sells-group/spatial-catalog/internal/spatial"
)

// Plugins returns the extension's plugins in registration order.
func Plugins(store spatial.ExtentStore, cfg *config.Config) []plugin.Plugin {
	return []plugin.Plugin{
		NewMetadata(store, cfg.Spatial.SRID),
		NewQuery(store, cfg.Spatial.SRID),
		NewQueryWidget(cfg.Spatial.DefaultMapExtent),
		NewExtentMap(),
	}
}
