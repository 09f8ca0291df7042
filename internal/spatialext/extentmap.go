package spatialext

import (
	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/plugin"
	"github.com/sells-group/spatial-catalog/internal/stream"
)

// ExtentMap shows a package's extent on its dataset page. It also registers
// the extension's template and public directories with the host.
type ExtentMap struct{}

// NewExtentMap creates the extent map plugin.
func NewExtentMap() *ExtentMap { return &ExtentMap{} }

// Name implements plugin.Plugin.
func (e *ExtentMap) Name() string { return "dataset_extent_map" }

// UpdateConfig implements plugin.Configurer.
func (e *ExtentMap) UpdateConfig(cfg *config.Config) {
	cfg.Server.ExtraTemplatePaths = config.AppendPath(cfg.Server.ExtraTemplatePaths, TemplatePath)
	cfg.Server.ExtraPublicPaths = config.AppendPath(cfg.Server.ExtraPublicPaths, PublicPath)
}

// Filter implements plugin.StreamFilter.
func (e *ExtentMap) Filter(rc *plugin.RenderContext, s *stream.Stream) error {
	if !rc.Is("package", "read") || rc.Package == nil || rc.Package.ID == "" {
		return nil
	}
	extent, ok := rc.Package.Extra(model.SpatialKey)
	if !ok || extent == "" {
		return nil
	}
	data := struct {
		Extent string
		Title  string
	}{Extent: extent, Title: "Geographic extent"}
	return inject(s, data,
		insertion{selector: "body div.dataset", snippet: "map"},
		insertion{selector: "head", snippet: "map_header"},
		insertion{selector: "body", snippet: "map_footer"},
	)
}
