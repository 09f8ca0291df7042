// Package plugin defines the hooks catalog extensions implement and the
// registry that dispatches to them.
//
// A plugin implements Plugin plus any subset of the hook interfaces below.
// The registry discovers capabilities with type assertions, so a plugin only
// carries the hooks it cares about.
package plugin

import (
	"context"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/stream"
)

// Plugin is implemented by every extension.
type Plugin interface {
	// Name is the unique registry key, e.g. "spatial_metadata".
	Name() string
}

// Configurable plugins run setup once the configuration is loaded.
type Configurable interface {
	Configure(ctx context.Context, cfg *config.Config) error
}

// Configurer plugins amend the configuration before the server starts.
type Configurer interface {
	UpdateConfig(cfg *config.Config)
}

// PackageController plugins observe package lifecycle and search.
type PackageController interface {
	Create(ctx context.Context, pkg *model.Package) error
	Edit(ctx context.Context, pkg *model.Package) error
	Delete(ctx context.Context, pkg *model.Package) error
	BeforeSearch(ctx context.Context, params *model.SearchParams) error
}

// Routes plugins register HTTP handlers on the host router.
type Routes interface {
	BeforeMap(r chi.Router)
}

// StreamFilter plugins edit rendered pages before they are written out.
type StreamFilter interface {
	Filter(rc *RenderContext, s *stream.Stream) error
}

// RenderContext describes the page being rendered.
type RenderContext struct {
	Controller string
	Action     string
	Package    *model.Package
	Params     url.Values
}

// Is reports whether the page belongs to controller and one of actions.
func (rc *RenderContext) Is(controller string, actions ...string) bool {
	if rc == nil || rc.Controller != controller {
		return false
	}
	for _, a := range actions {
		if rc.Action == a {
			return true
		}
	}
	return false
}

// NopController can be embedded by plugins that implement only some
// PackageController methods.
type NopController struct{}

func (NopController) Create(context.Context, *model.Package) error            { return nil }
func (NopController) Edit(context.Context, *model.Package) error              { return nil }
func (NopController) Delete(context.Context, *model.Package) error            { return nil }
func (NopController) BeforeSearch(context.Context, *model.SearchParams) error { return nil }
