package plugin

import (
	"context"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/stream"
)

// Registry holds plugins in registration order. Hooks run in that order and
// the first error stops the chain.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	byName  map[string]Plugin
}

// NewRegistry creates a registry with the given plugins registered.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{byName: make(map[string]Plugin)}
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a plugin. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return eris.New("plugin: register nil plugin")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName == nil {
		r.byName = make(map[string]Plugin)
	}
	name := p.Name()
	if name == "" {
		return eris.New("plugin: register plugin with empty name")
	}
	if _, ok := r.byName[name]; ok {
		return eris.Errorf("plugin: %q already registered", name)
	}
	r.byName[name] = p
	r.plugins = append(r.plugins, p)
	zap.L().Debug("plugin registered", zap.String("plugin", name))
	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Names lists registered plugins in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		out[i] = p.Name()
	}
	return out
}

func (r *Registry) snapshot() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Plugin(nil), r.plugins...)
}

// Configure runs every Configurable plugin.
func (r *Registry) Configure(ctx context.Context, cfg *config.Config) error {
	for _, p := range r.snapshot() {
		c, ok := p.(Configurable)
		if !ok {
			continue
		}
		if err := c.Configure(ctx, cfg); err != nil {
			return eris.Wrapf(err, "plugin: configure %s", p.Name())
		}
	}
	return nil
}

// UpdateConfig lets every Configurer plugin amend cfg.
func (r *Registry) UpdateConfig(cfg *config.Config) {
	for _, p := range r.snapshot() {
		if c, ok := p.(Configurer); ok {
			c.UpdateConfig(cfg)
		}
	}
}

// Hook errors are returned unwrapped so callers can match ValidationError
// and SearchError with errors.As.

// Create runs the Create hooks.
func (r *Registry) Create(ctx context.Context, pkg *model.Package) error {
	return r.eachController(func(c PackageController) error { return c.Create(ctx, pkg) })
}

// Edit runs the Edit hooks.
func (r *Registry) Edit(ctx context.Context, pkg *model.Package) error {
	return r.eachController(func(c PackageController) error { return c.Edit(ctx, pkg) })
}

// Delete runs the Delete hooks.
func (r *Registry) Delete(ctx context.Context, pkg *model.Package) error {
	return r.eachController(func(c PackageController) error { return c.Delete(ctx, pkg) })
}

// BeforeSearch runs the BeforeSearch hooks. It stops early once a hook sets
// AbortSearch.
func (r *Registry) BeforeSearch(ctx context.Context, params *model.SearchParams) error {
	return r.eachController(func(c PackageController) error {
		if params.AbortSearch {
			return nil
		}
		return c.BeforeSearch(ctx, params)
	})
}

func (r *Registry) eachController(fn func(PackageController) error) error {
	for _, p := range r.snapshot() {
		c, ok := p.(PackageController)
		if !ok {
			continue
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// BeforeMap lets Routes plugins register handlers.
func (r *Registry) BeforeMap(router chi.Router) {
	for _, p := range r.snapshot() {
		if rt, ok := p.(Routes); ok {
			rt.BeforeMap(router)
		}
	}
}

// Filter passes a rendered page through every StreamFilter.
func (r *Registry) Filter(rc *RenderContext, s *stream.Stream) error {
	for _, p := range r.snapshot() {
		f, ok := p.(StreamFilter)
		if !ok {
			continue
		}
		if err := f.Filter(rc, s); err != nil {
			return eris.Wrapf(err, "plugin: filter %s", p.Name())
		}
	}
	return nil
}
