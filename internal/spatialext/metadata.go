package spatialext

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/plugin"
	"github.com/sells-group/spatial-catalog/internal/spatial"
	"github.com/sells-group/spatial-catalog/internal/stream"
)

// Metadata keeps the extent table in step with each package's spatial extra
// and adds the extent editor to the package form.
type Metadata struct {
	store spatial.ExtentStore
	srid  int
	log   *zap.Logger
}

// NewMetadata creates the metadata plugin. Parsed geometries are tagged
// with srid.
func NewMetadata(store spatial.ExtentStore, srid int) *Metadata {
	return &Metadata{
		store: store,
		srid:  srid,
		log:   zap.L().With(zap.String("component", "spatial_metadata")),
	}
}

// Name implements plugin.Plugin.
func (m *Metadata) Name() string { return "spatial_metadata" }

// Configure creates the extent schema unless running in testing mode.
func (m *Metadata) Configure(ctx context.Context, cfg *config.Config) error {
	if cfg.Spatial.Testing {
		m.log.Debug("testing mode, skipping extent schema setup")
		return nil
	}
	if err := m.store.Migrate(ctx); err != nil {
		return eris.Wrap(err, "spatialext: setup extent schema")
	}
	return nil
}

// Create implements plugin.PackageController.
func (m *Metadata) Create(ctx context.Context, pkg *model.Package) error {
	return m.checkSpatialExtra(ctx, pkg)
}

// Edit implements plugin.PackageController.
func (m *Metadata) Edit(ctx context.Context, pkg *model.Package) error {
	return m.checkSpatialExtra(ctx, pkg)
}

// Delete drops the package's extent.
func (m *Metadata) Delete(ctx context.Context, pkg *model.Package) error {
	if err := m.store.DeleteExtent(ctx, pkg.ID); err != nil {
		return eris.Wrapf(err, "spatialext: delete extent for %s", pkg.ID)
	}
	return nil
}

// BeforeSearch implements plugin.PackageController.
func (m *Metadata) BeforeSearch(context.Context, *model.SearchParams) error { return nil }

// checkSpatialExtra saves or deletes the extent according to the first
// extra keyed "spatial". A package without such an extra is left alone.
func (m *Metadata) checkSpatialExtra(ctx context.Context, pkg *model.Package) error {
	if pkg.ID == "" {
		m.log.Warn("couldn't store spatial extent because no id was provided for the package",
			zap.String("name", pkg.Name))
		return nil
	}

	for _, extra := range pkg.Extras {
		if extra.Key != model.SpatialKey {
			continue
		}
		if extra.State == model.StateDeleted {
			if err := m.store.DeleteExtent(ctx, pkg.ID); err != nil {
				return plugin.NewValidationError(model.SpatialKey, "Error: "+err.Error())
			}
			m.log.Debug("extent removed", zap.String("package_id", pkg.ID))
			return nil
		}
		if !extra.IsActive() {
			return nil
		}
		return m.saveExtent(ctx, pkg.ID, extra.Value)
	}
	return nil
}

func (m *Metadata) saveExtent(ctx context.Context, packageID, value string) error {
	g, err := spatial.ParseGeoJSON(value, m.srid)
	if err != nil {
		return spatialError(err)
	}
	if err := m.store.SaveExtent(ctx, packageID, g); err != nil {
		m.log.Error("save extent failed", zap.String("package_id", packageID), zap.Error(err))
		return spatialError(err)
	}
	m.log.Info("extent saved", zap.String("package_id", packageID))
	return nil
}

// spatialError maps a parse or store failure to the validation error
// reported on the spatial field.
func spatialError(err error) *plugin.ValidationError {
	var decodeErr *spatial.DecodeError
	var geomErr *spatial.GeometryError
	switch {
	case errors.As(err, &decodeErr):
		return plugin.NewValidationError(model.SpatialKey, "Error decoding JSON object: "+decodeErr.Error())
	case errors.As(err, &geomErr):
		return plugin.NewValidationError(model.SpatialKey, "Error creating geometry: "+geomErr.Error())
	default:
		return plugin.NewValidationError(model.SpatialKey, "Error: "+err.Error())
	}
}

// Filter adds the extent editor to the package edit and new pages.
func (m *Metadata) Filter(rc *plugin.RenderContext, s *stream.Stream) error {
	if !rc.Is("package", "edit", "new") {
		return nil
	}
	data := struct{ Geom string }{}
	if rc.Package != nil {
		data.Geom, _ = rc.Package.Extra(model.SpatialKey)
	}
	return inject(s, data,
		insertion{selector: "body ul.dataset-edit-nav", snippet: "edit_nav"},
		insertion{selector: "body fieldset#extras", snippet: "edit_form", after: true},
		insertion{selector: "head", snippet: "edit_header"},
		insertion{selector: "body", snippet: "edit_footer"},
	)
}
