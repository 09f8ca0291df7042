package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/plugin"
)

// Hooks is the part of the plugin registry the service drives.
type Hooks interface {
	Create(ctx context.Context, pkg *model.Package) error
	Edit(ctx context.Context, pkg *model.Package) error
	Delete(ctx context.Context, pkg *model.Package) error
	BeforeSearch(ctx context.Context, params *model.SearchParams) error
}

// Service wraps a Store with plugin hooks.
type Service struct {
	store Store
	hooks Hooks
	now   func() time.Time
}

// NewService creates a Service. hooks may be nil.
func NewService(store Store, hooks Hooks) *Service {
	return &Service{store: store, hooks: hooks, now: func() time.Time { return time.Now().UTC() }}
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// Create stores a new package and runs the create hooks. When a hook fails
// the package is removed again and the hook error returned as is.
func (s *Service) Create(ctx context.Context, pkg *model.Package) (*model.Package, error) {
	pkg = pkg.Clone()
	if err := validatePackage(pkg); err != nil {
		return nil, err
	}
	pkg.Normalize()
	pkg.ID = uuid.NewString()
	pkg.CreatedAt = s.now()
	pkg.UpdatedAt = pkg.CreatedAt

	if err := s.store.CreatePackage(ctx, pkg); err != nil {
		return nil, eris.Wrap(err, "catalog: create package")
	}

	if s.hooks != nil {
		if err := s.hooks.Create(ctx, pkg); err != nil {
			if perr := s.store.PurgePackage(ctx, pkg.ID); perr != nil {
				zap.L().Error("catalog: roll back package create",
					zap.String("package_id", pkg.ID), zap.Error(perr))
			}
			return nil, err
		}
	}

	zap.L().Info("package created", zap.String("package_id", pkg.ID), zap.String("name", pkg.Name))
	return pkg, nil
}

// Update replaces a package's fields and runs the edit hooks. Extras the
// update leaves out are kept as deleted so hooks see the removal. When a hook
// fails the previous record is restored.
func (s *Service) Update(ctx context.Context, pkg *model.Package) (*model.Package, error) {
	key := pkg.ID
	if key == "" {
		key = pkg.Name
	}
	if key == "" {
		return nil, plugin.NewValidationError("id", "Missing value")
	}
	old, err := s.store.GetPackage(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: update package")
	}

	pkg = pkg.Clone()
	pkg.ID = old.ID
	if pkg.Name == "" {
		pkg.Name = old.Name
	}
	if err := validatePackage(pkg); err != nil {
		return nil, err
	}
	pkg.Normalize()
	pkg.MarkRemovedExtras(old)
	pkg.CreatedAt = old.CreatedAt
	pkg.UpdatedAt = s.now()

	if err := s.store.UpdatePackage(ctx, pkg); err != nil {
		return nil, eris.Wrap(err, "catalog: update package")
	}

	if s.hooks != nil {
		if err := s.hooks.Edit(ctx, pkg); err != nil {
			if rerr := s.store.UpdatePackage(ctx, old); rerr != nil {
				zap.L().Error("catalog: restore package after failed edit",
					zap.String("package_id", old.ID), zap.Error(rerr))
			}
			return nil, err
		}
	}

	zap.L().Info("package updated", zap.String("package_id", pkg.ID))
	return pkg, nil
}

// Delete marks a package deleted and runs the delete hooks.
func (s *Service) Delete(ctx context.Context, idOrName string) error {
	pkg, err := s.store.GetPackage(ctx, idOrName)
	if err != nil {
		return eris.Wrap(err, "catalog: delete package")
	}
	if err := s.store.DeletePackage(ctx, pkg.ID); err != nil {
		return eris.Wrap(err, "catalog: delete package")
	}
	pkg.State = model.StateDeleted

	if s.hooks != nil {
		if err := s.hooks.Delete(ctx, pkg); err != nil {
			return err
		}
	}
	zap.L().Info("package deleted", zap.String("package_id", pkg.ID))
	return nil
}

// Show returns a package by id or name.
func (s *Service) Show(ctx context.Context, idOrName string) (*model.Package, error) {
	pkg, err := s.store.GetPackage(ctx, idOrName)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: show package")
	}
	return pkg, nil
}

// Search runs the search hooks, then queries the store. A hook that sets
// AbortSearch yields an empty result.
func (s *Service) Search(ctx context.Context, params model.SearchParams) (*model.SearchResult, error) {
	params.Normalize()
	params.Text = params.Q

	if s.hooks != nil {
		if err := s.hooks.BeforeSearch(ctx, &params); err != nil {
			return nil, err
		}
	}
	if params.AbortSearch {
		return &model.SearchResult{Count: 0, Results: []model.Package{}, Q: params.Q}, nil
	}

	res, err := s.store.SearchPackages(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: search packages")
	}
	return res, nil
}

func validatePackage(pkg *model.Package) error {
	name := strings.TrimSpace(pkg.Name)
	if name == "" {
		return plugin.NewValidationError("name", "Missing value")
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return plugin.NewValidationError("name",
				"Must be purely lowercase alphanumeric (ascii) characters and these symbols: -_")
		}
	}
	pkg.Name = name
	return nil
}
