// Package catalog stores dataset packages and runs plugin hooks around every
// change.
package catalog

import (
	"context"
	"errors"

	"github.com/sells-group/spatial-catalog/internal/model"
)

var (
	// ErrNotFound is returned when no package matches an id or name.
	ErrNotFound = errors.New("catalog: package not found")
	// ErrConflict is returned when a package name is already taken.
	ErrConflict = errors.New("catalog: package name already exists")
)

// Store persists packages.
type Store interface {
	CreatePackage(ctx context.Context, pkg *model.Package) error
	UpdatePackage(ctx context.Context, pkg *model.Package) error
	// GetPackage looks a package up by id, then by name.
	GetPackage(ctx context.Context, idOrName string) (*model.Package, error)
	// DeletePackage marks a package deleted.
	DeletePackage(ctx context.Context, id string) error
	// PurgePackage removes a package row outright.
	PurgePackage(ctx context.Context, id string) error
	// SearchPackages matches params.Text against name, title and notes of
	// active packages, restricted to params.FilterIDs when non-nil.
	SearchPackages(ctx context.Context, params model.SearchParams) (*model.SearchResult, error)
	// ListPackages pages through active packages ordered by name.
	ListPackages(ctx context.Context, limit, offset int) ([]model.Package, error)

	Migrate(ctx context.Context) error
	Close() error
}
