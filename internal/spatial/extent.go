package spatial

import (
	"context"
	"errors"
	"time"

	"github.com/twpayne/go-geom"
)

// ErrExtentNotFound is returned when a package has no stored extent.
var ErrExtentNotFound = errors.New("spatial: extent not found")

// Extent is the indexed geometry of one package.
type Extent struct {
	PackageID string    `json:"package_id"`
	Geometry  geom.T    `json:"-"`
	Bounds    BBox      `json:"bounds"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExtentStore persists package extents and answers bounding-box queries.
type ExtentStore interface {
	// SaveExtent inserts or replaces the extent of a package. A nil
	// geometry deletes any existing extent.
	SaveExtent(ctx context.Context, packageID string, g geom.T) error

	// DeleteExtent removes the extent of a package. Missing extents are not an error.
	DeleteExtent(ctx context.Context, packageID string) error

	// GetExtent returns the stored extent or ErrExtentNotFound.
	GetExtent(ctx context.Context, packageID string) (*Extent, error)

	// QueryBBox returns the IDs of packages whose extent intersects bbox,
	// ordered by package ID. bbox is expressed in srid.
	QueryBBox(ctx context.Context, bbox BBox, srid int) ([]string, error)

	// CountExtents returns the number of stored extents.
	CountExtents(ctx context.Context) (int, error)

	// BulkSaveExtents upserts many extents at once.
	BulkSaveExtents(ctx context.Context, extents []Extent) (int64, error)

	// Migrate creates the extent schema.
	Migrate(ctx context.Context) error

	Close() error
}
