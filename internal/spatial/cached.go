package spatial

import (
	"context"

	"github.com/twpayne/go-geom"
)

// CachedExtentStore serves repeated bounding-box queries from a QueryCache
// and purges it on every write.
type CachedExtentStore struct {
	ExtentStore
	cache *QueryCache
}

// NewCachedExtentStore wraps next with cache.
func NewCachedExtentStore(next ExtentStore, cache *QueryCache) *CachedExtentStore {
	return &CachedExtentStore{ExtentStore: next, cache: cache}
}

// Cache exposes the underlying cache for stats reporting.
func (s *CachedExtentStore) Cache() *QueryCache {
	return s.cache
}

// QueryBBox implements ExtentStore.
func (s *CachedExtentStore) QueryBBox(ctx context.Context, bbox BBox, srid int) ([]string, error) {
	if ids, ok := s.cache.Get(bbox, srid); ok {
		return ids, nil
	}
	gen := s.cache.Generation()
	ids, err := s.ExtentStore.QueryBBox(ctx, bbox, srid)
	if err != nil {
		return nil, err
	}
	// Results read across a purge are not cached.
	s.cache.PutIfGeneration(bbox, srid, ids, gen)
	return ids, nil
}

// SaveExtent implements ExtentStore.
func (s *CachedExtentStore) SaveExtent(ctx context.Context, packageID string, g geom.T) error {
	defer s.cache.Purge()
	return s.ExtentStore.SaveExtent(ctx, packageID, g)
}

// DeleteExtent implements ExtentStore.
func (s *CachedExtentStore) DeleteExtent(ctx context.Context, packageID string) error {
	defer s.cache.Purge()
	return s.ExtentStore.DeleteExtent(ctx, packageID)
}

// BulkSaveExtents implements ExtentStore.
func (s *CachedExtentStore) BulkSaveExtents(ctx context.Context, extents []Extent) (int64, error) {
	defer s.cache.Purge()
	return s.ExtentStore.BulkSaveExtents(ctx, extents)
}
