package spatialext

import (
	"context"
	"sort"
	"sync"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/spatial"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// memStore is an in-memory ExtentStore.
type memStore struct {
	mu       sync.Mutex
	extents  map[string]geom.T
	migrated int
	saveErr  error
	queryErr error
	lastSRID int
}

func newMemStore() *memStore {
	return &memStore{extents: make(map[string]geom.T)}
}

func (m *memStore) SaveExtent(_ context.Context, id string, g geom.T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if g == nil {
		delete(m.extents, id)
		return nil
	}
	m.extents[id] = g
	return nil
}

func (m *memStore) DeleteExtent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.extents, id)
	return nil
}

func (m *memStore) GetExtent(_ context.Context, id string) (*spatial.Extent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.extents[id]
	if !ok {
		return nil, spatial.ErrExtentNotFound
	}
	return &spatial.Extent{PackageID: id, Geometry: g, Bounds: spatial.BoundsOf(g)}, nil
}

func (m *memStore) QueryBBox(_ context.Context, bbox spatial.BBox, srid int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSRID = srid
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var ids []string
	for id, g := range m.extents {
		if spatial.BoundsOf(g).Intersects(bbox) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) CountExtents(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.extents), nil
}

func (m *memStore) BulkSaveExtents(_ context.Context, extents []spatial.Extent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range extents {
		m.extents[e.PackageID] = e.Geometry
	}
	return int64(len(extents)), nil
}

func (m *memStore) Migrate(context.Context) error {
	m.migrated++
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.extents[id]
	return ok
}

const (
	ukPolygon    = `{"type":"Polygon","coordinates":[[[-6,49],[2,49],[2,59],[-6,59],[-6,49]]]}`
	spainPolygon = `{"type":"Polygon","coordinates":[[[-9,36],[3,36],[3,44],[-9,44],[-9,36]]]}`
)

const testPage = `<!DOCTYPE html>
<html><head><title>t</title></head>
<body>
<ul class="dataset-edit-nav"><li>Basic</li></ul>
<form><fieldset id="extras"></fieldset></form>
<div id="dataset-search-ext"></div>
<div class="dataset"><h1>Roads</h1></div>
</body></html>`
