package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/plugin"
	"github.com/sells-group/spatial-catalog/internal/spatial"
	"github.com/sells-group/spatial-catalog/internal/spatialext"
)

// fakeHooks records hook calls and can be told to fail.
type fakeHooks struct {
	created, edited, deleted []string
	failCreate, failEdit     error
	beforeSearch             func(*model.SearchParams) error
}

func (f *fakeHooks) Create(_ context.Context, pkg *model.Package) error {
	f.created = append(f.created, pkg.ID)
	return f.failCreate
}

func (f *fakeHooks) Edit(_ context.Context, pkg *model.Package) error {
	f.edited = append(f.edited, pkg.ID)
	return f.failEdit
}

func (f *fakeHooks) Delete(_ context.Context, pkg *model.Package) error {
	f.deleted = append(f.deleted, pkg.ID)
	return nil
}

func (f *fakeHooks) BeforeSearch(_ context.Context, p *model.SearchParams) error {
	if f.beforeSearch != nil {
		return f.beforeSearch(p)
	}
	return nil
}

func TestService_Create(t *testing.T) {
	hooks := &fakeHooks{}
	svc := NewService(newTestSQLite(t), hooks)

	pkg, err := svc.Create(context.Background(), &model.Package{Name: "roads", Title: "Roads"})
	require.NoError(t, err)
	assert.Len(t, pkg.ID, 36)
	assert.Equal(t, model.StateActive, pkg.State)
	assert.False(t, pkg.CreatedAt.IsZero())
	assert.Equal(t, []string{pkg.ID}, hooks.created)

	got, err := svc.Show(context.Background(), "roads")
	require.NoError(t, err)
	assert.Equal(t, pkg.ID, got.ID)
}

func TestService_CreateValidatesName(t *testing.T) {
	svc := NewService(newTestSQLite(t), nil)

	for _, name := range []string{"", "  ", "Has Spaces", "UPPER"} {
		_, err := svc.Create(context.Background(), &model.Package{Name: name})
		_, ok := plugin.IsValidationError(err)
		assert.True(t, ok, name)
	}
}

func TestService_CreateHookFailureRollsBack(t *testing.T) {
	verr := plugin.NewValidationError("spatial", "Error decoding JSON object: bad")
	hooks := &fakeHooks{failCreate: verr}
	store := newTestSQLite(t)
	svc := NewService(store, hooks)

	_, err := svc.Create(context.Background(), &model.Package{Name: "roads"})
	got, ok := plugin.IsValidationError(err)
	require.True(t, ok)
	assert.Same(t, verr, got)

	_, err = store.GetPackage(context.Background(), "roads")
	assert.True(t, errors.Is(err, ErrNotFound))

	// The name is free again.
	hooks.failCreate = nil
	_, err = svc.Create(context.Background(), &model.Package{Name: "roads"})
	assert.NoError(t, err)
}

func TestService_CreateDuplicate(t *testing.T) {
	svc := NewService(newTestSQLite(t), nil)
	_, err := svc.Create(context.Background(), &model.Package{Name: "roads"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), &model.Package{Name: "roads"})
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestService_Update(t *testing.T) {
	hooks := &fakeHooks{}
	svc := NewService(newTestSQLite(t), hooks)
	created, err := svc.Create(context.Background(), &model.Package{Name: "roads", Title: "Roads"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), &model.Package{Name: "roads", Title: "Main roads"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, []string{created.ID}, hooks.edited)

	got, err := svc.Show(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Main roads", got.Title)
}

func TestService_UpdateDroppingSpatialExtraClearsExtent(t *testing.T) {
	store := newTestSQLite(t)
	extents := spatial.NewSQLiteExtentStore(store.db, spatial.WGS84)
	ctx := context.Background()
	require.NoError(t, extents.Migrate(ctx))
	reg, err := plugin.NewRegistry(
		spatialext.NewMetadata(extents, spatial.WGS84),
		spatialext.NewQuery(extents, spatial.WGS84),
	)
	require.NoError(t, err)
	svc := NewService(store, reg)

	pkg := &model.Package{Name: "p1", Title: "Point"}
	pkg.SetExtra(model.SpatialKey, `{"type":"Point","coordinates":[-3.7,40.4]}`)
	created, err := svc.Create(ctx, pkg)
	require.NoError(t, err)
	_, err = extents.GetExtent(ctx, created.ID)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, &model.Package{ID: created.ID, Name: "p1", Title: "retitled"})
	require.NoError(t, err)
	_, ok := updated.Extra(model.SpatialKey)
	assert.False(t, ok)

	_, err = extents.GetExtent(ctx, created.ID)
	assert.True(t, errors.Is(err, spatial.ErrExtentNotFound))

	res, err := svc.Search(ctx, model.SearchParams{Extras: map[string]string{model.BBoxExtra: "-10,35,5,45"}})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
}

func TestService_UpdateHookFailureRestores(t *testing.T) {
	hooks := &fakeHooks{}
	svc := NewService(newTestSQLite(t), hooks)
	created, err := svc.Create(context.Background(), &model.Package{Name: "roads", Title: "Roads"})
	require.NoError(t, err)

	hooks.failEdit = plugin.NewValidationError("spatial", "Error creating geometry: empty")
	_, err = svc.Update(context.Background(), &model.Package{ID: created.ID, Title: "Broken"})
	_, ok := plugin.IsValidationError(err)
	require.True(t, ok)

	got, err := svc.Show(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Roads", got.Title)
}

func TestService_UpdateMissing(t *testing.T) {
	svc := NewService(newTestSQLite(t), nil)

	_, err := svc.Update(context.Background(), &model.Package{Name: "ghost"})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = svc.Update(context.Background(), &model.Package{})
	_, ok := plugin.IsValidationError(err)
	assert.True(t, ok)
}

func TestService_Delete(t *testing.T) {
	hooks := &fakeHooks{}
	svc := NewService(newTestSQLite(t), hooks)
	created, err := svc.Create(context.Background(), &model.Package{Name: "roads"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "roads"))
	assert.Equal(t, []string{created.ID}, hooks.deleted)

	got, err := svc.Show(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDeleted, got.State)

	assert.True(t, errors.Is(svc.Delete(context.Background(), "ghost"), ErrNotFound))
}

func TestService_SearchRunsHooks(t *testing.T) {
	hooks := &fakeHooks{}
	store := newTestSQLite(t)
	seedSearch(t, store)
	svc := NewService(store, hooks)

	hooks.beforeSearch = func(p *model.SearchParams) error {
		assert.Equal(t, "roads", p.Text)
		p.Q = p.Q + " AND (id:a)"
		p.FilterIDs = []string{"a"}
		return nil
	}
	res, err := svc.Search(context.Background(), model.SearchParams{Q: "roads"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "roads AND (id:a)", res.Q)
}

func TestService_SearchAbort(t *testing.T) {
	hooks := &fakeHooks{beforeSearch: func(p *model.SearchParams) error {
		p.AbortSearch = true
		return nil
	}}
	store := newTestSQLite(t)
	seedSearch(t, store)

	res, err := NewService(store, hooks).Search(context.Background(), model.SearchParams{})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Empty(t, res.Results)
	assert.NotNil(t, res.Results)
}

func TestService_SearchError(t *testing.T) {
	hooks := &fakeHooks{beforeSearch: func(*model.SearchParams) error {
		return &plugin.SearchError{Message: "Wrong bounding box provided"}
	}}
	_, err := NewService(newTestSQLite(t), hooks).Search(context.Background(), model.SearchParams{})
	_, ok := plugin.IsSearchError(err)
	assert.True(t, ok)
}
