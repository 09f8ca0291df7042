package plugin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/stream"
)

type recorder struct {
	NopController
	name  string
	calls *[]string
	err   error
	abort bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Configure(_ context.Context, _ *config.Config) error {
	*r.calls = append(*r.calls, r.name+":configure")
	return r.err
}

func (r *recorder) UpdateConfig(cfg *config.Config) {
	cfg.Server.ExtraTemplatePaths = config.AppendPath(cfg.Server.ExtraTemplatePaths, r.name)
}

func (r *recorder) Create(_ context.Context, _ *model.Package) error {
	*r.calls = append(*r.calls, r.name+":create")
	return r.err
}

func (r *recorder) BeforeSearch(_ context.Context, p *model.SearchParams) error {
	*r.calls = append(*r.calls, r.name+":search")
	p.AbortSearch = r.abort
	return r.err
}

func (r *recorder) BeforeMap(router chi.Router) {
	router.Get("/"+r.name, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func (r *recorder) Filter(_ *RenderContext, s *stream.Stream) error {
	s.Select("body").Append(`<p class="` + r.name + `"></p>`)
	return r.err
}

type bare struct{ name string }

func (b bare) Name() string { return b.name }

func TestRegister_RejectsDuplicates(t *testing.T) {
	reg, err := NewRegistry(bare{"a"})
	require.NoError(t, err)

	err = reg.Register(bare{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a" already registered`)
	assert.Equal(t, []string{"a"}, reg.Names())
}

func TestRegister_RejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(bare{""})
	assert.Error(t, err)
}

func TestRegistry_Get(t *testing.T) {
	reg, err := NewRegistry(bare{"a"}, bare{"b"})
	require.NoError(t, err)

	p, ok := reg.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", p.Name())
	_, ok = reg.Get("c")
	assert.False(t, ok)
}

func TestRegistry_HooksRunInOrderAndSkipNonImplementers(t *testing.T) {
	var calls []string
	reg, err := NewRegistry(
		&recorder{name: "one", calls: &calls},
		bare{"plain"},
		&recorder{name: "two", calls: &calls},
	)
	require.NoError(t, err)

	require.NoError(t, reg.Configure(context.Background(), &config.Config{}))
	require.NoError(t, reg.Create(context.Background(), &model.Package{}))
	assert.Equal(t, []string{"one:configure", "two:configure", "one:create", "two:create"}, calls)
}

func TestRegistry_FirstErrorStops(t *testing.T) {
	var calls []string
	verr := NewValidationError("spatial", "bad")
	reg, err := NewRegistry(
		&recorder{name: "one", calls: &calls, err: verr},
		&recorder{name: "two", calls: &calls},
	)
	require.NoError(t, err)

	err = reg.Create(context.Background(), &model.Package{})
	require.Error(t, err)
	got, ok := IsValidationError(err)
	require.True(t, ok)
	assert.Same(t, verr, got)
	assert.Equal(t, []string{"one:create"}, calls)
}

func TestRegistry_ConfigureWrapsError(t *testing.T) {
	var calls []string
	reg, err := NewRegistry(&recorder{name: "one", calls: &calls, err: errors.New("boom")})
	require.NoError(t, err)

	err = reg.Configure(context.Background(), &config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin: configure one")
}

func TestRegistry_BeforeSearchStopsOnAbort(t *testing.T) {
	var calls []string
	reg, err := NewRegistry(
		&recorder{name: "one", calls: &calls, abort: true},
		&recorder{name: "two", calls: &calls},
	)
	require.NoError(t, err)

	params := &model.SearchParams{}
	require.NoError(t, reg.BeforeSearch(context.Background(), params))
	assert.True(t, params.AbortSearch)
	assert.Equal(t, []string{"one:search"}, calls)
}

func TestRegistry_UpdateConfig(t *testing.T) {
	var calls []string
	reg, err := NewRegistry(&recorder{name: "a", calls: &calls}, &recorder{name: "b", calls: &calls})
	require.NoError(t, err)

	cfg := &config.Config{}
	reg.UpdateConfig(cfg)
	assert.Equal(t, "a,b", cfg.Server.ExtraTemplatePaths)
}

func TestRegistry_BeforeMap(t *testing.T) {
	var calls []string
	reg, err := NewRegistry(&recorder{name: "geo", calls: &calls})
	require.NoError(t, err)

	router := chi.NewRouter()
	reg.BeforeMap(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geo", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRegistry_Filter(t *testing.T) {
	var calls []string
	reg, err := NewRegistry(&recorder{name: "x", calls: &calls}, &recorder{name: "y", calls: &calls})
	require.NoError(t, err)

	s, err := stream.ParseString("<html><body></body></html>")
	require.NoError(t, err)
	require.NoError(t, reg.Filter(&RenderContext{Controller: "package", Action: "read"}, s))

	ps := s.Document().Find("body p")
	require.Equal(t, 2, ps.Length())
	assert.True(t, ps.First().HasClass("x"))
	assert.True(t, ps.Last().HasClass("y"))
}

func TestRenderContext_Is(t *testing.T) {
	rc := &RenderContext{Controller: "package", Action: "new"}
	assert.True(t, rc.Is("package", "edit", "new"))
	assert.False(t, rc.Is("package", "read"))
	assert.False(t, rc.Is("user", "new"))

	var nilRC *RenderContext
	assert.False(t, nilRC.Is("package", "new"))
}
