package web

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/catalog"
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/plugin"
	"github.com/sells-group/spatial-catalog/internal/stream"
)

//go:embed templates
var templateFS embed.FS

var pageNames = []string{"search", "read", "edit"}

// pageSet holds one template per page, each combining the layout with the
// page's blocks.
type pageSet struct {
	pages map[string]*template.Template
}

// loadPages parses the built-in pages, then lets each overlay redefine a
// page by shipping package/<page>.html.
func loadPages(overlays []fs.FS) (*pageSet, error) {
	layout, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, eris.Wrap(err, "web: parse layout")
	}

	ps := &pageSet{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := layout.Clone()
		if err != nil {
			return nil, eris.Wrapf(err, "web: clone layout for %s", name)
		}
		file := "package/" + name + ".html"
		if t, err = t.ParseFS(templateFS, "templates/"+file); err != nil {
			return nil, eris.Wrapf(err, "web: parse %s", file)
		}
		for _, overlay := range overlays {
			if _, err := fs.Stat(overlay, file); err != nil {
				continue
			}
			if t, err = t.ParseFS(overlay, file); err != nil {
				return nil, eris.Wrapf(err, "web: parse overlay %s", file)
			}
		}
		ps.pages[name] = t
	}
	return ps, nil
}

// render executes a page, runs the plugin stream filters over it, and
// writes the result.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, rc *plugin.RenderContext, data any) {
	var buf bytes.Buffer
	if err := s.pages.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.renderFailure(w, r, eris.Wrapf(err, "web: execute %s", page))
		return
	}

	st, err := stream.Parse(&buf)
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	if err := s.reg.Filter(rc, st); err != nil {
		s.renderFailure(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := st.Render(w); err != nil {
		s.log.Warn("write page", zap.String("page", page), zap.Error(err))
	}
}

func (s *Server) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("render page", zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) pageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		http.Error(w, "Dataset not found", http.StatusNotFound)
		return
	}
	s.renderFailure(w, r, err)
}

type searchPage struct {
	Query     string
	BBox      string
	Error     string
	Result    *model.SearchResult
	NextStart int
	NextQuery string
}

func (s *Server) pageSearch(w http.ResponseWriter, r *http.Request) {
	params := searchParamsFromQuery(r)
	rc := &plugin.RenderContext{Controller: "package", Action: "search", Params: r.URL.Query()}
	data := searchPage{Query: params.Q, BBox: params.Extras[model.BBoxExtra]}

	status := http.StatusOK
	res, err := s.svc.Search(r.Context(), params)
	if se, ok := plugin.IsSearchError(err); ok {
		status = http.StatusBadRequest
		data.Error = se.Message
		res = &model.SearchResult{Results: []model.Package{}}
	} else if err != nil {
		s.pageError(w, r, err)
		return
	}
	data.Result = res

	params.Normalize()
	if next := params.Start + params.Rows; next < res.Count {
		q := r.URL.Query()
		q.Set("start", strconv.Itoa(next))
		data.NextStart = next
		data.NextQuery = q.Encode()
	}
	s.render(w, r, status, "search", rc, data)
}

func (s *Server) pageRead(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.svc.Show(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	rc := &plugin.RenderContext{Controller: "package", Action: "read", Package: pkg, Params: r.URL.Query()}
	s.render(w, r, http.StatusOK, "read", rc, struct{ Package *model.Package }{pkg})
}

type editPage struct {
	IsNew        bool
	Action       string
	Package      *model.Package
	Extras       []model.Extra
	ErrorSummary map[string]string
}

func newEditPage(isNew bool, action string, pkg *model.Package) editPage {
	page := editPage{IsNew: isNew, Action: action, Package: pkg}
	for _, e := range pkg.Extras {
		if e.Key != model.SpatialKey && e.IsActive() {
			page.Extras = append(page.Extras, e)
		}
	}
	return page
}

func (s *Server) pageNew(w http.ResponseWriter, r *http.Request) {
	pkg := &model.Package{}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad form", http.StatusBadRequest)
			return
		}
		applyForm(pkg, r.PostForm)
		created, err := s.svc.Create(r.Context(), pkg)
		if err == nil {
			http.Redirect(w, r, "/dataset/"+created.Name, http.StatusSeeOther)
			return
		}
		s.formError(w, r, err, "new", newEditPage(true, "/dataset/new", pkg))
		return
	}
	rc := &plugin.RenderContext{Controller: "package", Action: "new", Package: pkg, Params: r.URL.Query()}
	s.render(w, r, http.StatusOK, "edit", rc, newEditPage(true, "/dataset/new", pkg))
}

func (s *Server) pageEdit(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.svc.Show(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	action := "/dataset/edit/" + url.PathEscape(pkg.Name)

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad form", http.StatusBadRequest)
			return
		}
		applyForm(pkg, r.PostForm)
		updated, err := s.svc.Update(r.Context(), pkg)
		if err == nil {
			http.Redirect(w, r, "/dataset/"+updated.Name, http.StatusSeeOther)
			return
		}
		s.formError(w, r, err, "edit", newEditPage(false, action, pkg))
		return
	}
	rc := &plugin.RenderContext{Controller: "package", Action: "edit", Package: pkg, Params: r.URL.Query()}
	s.render(w, r, http.StatusOK, "edit", rc, newEditPage(false, action, pkg))
}

// formError re-renders the form with the error summary for validation
// failures and conflicts. Other errors become a failure page.
func (s *Server) formError(w http.ResponseWriter, r *http.Request, err error, action string, page editPage) {
	switch ve, ok := plugin.IsValidationError(err); {
	case ok:
		page.ErrorSummary = ve.Summary
	case errors.Is(err, catalog.ErrConflict):
		page.ErrorSummary = map[string]string{"Name": "That URL is already in use."}
	default:
		s.pageError(w, r, err)
		return
	}
	rc := &plugin.RenderContext{Controller: "package", Action: action, Package: page.Package, Params: r.URL.Query()}
	s.render(w, r, http.StatusOK, "edit", rc, page)
}

// applyForm copies submitted fields onto pkg. Extras arrive as
// extras__<key>; an empty value deletes an existing extra.
func applyForm(pkg *model.Package, form url.Values) {
	if v, ok := form["name"]; ok {
		pkg.Name = strings.TrimSpace(v[0])
	}
	if v, ok := form["title"]; ok {
		pkg.Title = strings.TrimSpace(v[0])
	}
	if v, ok := form["notes"]; ok {
		pkg.Notes = v[0]
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key, ok := strings.CutPrefix(k, "extras__")
		if !ok || key == "new_key" || key == "new_value" || key == "" {
			continue
		}
		if value := strings.TrimSpace(form.Get(k)); value != "" {
			pkg.SetExtra(key, value)
		} else {
			pkg.DeleteExtra(key)
		}
	}

	if key := strings.TrimSpace(form.Get("extras__new_key")); key != "" {
		pkg.SetExtra(key, strings.TrimSpace(form.Get("extras__new_value")))
	}
}
