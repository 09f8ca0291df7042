// Package spatialext is the spatial extension for the catalog: it stores
// package extents from the "spatial" extra, filters searches by bounding box,
// and injects map widgets into dataset pages.
package spatialext

import (
	"embed"
	"html/template"
	"io/fs"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spatial-catalog/internal/stream"
)

// Paths under which the extension's templates and static files are
// registered with the host. They are real directories relative to the
// repository root and are also served from the embedded copies.
const (
	TemplatePath = "internal/spatialext/templates"
	PublicPath   = "internal/spatialext/public"
)

//go:embed templates/spatial/*.html
var templateFS embed.FS

//go:embed public
var publicFS embed.FS

var snippets = template.Must(template.ParseFS(templateFS, "templates/spatial/*.html"))

// Templates returns the extension's template tree rooted like TemplatePath.
func Templates() fs.FS {
	sub, _ := fs.Sub(templateFS, "templates")
	return sub
}

// Public returns the extension's static files rooted like PublicPath, so
// "spatial/js/spatial_edit.js" is served at /spatial/js/spatial_edit.js.
func Public() fs.FS {
	sub, _ := fs.Sub(publicFS, "public")
	return sub
}

// render executes a named snippet.
func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := snippets.ExecuteTemplate(&b, name, data); err != nil {
		return "", eris.Wrapf(err, "spatialext: render %s", name)
	}
	return b.String(), nil
}

// insertion places a rendered snippet relative to a selector. Without
// after the snippet is appended as the last child.
type insertion struct {
	selector string
	snippet  string
	after    bool
}

// inject renders each snippet with data and applies them in order.
func inject(s *stream.Stream, data any, ins ...insertion) error {
	for _, in := range ins {
		html, err := render(in.snippet, data)
		if err != nil {
			return err
		}
		t := s.Select(in.selector)
		if in.after {
			t.After(html)
		} else {
			t.Append(html)
		}
	}
	return nil
}
