package spatialext

import (
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/plugin"
	"github.com/sells-group/spatial-catalog/internal/stream"
)

// QueryWidget adds the bounding-box picker to the dataset search page.
type QueryWidget struct {
	defaultExtent string
}

// NewQueryWidget creates the widget. defaultExtent is the initial map view
// as "minx,miny,maxx,maxy" and may be empty.
func NewQueryWidget(defaultExtent string) *QueryWidget {
	return &QueryWidget{defaultExtent: defaultExtent}
}

// Name implements plugin.Plugin.
func (w *QueryWidget) Name() string { return "spatial_query_widget" }

// Filter implements plugin.StreamFilter.
func (w *QueryWidget) Filter(rc *plugin.RenderContext, s *stream.Stream) error {
	if !rc.Is("package", "search") {
		return nil
	}
	data := struct {
		BBox          string
		DefaultExtent string
	}{
		BBox:          rc.Params.Get(model.BBoxExtra),
		DefaultExtent: w.defaultExtent,
	}
	return inject(s, data,
		insertion{selector: "body div#dataset-search-ext", snippet: "search_form"},
		insertion{selector: "head", snippet: "search_header"},
		insertion{selector: "body", snippet: "search_footer"},
	)
}
