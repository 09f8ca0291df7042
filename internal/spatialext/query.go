package spatialext

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/plugin"
	"github.com/sells-group/spatial-catalog/internal/spatial"
)

// Query answers bounding-box searches from the extent table.
type Query struct {
	plugin.NopController
	store spatial.ExtentStore
	srid  int
	log   *zap.Logger
}

// NewQuery creates the query plugin. Search bounding boxes are read in srid.
func NewQuery(store spatial.ExtentStore, srid int) *Query {
	return &Query{
		store: store,
		srid:  srid,
		log:   zap.L().With(zap.String("component", "spatial_query")),
	}
}

// Name implements plugin.Plugin.
func (q *Query) Name() string { return "spatial_query" }

// BeforeMap registers the geo search API.
func (q *Query) BeforeMap(r chi.Router) {
	r.Get("/api/2/search/{register:(?:dataset|package)}/geo", q.handleGeoSearch)
}

type geoSearchResponse struct {
	Count   int      `json:"count"`
	Results []string `json:"results"`
}

func (q *Query) handleGeoSearch(w http.ResponseWriter, r *http.Request) {
	bbox, err := spatial.ValidateBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Wrong bounding box provided")
		return
	}
	srid, err := spatial.ParseCRS(r.URL.Query().Get("crs"), spatial.WGS84)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported crs")
		return
	}

	ids, err := q.store.QueryBBox(r.Context(), *bbox, srid)
	if err != nil {
		q.log.Error("geo search failed", zap.Stringer("bbox", bbox), zap.Int("srid", srid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, geoSearchResponse{Count: len(ids), Results: ids})
}

// BeforeSearch restricts a search to packages whose extent intersects the
// ext_bbox extra.
func (q *Query) BeforeSearch(ctx context.Context, params *model.SearchParams) error {
	raw := params.Extras[model.BBoxExtra]
	if raw == "" {
		return nil
	}

	bbox, err := spatial.ValidateBBox(raw)
	if err != nil {
		return &plugin.SearchError{Message: "Wrong bounding box provided"}
	}

	ids, err := q.store.QueryBBox(ctx, *bbox, q.srid)
	if err != nil {
		if errors.Is(err, spatial.ErrUnsupportedCRS) {
			return &plugin.SearchError{Message: err.Error()}
		}
		return eris.Wrap(err, "spatialext: bbox query")
	}

	if len(ids) == 0 {
		params.AbortSearch = true
		return nil
	}

	params.Q = withIDFilter(params.Q, ids)
	params.FilterIDs = ids
	return nil
}

// withIDFilter appends "(id:a OR id:b)" to q.
func withIDFilter(q string, ids []string) string {
	clauses := make([]string, len(ids))
	for i, id := range ids {
		clauses[i] = "id:" + id
	}
	filter := "(" + strings.Join(clauses, " OR ") + ")"
	if q == "" {
		return filter
	}
	return q + " AND " + filter
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
