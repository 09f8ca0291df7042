package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/catalog"
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/plugin"
)

// actionResponse is the envelope every action API call returns.
type actionResponse struct {
	Success bool           `json:"success"`
	Result  any            `json:"result,omitempty"`
	Error   map[string]any `json:"error,omitempty"`
}

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, actionResponse{Success: true, Result: result})
}

// writeActionError maps service errors onto API error responses.
func (s *Server) writeActionError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := actionError(err)
	if status == http.StatusInternalServerError {
		s.log.Error("action failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, actionResponse{Success: false, Error: body})
}

func actionError(err error) (int, map[string]any) {
	if ve, ok := plugin.IsValidationError(err); ok {
		body := map[string]any{"__type": "Validation Error"}
		for field, msgs := range ve.Errors {
			body[field] = msgs
		}
		return http.StatusConflict, body
	}
	if se, ok := plugin.IsSearchError(err); ok {
		return http.StatusBadRequest, map[string]any{"__type": "Search Query Error", "message": se.Message}
	}
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, map[string]any{"__type": "Not Found Error", "message": "Not found"}
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict, map[string]any{
			"__type": "Validation Error",
			"name":   []string{"That URL is already in use."},
		}
	}
	return http.StatusInternalServerError, map[string]any{"__type": "Internal Server Error", "message": "Internal server error"}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, actionResponse{
			Success: false,
			Error:   map[string]any{"__type": "Bad Request", "message": "Invalid JSON body: " + err.Error()},
		})
		return false
	}
	return true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var pkg model.Package
	if !decodeBody(w, r, &pkg) {
		return
	}
	created, err := s.svc.Create(r.Context(), &pkg)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeResult(w, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var pkg model.Package
	if !decodeBody(w, r, &pkg) {
		return
	}
	updated, err := s.svc.Update(r.Context(), &pkg)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeResult(w, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		s.writeActionError(w, r, plugin.NewValidationError("id", "Missing value"))
		return
	}
	if err := s.svc.Delete(r.Context(), req.ID); err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Success: true})
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeActionError(w, r, plugin.NewValidationError("id", "Missing value"))
		return
	}
	pkg, err := s.svc.Show(r.Context(), id)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeResult(w, pkg)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var params model.SearchParams
	if r.Method == http.MethodPost {
		if !decodeBody(w, r, &params) {
			return
		}
	} else {
		params = searchParamsFromQuery(r)
	}

	res, err := s.svc.Search(r.Context(), params)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeResult(w, res)
}

// searchParamsFromQuery reads q, rows, start and every ext_* parameter.
func searchParamsFromQuery(r *http.Request) model.SearchParams {
	q := r.URL.Query()
	params := model.SearchParams{
		Q:      q.Get("q"),
		Extras: map[string]string{},
	}
	params.Rows, _ = strconv.Atoi(q.Get("rows"))
	params.Start, _ = strconv.Atoi(q.Get("start"))
	for key, values := range q {
		if strings.HasPrefix(key, "ext_") && len(values) > 0 {
			params.Extras[key] = values[0]
		}
	}
	return params
}
