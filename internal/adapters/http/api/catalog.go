package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/unitry/internal/domain/catalog"
)

// CatalogHandler serves the outfit tables, label files and file-name detection.
type CatalogHandler struct {
	deps Dependencies
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(deps Dependencies) *CatalogHandler {
	return &CatalogHandler{deps: deps}
}

// HandleCatalog handles GET {api}/catalog/{gender} requests.
func (h *CatalogHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	const op = "api.catalog"
	g, err := catalog.ParseGender(r.PathValue("gender"))
	if err != nil {
		fail(r.Context(), w, nil, Wrap(op, err))
		return
	}
	view, err := h.deps.Catalog(r.Context(), g)
	if err != nil {
		fail(r.Context(), w, nil, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleLabels handles GET {api}/labels/{gender} requests. A label file that
// fails to load is served as an empty object.
func (h *CatalogHandler) HandleLabels(w http.ResponseWriter, r *http.Request) {
	const op = "api.labels"
	g, err := catalog.ParseGender(r.PathValue("gender"))
	if err != nil {
		fail(r.Context(), w, nil, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Labels(r.Context(), g))
}

// HandleDetect handles GET {api}/detect?file_name= requests.
func (h *CatalogHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	const op = "api.detect"
	name := strings.TrimSpace(r.URL.Query().Get("file_name"))
	if name == "" {
		fail(r.Context(), w, nil, WrapKind(op, ErrBadRequest, errors.New("missing file_name")))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Detect(name))
}
