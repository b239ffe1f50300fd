package api

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/golang/geo/r2"
	"github.com/gorilla/mux"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Export handles GET /annotations/{id}/export?format=geojson|document and
// returns every element as a download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "document"
	}
	if format != "document" && format != "geojson" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unsupported format %q", format)})
		return
	}

	info, err := h.store.GetAnnotation(r.Context(), id)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	elements, err := h.store.QueryElements(r.Context(), id, annotation.PageRequest{Region: r2.EmptyRect()})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	name := unsafeFilename.ReplaceAllString(info.Name, "_")
	if name == "" {
		name = info.ID
	}

	var body interface{}
	switch format {
	case "geojson":
		name += ".geojson"
		body = annotation.ElementsToGeoJSON(info.ID, elements)
	default:
		name += ".json"
		body = annotation.Document{Name: info.Name, Description: info.Description, Elements: elements}
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	writeJSON(w, http.StatusOK, body)
}
