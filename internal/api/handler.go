// Package api serves annotations and pages of their elements over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/golang/geo/r2"
	"github.com/gorilla/mux"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/metrics"
	"github.com/tilescope/tilescope/backend-go/internal/store"
)

// ChangeNotifier is told when an annotation's elements changed.
type ChangeNotifier interface {
	AnnotationChanged(itemID, annotationID string)
}

type Handler struct {
	store     store.Store
	notifier  ChangeNotifier
	pageLimit int
}

func NewHandler(s store.Store, notifier ChangeNotifier, pageLimit int) *Handler {
	return &Handler{store: s, notifier: notifier, pageLimit: pageLimit}
}

// Register mounts the routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/items/{itemId}/annotations", h.ListAnnotations).Methods("GET")
	r.HandleFunc("/items/{itemId}/annotations", h.CreateAnnotation).Methods("POST")
	r.HandleFunc("/annotations/{id}", h.GetAnnotation).Methods("GET")
	r.HandleFunc("/annotations/{id}", h.DeleteAnnotation).Methods("DELETE")
	r.HandleFunc("/annotations/{id}/elements", h.QueryElements).Methods("GET")
	r.HandleFunc("/annotations/{id}/elements", h.AddElements).Methods("POST")
	r.HandleFunc("/annotations/{id}/export", h.Export).Methods("GET")
}

func (h *Handler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.ListAnnotations(r.Context(), mux.Vars(r)["itemId"])
	if err != nil {
		handleStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

type createRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Elements    []annotation.Element `json:"elements"`
}

type createResponse struct {
	annotation.Info
	Elements []annotation.Element `json:"elements"`
}

func (h *Handler) CreateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	info, err := h.store.CreateAnnotation(r.Context(), annotation.Info{
		ItemID:      mux.Vars(r)["itemId"],
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	resp := createResponse{Info: info, Elements: []annotation.Element{}}
	if len(req.Elements) > 0 {
		stored, err := h.store.AddElements(r.Context(), info.ID, req.Elements)
		if err != nil {
			h.store.DeleteAnnotation(r.Context(), info.ID)
			handleStoreError(w, err)
			return
		}
		metrics.AddElementsCreated(len(stored))
		resp.Elements = stored
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetAnnotation(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.GetAnnotation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	info, err := h.store.GetAnnotation(r.Context(), id)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	if err := h.store.DeleteAnnotation(r.Context(), id); err != nil {
		handleStoreError(w, err)
		return
	}
	h.notify(info.ItemID, id)
	w.WriteHeader(http.StatusNoContent)
}

// QueryElements returns one page of elements. Without a complete
// left/top/right/bottom region every element qualifies.
func (h *Handler) QueryElements(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, err := h.pageRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if _, err := h.store.GetAnnotation(r.Context(), id); err != nil {
		handleStoreError(w, err)
		return
	}

	elements, err := h.store.QueryElements(r.Context(), id, req)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	metrics.ObserveElementPage(len(elements))
	writeJSON(w, http.StatusOK, annotation.ElementPage{AnnotationID: id, Elements: elements})
}

func (h *Handler) AddElements(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var elements []annotation.Element
	if err := json.NewDecoder(r.Body).Decode(&elements); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	info, err := h.store.GetAnnotation(r.Context(), id)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	stored, err := h.store.AddElements(r.Context(), id, elements)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	metrics.AddElementsCreated(len(stored))
	h.notify(info.ItemID, id)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) notify(itemID, annotationID string) {
	if h.notifier != nil {
		h.notifier.AnnotationChanged(itemID, annotationID)
	}
}

var errBadQuery = errors.New("invalid query parameter")

func (h *Handler) pageRequest(r *http.Request) (annotation.PageRequest, error) {
	q := r.URL.Query()
	req := annotation.PageRequest{Region: r2.EmptyRect(), Limit: h.pageLimit}

	var bounds [4]float64
	present := 0
	for i, key := range []string{"left", "top", "right", "bottom"} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, fmt.Errorf("%w: %s", errBadQuery, key)
		}
		bounds[i] = v
		present++
	}
	if present == 4 {
		req.Region = r2.RectFromPoints(r2.Point{X: bounds[0], Y: bounds[1]}, r2.Point{X: bounds[2], Y: bounds[3]})
	}

	if raw := q.Get("minimumSize"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, fmt.Errorf("%w: %s", errBadQuery, "minimumSize")
		}
		req.MinimumSize = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("%w: %s", errBadQuery, "limit")
		}
		if v > 0 && (h.pageLimit <= 0 || v < h.pageLimit) {
			req.Limit = v
		}
	}
	return req, nil
}

func handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, store.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("store error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
