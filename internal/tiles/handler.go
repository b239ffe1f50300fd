package tiles

import (
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tilescope/tilescope/backend-go/internal/scene"
	"github.com/tilescope/tilescope/backend-go/internal/typeid"
)

const maxUploadSize = 256 << 20

// Handler serves image upload, metadata and tile endpoints.
type Handler struct {
	dir      string // one subdirectory per item
	tileSize int
}

func NewHandler(dir string, tileSize int) *Handler {
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("create tile dir", "error", err, "dir", dir)
	}
	if tileSize <= 0 {
		tileSize = scene.DefaultTileSize
	}
	return &Handler{dir: dir, tileSize: tileSize}
}

// Register mounts the tile routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/items", h.Upload).Methods("POST")
	r.HandleFunc("/items/{itemId}/tiles", h.Metadata).Methods("GET")
	r.HandleFunc("/items/{itemId}/tiles/zxy/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}", h.Tile).Methods("GET")
}

// itemDir rejects ids that could escape the tile directory.
func (h *Handler) itemDir(itemID string) (string, bool) {
	if itemID == "" || strings.ContainsAny(itemID, `/\.`) {
		return "", false
	}
	return filepath.Join(h.dir, itemID), true
}

// Upload handles POST /items (multipart form with a "file" field) and
// returns the new item id with its metadata.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or malformed form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/png") && !strings.HasPrefix(contentType, "image/jpeg") {
		writeError(w, http.StatusBadRequest, "only PNG and JPEG images are supported")
		return
	}

	img, _, err := image.Decode(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image: "+err.Error())
		return
	}

	itemID := typeid.NewItemID()
	dir, _ := h.itemDir(itemID)
	meta, err := Build(img, dir, h.tileSize)
	if err != nil {
		slog.Error("build tiles", "item", itemID, "error", err)
		os.RemoveAll(dir)
		writeError(w, http.StatusInternalServerError, "failed to build tiles")
		return
	}

	slog.Info("image uploaded", "item", itemID, "name", header.Filename, "sizeX", meta.SizeX, "sizeY", meta.SizeY)
	writeJSON(w, http.StatusCreated, struct {
		ItemID string `json:"itemId"`
		Metadata
	}{itemID, meta})
}

// Metadata handles GET /items/{itemId}/tiles.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.itemDir(mux.Vars(r)["itemId"])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	meta, err := ReadMetadata(dir)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Error("read tile metadata", "dir", dir, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// Tile handles GET /items/{itemId}/tiles/zxy/{z}/{x}/{y}.
func (h *Handler) Tile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	dir, ok := h.itemDir(vars["itemId"])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	// the route patterns guarantee digits
	z, _ := strconv.Atoi(vars["z"])
	x, _ := strconv.Atoi(vars["x"])
	y, _ := strconv.Atoi(vars["y"])

	path := filepath.Join(dir, strconv.Itoa(z), strconv.Itoa(x)+"_"+strconv.Itoa(y)+".png")
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "tile not found")
		return
	}
	// Tiles never change once built.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, path)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
