package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/sledilnik/internal/imaging"
	"github.com/erazemk/sledilnik/internal/live"
	"github.com/erazemk/sledilnik/internal/model"
	"github.com/erazemk/sledilnik/internal/store"
	"github.com/erazemk/sledilnik/internal/tracking"
)

// ItemsHandler handles item registration, lookup and search.
type ItemsHandler struct {
	Tracker *tracking.Tracker
	DB      *sql.DB
	Images  imaging.Processor
	Hub     *live.Hub
}

// MaxListLimit caps the limit parameter of item listings.
const MaxListLimit = 500

type itemSnapshot struct {
	Item    *model.Item   `json:"item"`
	History []model.Event `json:"history"`
}

// parseFilter reads q, status, sort and limit from the query string.
func parseFilter(r *http.Request) (model.ItemFilter, error) {
	q := r.URL.Query()
	f := model.ItemFilter{Query: q.Get("q"), Sort: model.SortNewest}

	if s := q.Get("status"); s != "" {
		st, err := model.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Status = st
	}

	switch s := q.Get("sort"); s {
	case "", model.SortNewest:
	case model.SortOldest:
		f.Sort = model.SortOldest
	default:
		return f, errors.New("sort must be newest or oldest")
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = min(n, MaxListLimit)
	}
	return f, nil
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.Tracker.Search(r.Context(), f)
	if err != nil {
		trackingError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req tracking.NewItem
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Tracker.RegisterItem(r.Context(), claims.Actor(), req)
	if err != nil {
		trackingError(w, r, err)
		return
	}

	slog.Info("item registered", "user", claims.Username, "item", item.ID, "name", item.Name)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, history, err := h.Tracker.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		trackingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, itemSnapshot{Item: item, History: history})
}

// History handles GET /api/items/{id}/history.
func (h *ItemsHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.Tracker.HistoryOf(r.Context(), r.PathValue("id"))
	if err != nil {
		trackingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, history)
}

// Latest handles GET /api/items/{id}/latest.
func (h *ItemsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Tracker.Latest(r.Context(), r.PathValue("id"))
	if err != nil {
		trackingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, ev)
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Tracker.Item(r.Context(), id); err != nil {
		trackingError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Images.MaxBytes+1<<20)
	if err := r.ParseMultipartForm(h.Images.MaxBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := h.Images.Process(file)
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetItemImage(r.Context(), h.DB, id, photo.Data, photo.MIME); err != nil {
		slog.Error("failed to store image", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "image uploaded",
		"width":   photo.Width,
		"height":  photo.Height,
	})
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	data, mime, err := store.GetItemImage(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		slog.Error("failed to get image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// Live handles GET /api/items/{id}/live.
func (h *ItemsHandler) Live(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Tracker.Item(r.Context(), id); err != nil {
		trackingError(w, r, err)
		return
	}
	h.Hub.ServeItem(w, r, id)
}
