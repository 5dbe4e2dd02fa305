package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/sledilnik/internal/cache"
	"github.com/erazemk/sledilnik/internal/model"
	"github.com/erazemk/sledilnik/internal/tracking"
)

// EventsHandler handles status changes and the questions leading up to
// them.
type EventsHandler struct {
	Tracker *tracking.Tracker
	Cache   *cache.StatusCache // optional
}

type statusRequest struct {
	Status string `json:"status"`
}

type updateStatusRequest struct {
	Status   string          `json:"status"`
	Location *model.Location `json:"location"`
	Notes    string          `json:"notes"`
}

type validateResponse struct {
	Current   model.Status `json:"current_status"`
	Requested model.Status `json:"requested_status"`
	Role      model.Role   `json:"role"`
	Valid     bool         `json:"valid"`
	Reason    string       `json:"reason,omitempty"`
}

type transitionsResponse struct {
	Current   model.Status   `json:"current_status"`
	Role      model.Role     `json:"role"`
	Available []model.Status `json:"available"`
}

func validLocation(l *model.Location) bool {
	if l == nil {
		return true
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// Create handles POST /api/items/{id}/events.
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validLocation(req.Location) {
		jsonError(w, http.StatusBadRequest, "location out of range")
		return
	}

	id := r.PathValue("id")
	actor := claims.Actor()
	ev, err := h.Tracker.UpdateStatus(r.Context(), id, actor, tracking.Update{
		Status:   status,
		Location: req.Location,
		Notes:    req.Notes,
	})
	if err != nil {
		slog.Info("status update rejected", "user", claims.Username, "item", id, "status", status, "error", err)
		trackingError(w, r, err)
		return
	}

	slog.Info("status updated", "user", claims.Username, "item", id, "status", ev.Status, "ref", ev.SettlementRef)
	jsonResponse(w, http.StatusCreated, ev)
}

// Validate handles POST /api/items/{id}/validate. It answers whether the
// caller could set the status without recording anything.
func (h *EventsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.Tracker.Item(r.Context(), r.PathValue("id"))
	if err != nil {
		trackingError(w, r, err)
		return
	}

	role := claims.Actor().Role
	verdict := tracking.Validate(item.CurrentStatus, role, status)
	jsonResponse(w, http.StatusOK, validateResponse{
		Current:   item.CurrentStatus,
		Requested: status,
		Role:      role,
		Valid:     verdict == nil,
		Reason:    reasonCode(verdict),
	})
}

// Transitions handles GET /api/items/{id}/transitions.
func (h *EventsHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	item, err := h.Tracker.Item(r.Context(), r.PathValue("id"))
	if err != nil {
		trackingError(w, r, err)
		return
	}

	role := claims.Actor().Role
	jsonResponse(w, http.StatusOK, transitionsResponse{
		Current:   item.CurrentStatus,
		Role:      role,
		Available: tracking.AvailableTransitions(item.CurrentStatus, role),
	})
}

// Status handles GET /api/items/{id}/status, served from the cache when
// one is configured.
func (h *EventsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if h.Cache != nil {
		cached, err := h.Cache.Get(r.Context(), id)
		if err != nil {
			slog.Warn("status cache read failed", "item", id, "error", err)
		}
		if cached != nil {
			w.Header().Set("X-Cache", "HIT")
			jsonResponse(w, http.StatusOK, cached)
			return
		}
	}

	ev, err := h.Tracker.Latest(r.Context(), id)
	if err != nil {
		trackingError(w, r, err)
		return
	}

	if h.Cache != nil {
		if _, err := h.Cache.Fill(r.Context(), *ev); err != nil {
			slog.Warn("status cache write failed", "item", id, "error", err)
		}
		w.Header().Set("X-Cache", "MISS")
	}
	jsonResponse(w, http.StatusOK, cache.StatusOf(*ev))
}
