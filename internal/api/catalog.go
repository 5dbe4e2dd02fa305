package api

import (
	"net/http"

	"github.com/erazemk/sledilnik/internal/model"
	"github.com/erazemk/sledilnik/internal/tracking"
)

type rolePermissions struct {
	Role      model.Role     `json:"role"`
	Permitted []model.Status `json:"permitted"`
}

// Statuses handles GET /api/statuses.
func Statuses(w http.ResponseWriter, r *http.Request) {
	statuses := model.Statuses()
	out := make([]model.StatusInfo, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, s.Info())
	}
	jsonResponse(w, http.StatusOK, out)
}

// Roles handles GET /api/roles.
func Roles(w http.ResponseWriter, r *http.Request) {
	roles := model.Roles()
	out := make([]rolePermissions, 0, len(roles))
	for _, role := range roles {
		out = append(out, rolePermissions{Role: role, Permitted: model.PermittedStatuses(role)})
	}
	jsonResponse(w, http.StatusOK, out)
}

// DashboardHandler serves the overview of all items.
type DashboardHandler struct {
	Tracker *tracking.Tracker
}

// Get handles GET /api/dashboard.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Tracker.Summary(r.Context())
	if err != nil {
		trackingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}
