package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/sledilnik/internal/tracking"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// rejection is the body of a refused status change.
type rejection struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// trackingError maps tracker errors onto HTTP responses.
func trackingError(w http.ResponseWriter, r *http.Request, err error) {
	var settle *tracking.SettlementError
	switch {
	case errors.Is(err, tracking.ErrItemNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, tracking.ErrItemExists):
		jsonError(w, http.StatusConflict, "item already exists")
	case errors.Is(err, tracking.ErrInvalidItem):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracking.ErrNotPermittedForRole):
		jsonResponse(w, http.StatusForbidden, rejection{Error: "invalid transition", Reason: reasonCode(err)})
	case errors.Is(err, tracking.ErrNotForwardMove):
		jsonResponse(w, http.StatusConflict, rejection{Error: "invalid transition", Reason: reasonCode(err)})
	case errors.As(err, &settle):
		slog.Error("ledger settlement failed", "item", settle.ItemID, "function", settle.Function, "error", settle.Err)
		jsonError(w, http.StatusBadGateway, "ledger unavailable")
	default:
		slog.Error("tracking request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

// reasonCode names a validation rejection for API clients. It returns ""
// for a nil error.
func reasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tracking.ErrNotPermittedForRole):
		return "not_permitted_for_role"
	case errors.Is(err, tracking.ErrNotForwardMove):
		return "not_forward_move"
	default:
		return "invalid"
	}
}
