package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/sledilnik/internal/ledger"
)

// LedgerHandler exposes the local hash chain. It is only routed when the
// chain backend is in use.
type LedgerHandler struct {
	Chain *ledger.Chain
}

// Verify handles GET /api/ledger/verify.
func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	report, err := h.Chain.Verify(r.Context())
	if err != nil {
		slog.Error("failed to verify ledger", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to verify ledger")
		return
	}
	if !report.Valid {
		slog.Warn("ledger verification failed", "broken_at", report.BrokenAt, "reason", report.Reason)
	}
	jsonResponse(w, http.StatusOK, report)
}

// Entry handles GET /api/ledger/entries/{ref}.
func (h *LedgerHandler) Entry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Chain.Lookup(r.Context(), r.PathValue("ref"))
	if err != nil {
		slog.Error("failed to look up ledger entry", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to look up ledger entry")
		return
	}
	if entry == nil {
		jsonError(w, http.StatusNotFound, "ledger entry not found")
		return
	}
	jsonResponse(w, http.StatusOK, entry)
}
