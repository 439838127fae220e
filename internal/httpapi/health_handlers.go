package httpapi

import (
	"net/http"

	"applypilot-engine/internal/ledger"
)

type HealthHandler struct {
	Ledger *ledger.Ledger
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.Ping(r.Context()); err != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}
