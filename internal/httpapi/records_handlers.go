package httpapi

import (
	"net/http"
	"strconv"

	"applypilot-engine/internal/domain"
	"applypilot-engine/internal/ledger"
)

type RecordsHandler struct {
	Ledger *ledger.Ledger
}

// List serves GET /records?tenant=&stage=&skip_reason=&limit=.
func (h RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	tenant := q.Get("tenant")
	if tenant == "" {
		tenant = "default"
	}

	opts := ledger.ListOpts{SkipReason: q.Get("skip_reason")}
	if s := q.Get("stage"); s != "" {
		st := domain.Stage(s)
		if !st.Valid() {
			writeError(w, r, http.StatusBadRequest, "bad_stage", "unknown stage: "+s)
			return
		}
		opts.Stage = st
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "bad_limit", "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}

	recs, err := h.Ledger.List(r.Context(), tenant, opts)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	writeJSON(w, map[string]any{"records": recs, "count": len(recs)})
}

// Stats serves GET /stats?tenant=.
func (h RecordsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		tenant = "default"
	}
	st, err := h.Ledger.Stats(r.Context(), tenant)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	writeJSON(w, st)
}
