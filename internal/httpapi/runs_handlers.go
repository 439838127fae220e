package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"applypilot-engine/internal/config"
	"applypilot-engine/internal/domain"
	"applypilot-engine/internal/pipeline"
)

type RunsHandler struct {
	Manager     *pipeline.Manager
	CfgVal      *atomic.Value
	BuildPolicy func(tenantID string, cfg config.Config) (domain.Policy, error)
}

type startRunReq struct {
	TenantID string `json:"tenant_id"`
}

type startRunResp struct {
	RunID string `json:"run_id"`
}

func (h RunsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRunReq
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON: "+err.Error())
			return
		}
	}
	if req.TenantID == "" {
		req.TenantID = "default"
	}

	cfg := h.CfgVal.Load().(config.Config)
	policy, err := h.BuildPolicy(req.TenantID, cfg)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "bad_policy", err.Error())
		return
	}

	runID, err := h.Manager.StartRun(policy)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			writeError(w, r, http.StatusConflict, "run_in_progress", err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}
	writeJSONStatus(w, http.StatusAccepted, startRunResp{RunID: runID})
}

// GetByPath serves GET /runs/{id}.
func (h RunsHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown path")
		return
	}
	sum, err := h.Manager.Status(id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, sum)
}

// CancelByPath serves POST /runs/{id}/cancel.
func (h RunsHandler) CancelByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/runs/")
	id, ok := strings.CutSuffix(rest, "/cancel")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown path")
		return
	}
	if err := h.Manager.Cancel(id); err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
