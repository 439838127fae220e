package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"applypilot-engine/internal/secrets"
)

type SecretsHandler struct{}

type setSecretReq struct {
	Value string `json:"value"`
}

// SetByPath serves POST /api/secrets/{name}. Values are write-only:
// there is no GET.
func (h SecretsHandler) SetByPath(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/secrets/")
	if !secrets.KnownName(name) {
		writeError(w, r, http.StatusNotFound, "unknown_secret", "unknown secret name: "+name)
		return
	}

	var req setSecretReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	if err := secrets.Set(name, req.Value); err != nil {
		writeError(w, r, http.StatusBadRequest, "store_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteByPath serves DELETE /api/secrets/{name}.
func (h SecretsHandler) DeleteByPath(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/secrets/")
	if !secrets.KnownName(name) {
		writeError(w, r, http.StatusNotFound, "unknown_secret", "unknown secret name: "+name)
		return
	}
	if err := secrets.Delete(name); err != nil {
		writeError(w, r, http.StatusBadRequest, "delete_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
