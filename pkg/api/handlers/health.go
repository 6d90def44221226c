package handlers

import (
	"net/http"

	"github.com/marmos91/webauthd/pkg/identity"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	accounts identity.AccountStore
}

// NewHealthHandler creates a health handler backed by the account store.
func NewHealthHandler(accounts identity.AccountStore) *HealthHandler {
	return &HealthHandler{accounts: accounts}
}

// Liveness reports that the process is up.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{"service": "webauthd"}))
}

// Readiness reports whether the account database can be read. Provisioning
// cannot proceed without it.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if _, err := h.accounts.List(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("account database unavailable: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(nil))
}
