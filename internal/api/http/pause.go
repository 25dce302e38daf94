package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flapjack/flapjack/internal/api/respond"
	"github.com/flapjack/flapjack/internal/api/validate"
	"github.com/flapjack/flapjack/internal/tenant"
)

// PauseHandler serves the operator-facing write-pause toggle (spec §6.2).
// Pause is scoped per tenant, not per index — an index name doesn't
// identify a Resources on its own, so the path's :index segment is read as
// the tenant ID. This mirrors how the search routes fall back to a tenant
// header rather than inventing a per-index pause flag the storage layer
// doesn't otherwise need.
type PauseHandler struct {
	Manager *tenant.Manager
}

func NewPauseHandler(manager *tenant.Manager) *PauseHandler {
	return &PauseHandler{Manager: manager}
}

// Pause handles POST /internal/pause/{index}.
func (h *PauseHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, (*tenant.Resources).Pause)
}

// Resume handles POST /internal/resume/{index}.
func (h *PauseHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, (*tenant.Resources).Resume)
}

func (h *PauseHandler) toggle(w http.ResponseWriter, r *http.Request, apply func(*tenant.Resources)) {
	tenantID := mux.Vars(r)["index"]
	if err := validate.TenantID(tenantID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	res, err := h.Manager.GetOrLoad(tenantID)
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	apply(res)
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"paused":    res.IsPaused(),
	})
}
