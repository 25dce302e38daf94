package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flapjack/flapjack/internal/api/respond"
	"github.com/flapjack/flapjack/internal/api/validate"
	"github.com/flapjack/flapjack/internal/apperr"
	"github.com/flapjack/flapjack/internal/experiment"
	"github.com/flapjack/flapjack/internal/model"
)

// ExperimentHandler serves experiment CRUD, lifecycle, and results routes
// (spec §6.3 Experiment CRUD).
type ExperimentHandler struct {
	Store   *experiment.Store
	Metrics experiment.MetricsSource
}

func NewExperimentHandler(store *experiment.Store, metrics experiment.MetricsSource) *ExperimentHandler {
	return &ExperimentHandler{Store: store, Metrics: metrics}
}

type createExperimentRequest struct {
	Name             string             `json:"name"`
	TargetIndex      string             `json:"targetIndex"`
	TrafficSplit     float64            `json:"trafficSplit"`
	ControlArm       model.Arm          `json:"controlArm"`
	VariantArm       model.Arm          `json:"variantArm"`
	PrimaryMetric    model.PrimaryMetric `json:"primaryMetric"`
	MinimumDays      int                `json:"minimumDays"`
	WinsorizationCap *float64           `json:"winsorizationCap,omitempty"`
}

// Create handles POST /2/abtests.
func (h *ExperimentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if err := validate.NonEmpty("name", req.Name); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.IndexName(req.TargetIndex); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.TrafficSplit(req.TrafficSplit); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	exp, err := h.Store.Create(r.Context(), experiment.CreateRequest{
		Name:             req.Name,
		TargetIndex:      req.TargetIndex,
		TrafficSplit:     req.TrafficSplit,
		ControlArm:       req.ControlArm,
		VariantArm:       req.VariantArm,
		PrimaryMetric:    req.PrimaryMetric,
		MinimumDays:      req.MinimumDays,
		WinsorizationCap: req.WinsorizationCap,
	})
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, exp)
}

// Get handles GET /2/abtests/{id}.
func (h *ExperimentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exp, err := h.Store.Get(r.Context(), id)
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, exp)
}

// Update handles PUT /2/abtests/{id}.
func (h *ExperimentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if err := validate.NonEmpty("name", req.Name); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.IndexName(req.TargetIndex); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.TrafficSplit(req.TrafficSplit); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	exp, err := h.Store.Update(r.Context(), mux.Vars(r)["id"], experiment.CreateRequest{
		Name:             req.Name,
		TargetIndex:      req.TargetIndex,
		TrafficSplit:     req.TrafficSplit,
		ControlArm:       req.ControlArm,
		VariantArm:       req.VariantArm,
		PrimaryMetric:    req.PrimaryMetric,
		MinimumDays:      req.MinimumDays,
		WinsorizationCap: req.WinsorizationCap,
	})
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, exp)
}

// Delete handles DELETE /2/abtests/{id}.
func (h *ExperimentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /2/abtests, optionally filtered by ?status=.
func (h *ExperimentHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.ExperimentStatus(r.URL.Query().Get("status"))
	exps, err := h.Store.List(r.Context(), status)
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, exps)
}

// Start handles POST /2/abtests/{id}/start.
func (h *ExperimentHandler) Start(w http.ResponseWriter, r *http.Request) {
	exp, err := h.Store.Start(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, exp)
}

// Stop handles POST /2/abtests/{id}/stop.
func (h *ExperimentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	exp, err := h.Store.Stop(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, exp)
}

type concludeRequest struct {
	Winner string `json:"winner"`
	Notes  string `json:"notes"`
}

// Conclude handles POST /2/abtests/{id}/conclude.
func (h *ExperimentHandler) Conclude(w http.ResponseWriter, r *http.Request) {
	var req concludeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		respond.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Winner != "" && req.Winner != "control" && req.Winner != "variant" {
		respond.WriteAppErr(w, apperr.InvalidQuery("winner must be \"control\", \"variant\", or empty"))
		return
	}
	exp, err := h.Store.Conclude(r.Context(), mux.Vars(r)["id"], experiment.ConcludeRequest{
		Winner: req.Winner,
		Notes:  req.Notes,
	})
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, exp)
}

// Results handles GET /2/abtests/{id}/results, computing the statistical
// readout from whatever metrics are currently available (spec §4.6.1).
func (h *ExperimentHandler) Results(w http.ResponseWriter, r *http.Request) {
	exp, err := h.Store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	control, variant, elapsedDays, covariates := experiment.ResolveMetrics(r.Context(), exp, h.Metrics)
	readout := experiment.BuildReadout(exp, control, variant, elapsedDays, covariates)
	resp := experiment.ToResponse(exp.ID, string(exp.Status), armResponse("control", control), armResponse("variant", variant), readout)
	respond.WriteJSON(w, http.StatusOK, resp)
}

func armResponse(name string, m model.ArmMetrics) experiment.ArmResponse {
	return experiment.ArmResponse{
		Name:             name,
		Searches:         m.Searches,
		Clicks:           m.Clicks,
		Conversions:      m.Conversions,
		CTR:              m.CTR(),
		ConversionRate:   m.ConversionRate(),
		RevenuePerSearch: m.RevenuePerSearch(),
	}
}
