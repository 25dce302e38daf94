package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flapjack/flapjack/internal/api/respond"
	"github.com/flapjack/flapjack/internal/api/validate"
	"github.com/flapjack/flapjack/internal/apperr"
	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/search"
)

// tenantHeader carries the caller's tenant ID. The system is multi-tenant
// (spec §1) but spec §6.3 doesn't name a resolution mechanism for the
// search/query routes; a header keeps the Algolia-compatible request body
// shape untouched.
const tenantHeader = "X-Flapjack-Tenant"

// SearchHandler serves the Algolia-compatible query routes (spec §6.3).
type SearchHandler struct {
	Executor *search.Executor
}

func NewSearchHandler(exec *search.Executor) *SearchHandler {
	return &SearchHandler{Executor: exec}
}

func tenantFromRequest(r *http.Request) string {
	return r.Header.Get(tenantHeader)
}

// Query handles POST /1/indexes/:index/query.
func (h *SearchHandler) Query(w http.ResponseWriter, r *http.Request) {
	index := mux.Vars(r)["index"]
	tenantID := tenantFromRequest(r)
	if err := validate.TenantID(tenantID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.IndexName(index); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	var req model.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if err := validate.HitsPerPage(req.HitsPerPage); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	resp, err := h.Executor.Execute(r.Context(), tenantID, index, req)
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}

// multiQueryRequest is the Algolia-compatible batch envelope for
// POST /1/indexes/:index/queries: every request runs against the path's
// index, each entry is executed independently, and results are returned in
// request order (spec §6.3).
type multiQueryRequest struct {
	Requests []model.SearchRequest `json:"requests"`
}

type multiQueryResult struct {
	Results []model.SearchResponse `json:"results"`
}

// MultiQuery handles POST /1/indexes/:index/queries: every sub-request runs
// concurrently against the same index/tenant, results returned in order.
func (h *SearchHandler) MultiQuery(w http.ResponseWriter, r *http.Request) {
	index := mux.Vars(r)["index"]
	tenantID := tenantFromRequest(r)
	if err := validate.TenantID(tenantID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.IndexName(index); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	var batch multiQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		respond.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	results := make([]model.SearchResponse, len(batch.Requests))
	errs := make([]error, len(batch.Requests))
	done := make(chan int, len(batch.Requests))
	for i, req := range batch.Requests {
		go func(i int, req model.SearchRequest) {
			resp, err := h.Executor.Execute(r.Context(), tenantID, index, req)
			results[i], errs[i] = resp, err
			done <- i
		}(i, req)
	}
	for range batch.Requests {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			respond.WriteAppErr(w, apperr.Wrap(apperr.CodeInternal, "one or more queries in the batch failed", err))
			return
		}
	}
	respond.WriteJSON(w, http.StatusOK, multiQueryResult{Results: results})
}
