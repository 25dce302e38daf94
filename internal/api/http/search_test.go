package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/events"
	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/search"
	"github.com/flapjack/flapjack/internal/tenant"
)

type noExperiment struct{}

func (noExperiment) RunningForIndex(ctx context.Context, index string) (*model.Experiment, bool, error) {
	return nil, false, nil
}

func testExecutor(t *testing.T) *search.Executor {
	t.Helper()
	mgr := tenant.NewManager(tenant.Config{
		DataDir:            t.TempDir(),
		LocalNodeID:        "node-1",
		WriteQueueCapacity: 100,
		BatchMaxOps:        10,
		BatchWait:          10 * time.Millisecond,
		FacetCacheSize:     64,
		Logger:             zerolog.Nop(),
	})
	return &search.Executor{
		Tenants:      mgr,
		Experiments:  noExperiment{},
		VectorCache:  search.NewLRUQueryVectorCache(64),
		AnalyticsBus: events.NewBus(16),
	}
}

func withVars(req *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(req, vars)
}

func TestSearchHandler_Query_MissingTenantRejected(t *testing.T) {
	h := NewSearchHandler(testExecutor(t))
	req := httptest.NewRequest("POST", "/1/indexes/products/query", bytes.NewBufferString(`{"query":"shoes"}`))
	req = withVars(req, map[string]string{"index": "products"})
	w := httptest.NewRecorder()

	h.Query(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchHandler_Query_InvalidHitsPerPageRejected(t *testing.T) {
	h := NewSearchHandler(testExecutor(t))
	req := httptest.NewRequest("POST", "/1/indexes/products/query", bytes.NewBufferString(`{"query":"shoes","hitsPerPage":5000}`))
	req.Header.Set(tenantHeader, "tenant-a")
	req = withVars(req, map[string]string{"index": "products"})
	w := httptest.NewRecorder()

	h.Query(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchHandler_Query_EmptyIndexReturnsZeroHits(t *testing.T) {
	h := NewSearchHandler(testExecutor(t))
	req := httptest.NewRequest("POST", "/1/indexes/products/query", bytes.NewBufferString(`{"query":"shoes"}`))
	req.Header.Set(tenantHeader, "tenant-a")
	req = withVars(req, map[string]string{"index": "products"})
	w := httptest.NewRecorder()

	h.Query(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.SearchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, 0, resp.NbHits)
	require.Equal(t, "shoes", resp.Query)
}

func TestSearchHandler_MultiQuery_PreservesOrder(t *testing.T) {
	h := NewSearchHandler(testExecutor(t))
	body := `{"requests":[{"query":"a"},{"query":"b"},{"query":"c"}]}`
	req := httptest.NewRequest("POST", "/1/indexes/products/queries", bytes.NewBufferString(body))
	req.Header.Set(tenantHeader, "tenant-a")
	req = withVars(req, map[string]string{"index": "products"})
	w := httptest.NewRecorder()

	h.MultiQuery(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp multiQueryResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Results, 3)
	require.Equal(t, "a", resp.Results[0].Query)
	require.Equal(t, "b", resp.Results[1].Query)
	require.Equal(t, "c", resp.Results[2].Query)
}
