package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/replication"
	"github.com/flapjack/flapjack/internal/tenant"
)

func testTenantManager(t *testing.T) *tenant.Manager {
	t.Helper()
	return tenant.NewManager(tenant.Config{
		DataDir:            t.TempDir(),
		LocalNodeID:        "node-1",
		WriteQueueCapacity: 100,
		BatchMaxOps:        10,
		BatchWait:          10 * time.Millisecond,
		FacetCacheSize:     64,
		Logger:             zerolog.Nop(),
	})
}

func TestReplicationHandler_Replicate_AppliesOpsAndAcks(t *testing.T) {
	mgr := testTenantManager(t)
	h := NewReplicationHandler(mgr, "node-1", 2)

	reqBody := replication.ReplicateOpsRequest{
		TenantID: "tenant-a",
		Ops: []model.OpLogEntry{
			{
				Seq: 1, TimestampMs: 1000, NodeID: "node-2", TenantID: "tenant-a",
				OpType: model.OpUpsert,
				Payload: map[string]interface{}{
					"id":     "doc-1",
					"fields": map[string]interface{}{"title": "hello"},
				},
			},
		},
	}
	b, err := json.Marshal(reqBody)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/internal/replicate", bytes.NewReader(b))
	w := httptest.NewRecorder()
	h.Replicate(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp replication.ReplicateOpsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "tenant-a", resp.TenantID)
	require.Equal(t, uint64(1), resp.AckedSeq)
}

func TestReplicationHandler_Replicate_RejectsMissingTenant(t *testing.T) {
	h := NewReplicationHandler(testTenantManager(t), "node-1", 0)
	req := httptest.NewRequest("POST", "/internal/replicate", bytes.NewBufferString(`{"tenant_id":"","ops":[]}`))
	w := httptest.NewRecorder()

	h.Replicate(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplicationHandler_Ops_NotFoundForAbsentTenant(t *testing.T) {
	h := NewReplicationHandler(testTenantManager(t), "node-1", 0)
	req := httptest.NewRequest("GET", "/internal/ops?tenant_id=tenant-z&since_seq=0", nil)
	w := httptest.NewRecorder()

	h.Ops(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplicationHandler_Ops_ServesResidentTenant(t *testing.T) {
	mgr := testTenantManager(t)
	_, err := mgr.GetOrLoad("tenant-a")
	require.NoError(t, err)
	h := NewReplicationHandler(mgr, "node-1", 0)

	req := httptest.NewRequest("GET", "/internal/ops?tenant_id=tenant-a&since_seq=0", nil)
	w := httptest.NewRecorder()
	h.Ops(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp replication.GetOpsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "tenant-a", resp.TenantID)
	require.Equal(t, uint64(0), resp.CurrentSeq)
}

func TestReplicationHandler_Status(t *testing.T) {
	mgr := testTenantManager(t)
	_, err := mgr.GetOrLoad("tenant-a")
	require.NoError(t, err)
	h := NewReplicationHandler(mgr, "node-7", 3)

	req := httptest.NewRequest("GET", "/internal/status", nil)
	w := httptest.NewRecorder()
	h.Status(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp replication.StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "node-7", resp.NodeID)
	require.True(t, resp.ReplicationEnabled)
	require.Equal(t, 3, resp.PeerCount)
	require.Equal(t, 1, resp.TenantCount)
}
