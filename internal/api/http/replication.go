package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/flapjack/flapjack/internal/api/respond"
	"github.com/flapjack/flapjack/internal/api/validate"
	"github.com/flapjack/flapjack/internal/apperr"
	"github.com/flapjack/flapjack/internal/replication"
	"github.com/flapjack/flapjack/internal/tenant"
)

// ReplicationHandler serves the node-to-node replication surface (spec
// §6.2): accepting a peer's pushed ops, serving this node's own ops for a
// peer's catch-up pull, and reporting this node's replication status.
type ReplicationHandler struct {
	Manager   *tenant.Manager
	NodeID    string
	PeerCount int
}

func NewReplicationHandler(manager *tenant.Manager, nodeID string, peerCount int) *ReplicationHandler {
	return &ReplicationHandler{Manager: manager, NodeID: nodeID, PeerCount: peerCount}
}

// Replicate handles POST /internal/replicate.
func (h *ReplicationHandler) Replicate(w http.ResponseWriter, r *http.Request) {
	var req replication.ReplicateOpsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if err := validate.TenantID(req.TenantID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	result, err := replication.Apply(h.Manager, req.TenantID, req.Ops)
	if err != nil {
		respond.WriteAppErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, replication.ReplicateOpsResponse{
		TenantID: result.TenantID,
		AckedSeq: result.AckedSeq,
	})
}

// Ops handles GET /internal/ops?tenant_id=X&since_seq=N, serving this
// node's own oplog tail to a peer that's catching up.
func (h *ReplicationHandler) Ops(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if err := validate.TenantID(tenantID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	sinceSeq, err := strconv.ParseUint(r.URL.Query().Get("since_seq"), 10, 64)
	if err != nil && r.URL.Query().Get("since_seq") != "" {
		respond.WriteAppErr(w, apperr.InvalidQuery("since_seq must be a non-negative integer"))
		return
	}

	res, ok := h.Manager.Peek(tenantID)
	if !ok {
		respond.WriteAppErr(w, apperr.NotFound("tenant %q is not resident on this node", tenantID))
		return
	}

	respond.WriteJSON(w, http.StatusOK, replication.GetOpsResponse{
		TenantID:   tenantID,
		Ops:        res.Oplog.ReadSince(sinceSeq),
		CurrentSeq: res.Oplog.CurrentSeq(),
	})
}

// Status handles GET /internal/status.
func (h *ReplicationHandler) Status(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, replication.StatusResponse{
		NodeID:             h.NodeID,
		ReplicationEnabled: h.PeerCount > 0,
		PeerCount:          h.PeerCount,
		StorageTotalBytes:  0,
		TenantCount:        len(h.Manager.TenantIDs()),
	})
}
