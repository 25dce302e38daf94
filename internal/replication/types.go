package replication

import "github.com/flapjack/flapjack/internal/model"

// ReplicateOpsRequest is the body of POST /internal/replicate (spec §6.2).
type ReplicateOpsRequest struct {
	TenantID string              `json:"tenant_id"`
	Ops      []model.OpLogEntry `json:"ops"`
}

// ReplicateOpsResponse acknowledges receipt, not durability — cross-node
// durability is best-effort per spec §4.5 step 5.
type ReplicateOpsResponse struct {
	TenantID string `json:"tenant_id"`
	AckedSeq uint64 `json:"acked_seq"`
}

// GetOpsResponse answers GET /internal/ops?tenant_id=X&since_seq=N.
type GetOpsResponse struct {
	TenantID   string              `json:"tenant_id"`
	Ops        []model.OpLogEntry `json:"ops"`
	CurrentSeq uint64              `json:"current_seq"`
}

// StatusResponse answers GET /internal/status.
type StatusResponse struct {
	NodeID             string `json:"node_id"`
	ReplicationEnabled bool   `json:"replication_enabled"`
	PeerCount          int    `json:"peer_count"`
	StorageTotalBytes  int64  `json:"storage_total_bytes"`
	TenantCount        int    `json:"tenant_count"`
}

// PeerStatus describes one peer's catch-up state for GET /internal/cluster/status.
type PeerStatus struct {
	PeerURL               string `json:"peer_url"`
	Healthy               bool   `json:"healthy"`
	LastSuccessSecondsAgo int64  `json:"last_success_secs_ago"`
}

// ClusterStatusResponse answers GET /internal/cluster/status. Not in
// spec.md's §6.2 endpoint list but present in the original implementation;
// carried here as a supplemented feature (SPEC_FULL.md §10) since it costs
// nothing beyond the per-peer state the fanout client already tracks.
type ClusterStatusResponse struct {
	NodeID string       `json:"node_id"`
	Peers  []PeerStatus `json:"peers"`
}
