package replication

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/flapjack/flapjack/internal/model"
)

// peerState tracks the last successful push to one peer, surfaced via
// ClusterStatusResponse.
type peerState struct {
	lastSuccess atomic.Int64 // unix seconds; 0 if never succeeded
	healthy     atomic.Bool
}

// FanoutClient pushes this node's committed oplog batches to every
// configured peer over HTTP (spec §6.2's POST /internal/replicate
// contract), using resty the way the teacher's outbound HTTP calls do.
type FanoutClient struct {
	client *resty.Client
	peers  []string
	states map[string]*peerState
	logger zerolog.Logger
}

// NewFanoutClient builds a client pointed at the given peer base URLs.
func NewFanoutClient(peers []string, logger zerolog.Logger) *FanoutClient {
	states := make(map[string]*peerState, len(peers))
	for _, p := range peers {
		states[p] = &peerState{}
	}
	return &FanoutClient{
		client: resty.New().SetTimeout(10 * time.Second).SetRetryCount(2).SetRetryWaitTime(200 * time.Millisecond),
		peers:  peers,
		states: states,
		logger: logger,
	}
}

// Push sends ops for tenantID to every peer concurrently, best-effort
// (spec §4.5 step 5: "cross-node durability is best-effort"). It does not
// return an error for individual peer failures; each is logged and
// recorded against that peer's health state.
func (c *FanoutClient) Push(ctx context.Context, tenantID string, ops []model.OpLogEntry) {
	if len(c.peers) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, peer := range c.peers {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			c.pushOne(ctx, peer, tenantID, ops)
		}(peer)
	}
	wg.Wait()
}

func (c *FanoutClient) pushOne(ctx context.Context, peer, tenantID string, ops []model.OpLogEntry) {
	var resp ReplicateOpsResponse
	_, err := c.client.R().
		SetContext(ctx).
		SetBody(ReplicateOpsRequest{TenantID: tenantID, Ops: ops}).
		SetResult(&resp).
		Post(peer + "/internal/replicate")

	state := c.states[peer]
	if err != nil {
		state.healthy.Store(false)
		c.logger.Warn().Err(err).Str("peer", peer).Str("tenant_id", tenantID).Msg("replication push failed")
		return
	}
	state.healthy.Store(true)
	state.lastSuccess.Store(time.Now().Unix())
}

// ClusterStatus reports per-peer health for GET /internal/cluster/status.
func (c *FanoutClient) ClusterStatus(nodeID string) ClusterStatusResponse {
	now := time.Now().Unix()
	peers := make([]PeerStatus, 0, len(c.peers))
	for _, p := range c.peers {
		st := c.states[p]
		last := st.lastSuccess.Load()
		agoSec := int64(-1)
		if last > 0 {
			agoSec = now - last
		}
		peers = append(peers, PeerStatus{
			PeerURL:               p,
			Healthy:               st.healthy.Load(),
			LastSuccessSecondsAgo: agoSec,
		})
	}
	return ClusterStatusResponse{NodeID: nodeID, Peers: peers}
}

// FetchOps pulls ops newer than sinceSeq from a single peer, used by a
// node catching up after a restart or network partition.
func (c *FanoutClient) FetchOps(ctx context.Context, peer, tenantID string, sinceSeq uint64) (GetOpsResponse, error) {
	var resp GetOpsResponse
	r, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("tenant_id", tenantID).
		SetQueryParam("since_seq", fmt.Sprintf("%d", sinceSeq)).
		SetResult(&resp).
		Get(peer + "/internal/ops")
	if err != nil {
		return GetOpsResponse{}, fmt.Errorf("replication: fetch ops from %s: %w", peer, err)
	}
	if r.IsError() {
		return GetOpsResponse{}, fmt.Errorf("replication: fetch ops from %s: status %d", peer, r.StatusCode())
	}
	return resp, nil
}
