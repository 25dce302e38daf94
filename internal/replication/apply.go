// Package replication implements peer-to-peer oplog replication: applying
// a batch of a peer's OpLogEntry records under LWW resolution (spec §4.5)
// and fanning out this node's own committed ops to configured peers.
package replication

import (
	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/tenant"
	"github.com/flapjack/flapjack/internal/writequeue"
)

// Result reports the outcome of applying an inbound batch.
type Result struct {
	TenantID string
	AckedSeq uint64
}

// Apply implements spec §4.5: for each entry, resolve against the local
// LWW map, update it immediately on acceptance, collapse per-doc
// duplicates keeping the last winner, and submit the surviving actions to
// the tenant's write queue with the no-LWW-update marker set so the queue
// preserves the peer's original tuple instead of restamping it with local
// wall-clock time.
func Apply(manager *tenant.Manager, tenantID string, ops []model.OpLogEntry) (Result, error) {
	r, err := manager.GetOrLoad(tenantID)
	if err != nil {
		return Result{}, err
	}

	var maxSeq uint64
	finalByDoc := make(map[string]writequeue.Action)
	order := make([]string, 0, len(ops))

	for _, e := range ops {
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		docID := e.DocID()
		if docID == "" {
			continue
		}
		candidate := model.LWWRecord{TimestampMs: e.TimestampMs, NodeID: e.NodeID}

		var accepted bool
		var opType model.OpType
		switch e.OpType {
		case model.OpUpsert:
			accepted = r.LWW.TryUpsert(docID, candidate)
			opType = model.OpUpsert
		case model.OpDelete:
			accepted = r.LWW.TryDelete(docID, candidate)
			opType = model.OpDelete
		default:
			continue
		}
		if !accepted {
			continue
		}

		action := writequeue.Action{
			DocID:       docID,
			OpType:      opType,
			TsMs:        e.TimestampMs,
			NodeID:      e.NodeID,
			NoLWWUpdate: true,
		}
		if opType == model.OpUpsert {
			if doc, ok := e.AsDocument(); ok {
				action.Document = doc
			}
		}

		if _, seen := finalByDoc[docID]; !seen {
			order = append(order, docID)
		}
		finalByDoc[docID] = action
	}

	for _, docID := range order {
		if err := r.Queue.Enqueue(finalByDoc[docID]); err != nil {
			return Result{}, err
		}
	}

	return Result{TenantID: tenantID, AckedSeq: maxSeq}, nil
}
