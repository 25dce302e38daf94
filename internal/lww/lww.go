// Package lww tracks, per tenant, the last-writer-wins tuple observed for
// each document. It is the arbiter spec §4.2 describes: every upsert or
// delete — local or replicated — must clear this map before it is allowed
// to touch the lexical or vector index.
package lww

import (
	"sync"

	"github.com/flapjack/flapjack/internal/model"
)

// Table is one tenant's document-id -> LWWRecord map.
type Table struct {
	mu      sync.RWMutex
	records map[string]model.LWWRecord
}

// NewTable returns an empty LWW table.
func NewTable() *Table {
	return &Table{records: make(map[string]model.LWWRecord)}
}

// Get returns the current record for docID, if any.
func (t *Table) Get(docID string) (model.LWWRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[docID]
	return r, ok
}

// TryUpsert applies an upsert with candidate tuple iff candidate is
// strictly greater than the existing record (spec §4.2: upsert requires
// strict `>`; a tie is resolved in favor of the already-applied write).
// Returns true if the upsert should proceed.
func (t *Table) TryUpsert(docID string, candidate model.LWWRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.records[docID]
	if ok && existing.GreaterOrEqual(candidate) {
		return false
	}
	t.records[docID] = candidate
	return true
}

// TryDelete applies a delete with candidate tuple iff candidate is greater
// than or equal to the existing record (spec §4.2: delete uses `>=` so a
// delete carrying the same tuple as a prior upsert still wins). Returns
// true if the delete should proceed. The record is retained (not removed)
// so a later, older upsert can still be correctly rejected.
func (t *Table) TryDelete(docID string, candidate model.LWWRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.records[docID]
	if ok && candidate.Less(existing) {
		return false
	}
	t.records[docID] = candidate
	return true
}

// Set unconditionally stamps docID's record. RebuildFromOplog calls it
// after making its own LWW comparison for each replayed entry.
func (t *Table) Set(docID string, record model.LWWRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[docID] = record
}

// Delete removes docID's record entirely, dropping the document's history
// outright rather than recording a tombstone tuple.
func (t *Table) Delete(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, docID)
}

// Len returns the number of tracked documents.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Registry holds one Table per tenant.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewRegistry returns an empty tenant registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// TableFor returns (creating if absent) the LWW table for tenantID.
func (r *Registry) TableFor(tenantID string) *Table {
	r.mu.RLock()
	t, ok := r.tables[tenantID]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[tenantID]; ok {
		return t
	}
	t = NewTable()
	r.tables[tenantID] = t
	return t
}

// Drop removes a tenant's table entirely.
func (r *Registry) Drop(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, tenantID)
}

// RebuildFromOplog replays entries in order to reconstruct a tenant's LWW
// table, per spec §4.4's recovery pass. Entries must already be sorted
// ascending by seq (the oplog guarantees this).
func RebuildFromOplog(entries []model.OpLogEntry) *Table {
	t := NewTable()
	for _, e := range entries {
		docID := e.DocID()
		if docID == "" {
			continue
		}
		candidate := model.LWWRecord{TimestampMs: e.TimestampMs, NodeID: e.NodeID}
		switch e.OpType {
		case model.OpUpsert:
			existing, ok := t.Get(docID)
			if !ok || existing.Less(candidate) {
				t.Set(docID, candidate)
			}
		case model.OpDelete:
			existing, ok := t.Get(docID)
			if !ok || !candidate.Less(existing) {
				t.Set(docID, candidate)
			}
		}
	}
	return t
}
