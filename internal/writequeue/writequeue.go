// Package writequeue implements the single-consumer-per-tenant batching
// pipeline described in spec §4.3: buffer incoming mutations up to a size
// or time deadline, resolve LWW/vector/lexical state, and commit the batch
// atomically across the lexical index, the vector indexes, and the oplog.
package writequeue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flapjack/flapjack/internal/apperr"
	"github.com/flapjack/flapjack/internal/embeddings"
	"github.com/flapjack/flapjack/internal/lexical"
	"github.com/flapjack/flapjack/internal/lww"
	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/oplog"
	"github.com/flapjack/flapjack/internal/vectorindex"
)

// Action is one pending mutation submitted to a tenant's write queue.
type Action struct {
	DocID    string
	OpType   model.OpType // OpUpsert, OpDelete, or OpClear
	Document model.Document

	// TsMs/NodeID carry the LWW tuple this action should be evaluated
	// against. Local API writes leave these zero and get stamped with
	// wall-clock/local node ID in classifyAndDedup; replicated
	// writes set them explicitly and also set NoLWWUpdate, since the
	// replication apply layer already recorded the tuple (spec §4.5).
	TsMs        uint64
	NodeID      string
	NoLWWUpdate bool

	Done chan error // optional: closed (with error, if any) once committed
}

// VectorIndexes groups the per-embedder vector indexes for a tenant.
type VectorIndexes map[string]*vectorindex.Index

// Replicator fans a tenant's freshly committed ops out to peer nodes
// (spec §4.5 step 5, best-effort). Declared here rather than depending on
// the replication package directly, since replication already depends on
// tenant which depends on writequeue — importing it back would cycle.
type Replicator interface {
	Push(ctx context.Context, tenantID string, ops []model.OpLogEntry)
}

// Dependencies bundles everything a Queue needs, all owned by the tenant
// manager and handed in at construction.
type Dependencies struct {
	TenantID             string
	LocalNodeID          string
	Lexical              *lexical.Index
	Oplog                *oplog.Oplog
	LWW                  *lww.Table
	Vectors              VectorIndexes
	Providers            map[string]embeddings.Provider
	Settings             func() model.Settings
	InvalidateFacetCache func()
	SaveCommittedSeq     func(seq uint64) error
	Replicator           Replicator
	Logger               zerolog.Logger
}

// Queue is one tenant's write-queue consumer.
type Queue struct {
	deps Dependencies

	ch   chan Action
	done chan struct{}
	wg   sync.WaitGroup

	batchMaxOps int
	batchWait   time.Duration

	vstash *vectorStash
}

// New creates a queue and starts its consumer goroutine.
func New(deps Dependencies, capacity, batchMaxOps int, batchWait time.Duration) *Queue {
	q := &Queue{
		deps:        deps,
		ch:          make(chan Action, capacity),
		done:        make(chan struct{}),
		batchMaxOps: batchMaxOps,
		batchWait:   batchWait,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue submits an action without blocking. Returns apperr.QueueFull if
// the channel is at capacity.
func (q *Queue) Enqueue(a Action) error {
	select {
	case q.ch <- a:
		return nil
	default:
		return apperr.QueueFull("write queue for tenant %q is full", q.deps.TenantID)
	}
}

// Shutdown signals the consumer to stop (closing q.done) and blocks until
// it has drained the already-queued actions, flushed its final batch and
// exited, per spec §5's graceful-shutdown discipline.
func (q *Queue) Shutdown() {
	close(q.done)
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	var buf []Action
	timer := time.NewTimer(q.batchWait)
	defer timer.Stop()

	flush := func() {
		if len(buf) == 0 {
			return
		}
		if err := q.commitBatch(buf); err != nil {
			q.deps.Logger.Error().Err(err).Str("tenant_id", q.deps.TenantID).Msg("commit_batch failed")
			for _, a := range buf {
				if a.Done != nil {
					a.Done <- err
					close(a.Done)
				}
			}
		} else {
			for _, a := range buf {
				if a.Done != nil {
					close(a.Done)
				}
			}
		}
		buf = nil
	}

	for {
		select {
		case <-q.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case a := <-q.ch:
					buf = append(buf, a)
				default:
					flush()
					return
				}
			}
		case a := <-q.ch:
			buf = append(buf, a)
			if len(buf) >= q.batchMaxOps {
				flush()
				timer.Reset(q.batchWait)
			}
		case <-timer.C:
			flush()
			timer.Reset(q.batchWait)
		}
	}
}

// resolvedAction is the post-dedup, post-LWW-check decision for one doc_id.
type resolvedAction struct {
	docID       string
	opType      model.OpType
	document    model.Document
	tsMs        uint64
	nodeID      string
	noLWWUpdate bool
}

// commitBatch implements spec §4.3 step 2, a-m.
func (q *Queue) commitBatch(actions []Action) error {
	q.vstash = &vectorStash{data: make(map[string]map[string][]float32)}
	settings := q.deps.Settings()

	// b+d: classify and collapse intra-batch duplicates, last-LWW-order wins.
	resolved := q.classifyAndDedup(actions)
	if len(resolved) == 0 {
		return nil
	}

	// c: vector extraction happens inside classify via document.SplitVectors;
	// resolved upserts already carry stripped lexical fields, and their
	// extracted vectors sit in q.vstash (see classifyAndDedup).
	upserts := make(map[string]*resolvedAction)
	var deletes []string
	for i := range resolved {
		r := &resolved[i]
		switch r.opType {
		case model.OpUpsert:
			upserts[r.docID] = r
		case model.OpDelete:
			deletes = append(deletes, r.docID)
		}
	}

	// f: embedding — group texts needing embedding per embedder.
	if err := q.embedMissingVectors(upserts, settings); err != nil {
		// Embedder failure degrades gracefully: lexical apply still proceeds
		// (spec §4.3.f); the error is logged, not propagated.
		q.deps.Logger.Warn().Err(err).Str("tenant_id", q.deps.TenantID).Msg("embedding degraded, proceeding lexically")
	}

	// g: lexical apply.
	lexUpserts := make([]model.Document, 0, len(upserts))
	for _, r := range upserts {
		lexUpserts = append(lexUpserts, r.document)
	}
	if err := q.deps.Lexical.UpsertBatch(lexUpserts, deletes); err != nil {
		return fmt.Errorf("writequeue: lexical apply: %w", err)
	}

	// h: vector apply, per embedder.
	extractedVectors := q.extractedVectorsByEmbedder(resolved)
	for embedderName, idx := range q.deps.Vectors {
		for docID, vec := range extractedVectors[embedderName] {
			idx.Upsert(docID, vec)
		}
		for _, docID := range deletes {
			idx.Delete(docID)
		}
	}

	// i: oplog append, one entry per resolved action, embedded vectors
	// written back so replay reproduces them without re-embedding.
	pending := make([]oplog.PendingOp, 0, len(resolved))
	for _, r := range resolved {
		payload := map[string]interface{}{"id": r.docID}
		if r.opType == model.OpUpsert {
			fields := make(map[string]interface{}, len(r.document.Fields)+1)
			for k, v := range r.document.Fields {
				fields[k] = v
			}
			vectors := map[string]interface{}{}
			for embedderName := range q.deps.Vectors {
				if vec, ok := extractedVectors[embedderName][r.docID]; ok {
					vectors[embedderName] = float32sToInterface(vec)
				}
			}
			if len(vectors) > 0 {
				fields[model.ReservedVectorsField] = vectors
			}
			payload["fields"] = fields
		}
		pending = append(pending, oplog.PendingOp{OpType: r.opType, Payload: payload, TsMs: r.tsMs, NodeID: r.nodeID})
	}
	seqs, err := q.deps.Oplog.AppendBatch(pending)
	if err != nil {
		return fmt.Errorf("writequeue: oplog append: %w", err)
	}

	if q.deps.Replicator != nil && len(seqs) > 0 {
		entries := make([]model.OpLogEntry, len(pending))
		for i, p := range pending {
			entries[i] = model.OpLogEntry{
				Seq:         seqs[i],
				TimestampMs: p.TsMs,
				NodeID:      p.NodeID,
				TenantID:    q.deps.TenantID,
				OpType:      p.OpType,
				Payload:     p.Payload,
			}
		}
		go q.deps.Replicator.Push(context.Background(), q.deps.TenantID, entries)
	}

	// j: commit lexical writer is implicit in bluge's Batch/Update calls
	// (bluge auto-commits on Batch); invalidate facet cache and persist
	// vector indexes.
	if q.deps.InvalidateFacetCache != nil {
		q.deps.InvalidateFacetCache()
	}
	for _, idx := range q.deps.Vectors {
		if err := idx.Save(); err != nil {
			return fmt.Errorf("writequeue: save vector index: %w", err)
		}
	}

	// k: LWW update, primary-only actions already had their tuple stamped
	// during classify (local writes) or preserved (replicated writes); here
	// we only need to persist the final state, which classifyAndDedup
	// already wrote into q.deps.LWW.

	// l: committed-seq sidecar, atomically after commit succeeds.
	if len(seqs) > 0 && q.deps.SaveCommittedSeq != nil {
		highest := seqs[len(seqs)-1]
		if err := q.deps.SaveCommittedSeq(highest); err != nil {
			return fmt.Errorf("writequeue: save committed seq: %w", err)
		}
	}

	return nil
}

func float32sToInterface(v []float32) []interface{} {
	out := make([]interface{}, len(v))
	for i, f := range v {
		out[i] = f
	}
	return out
}

// classifyAndDedup applies the LWW gate to each action not marked
// NoLWWUpdate (updating the LWW map immediately on acceptance, per §4.2's
// "before the op is queued" rule; marked actions were already recorded by
// replication apply) and then collapses multiple actions on the same doc_id, keeping
// only the final resolved action per doc (upsert-then-delete collapses to
// delete, delete-then-upsert to upsert, multiple upserts keep the last).
func (q *Queue) classifyAndDedup(actions []Action) []resolvedAction {
	byDoc := make(map[string]resolvedAction)
	order := make([]string, 0, len(actions))

	for _, a := range actions {
		tsMs, nodeID := a.TsMs, a.NodeID
		if tsMs == 0 && nodeID == "" {
			tsMs = uint64(time.Now().UnixMilli())
			nodeID = q.deps.LocalNodeID
		}
		candidate := model.LWWRecord{TimestampMs: tsMs, NodeID: nodeID}

		var accepted bool
		switch a.OpType {
		case model.OpUpsert:
			accepted = a.NoLWWUpdate || q.deps.LWW.TryUpsert(a.DocID, candidate)
		case model.OpDelete:
			accepted = a.NoLWWUpdate || q.deps.LWW.TryDelete(a.DocID, candidate)
		default:
			continue
		}
		if !accepted {
			continue
		}

		doc := a.Document
		var vectors map[string][]float32
		if a.OpType == model.OpUpsert {
			lexicalFields, extracted := doc.SplitVectors()
			doc = model.Document{ID: a.DocID, Fields: lexicalFields}
			vectors = extracted
		}

		if _, seen := byDoc[a.DocID]; !seen {
			order = append(order, a.DocID)
		}
		byDoc[a.DocID] = resolvedAction{
			docID:       a.DocID,
			opType:      a.OpType,
			document:    doc,
			tsMs:        tsMs,
			nodeID:      nodeID,
			noLWWUpdate: a.NoLWWUpdate,
			// vectors stashed via side map below
		}
		if vectors != nil {
			q.stashVectors(a.DocID, vectors)
		} else {
			q.clearStashedVectors(a.DocID)
		}
	}

	out := make([]resolvedAction, 0, len(order))
	for _, docID := range order {
		out = append(out, byDoc[docID])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].docID < out[j].docID })
	return out
}

// vectorStash holds per-batch extracted vectors keyed by doc_id, scoped to
// the lifetime of a single commitBatch call; resolvedAction itself carries
// no vectors.
type vectorStash struct {
	mu   sync.Mutex
	data map[string]map[string][]float32 // docID -> embedderName -> vector
}

func (q *Queue) stashVectors(docID string, vectors map[string][]float32) {
	q.initStash()
	q.vstash.mu.Lock()
	defer q.vstash.mu.Unlock()
	q.vstash.data[docID] = vectors
}

func (q *Queue) clearStashedVectors(docID string) {
	q.initStash()
	q.vstash.mu.Lock()
	defer q.vstash.mu.Unlock()
	delete(q.vstash.data, docID)
}

func (q *Queue) initStash() {
	if q.vstash == nil {
		q.vstash = &vectorStash{data: make(map[string]map[string][]float32)}
	}
}

// embedMissingVectors fills in vectors for upserts whose configured
// embedders did not receive a userProvided vector, rendering each
// embedder's document template and calling its provider in sub-batches of
// <=50 (spec §4.3.f).
func (q *Queue) embedMissingVectors(upserts map[string]*resolvedAction, settings model.Settings) error {
	for name, embedderSettings := range settings.Embedders {
		provider, ok := q.deps.Providers[name]
		if !ok {
			continue
		}
		var docIDs []string
		var texts []string
		for docID, r := range upserts {
			if q.hasVector(docID, name) {
				continue
			}
			docIDs = append(docIDs, docID)
			texts = append(texts, renderTemplate(embedderSettings.DocumentTemplate, r.document))
		}
		if len(docIDs) == 0 {
			continue
		}

		const subBatchSize = 50
		for start := 0; start < len(texts); start += subBatchSize {
			end := start + subBatchSize
			if end > len(texts) {
				end = len(texts)
			}
			vectors, err := provider.EmbedBatch(context.Background(), texts[start:end])
			if err != nil {
				return fmt.Errorf("writequeue: embed via %q: %w", name, err)
			}
			for i, vec := range vectors {
				q.stashVectorFor(docIDs[start+i], name, vec)
			}
		}
	}
	return nil
}

func (q *Queue) hasVector(docID, embedderName string) bool {
	if q.vstash == nil {
		return false
	}
	q.vstash.mu.Lock()
	defer q.vstash.mu.Unlock()
	_, ok := q.vstash.data[docID][embedderName]
	return ok
}

func (q *Queue) stashVectorFor(docID, embedderName string, vec []float32) {
	q.initStash()
	q.vstash.mu.Lock()
	defer q.vstash.mu.Unlock()
	if q.vstash.data[docID] == nil {
		q.vstash.data[docID] = make(map[string][]float32)
	}
	q.vstash.data[docID][embedderName] = vec
}

func (q *Queue) extractedVectorsByEmbedder(resolved []resolvedAction) map[string]map[string][]float32 {
	out := make(map[string]map[string][]float32)
	if q.vstash == nil {
		return out
	}
	q.vstash.mu.Lock()
	defer q.vstash.mu.Unlock()
	for _, r := range resolved {
		if r.opType != model.OpUpsert {
			continue
		}
		for embedderName, vec := range q.vstash.data[r.docID] {
			if out[embedderName] == nil {
				out[embedderName] = make(map[string][]float32)
			}
			out[embedderName][r.docID] = vec
		}
	}
	return out
}

// renderTemplate is a minimal {{doc.<field>}}-substitution renderer; full
// template-language support is out of scope (spec.md §11 non-goals name
// only "arbitrary scripting languages" but the teacher corpus carries no
// templating library, so this stays a small hand-rolled substitution).
func renderTemplate(tmpl string, doc model.Document) string {
	if tmpl == "" {
		return flattenFields(doc.Fields)
	}
	out := tmpl
	for k, v := range doc.Fields {
		placeholder := "{{doc." + k + "}}"
		out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", v))
	}
	return out
}

func flattenFields(fields map[string]interface{}) string {
	var b strings.Builder
	for _, v := range fields {
		fmt.Fprintf(&b, "%v ", v)
	}
	return b.String()
}
