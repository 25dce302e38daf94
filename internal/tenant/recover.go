package tenant

import (
	"fmt"

	"github.com/flapjack/flapjack/internal/embeddings"
	"github.com/flapjack/flapjack/internal/lexical"
	"github.com/flapjack/flapjack/internal/lww"
	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/oplog"
	"github.com/flapjack/flapjack/internal/vectorindex"
	"github.com/flapjack/flapjack/internal/writequeue"
)

// recover implements spec §4.4: open (or rebuild) the lexical index,
// rebuild the LWW map from the full oplog, replay any entries newer than
// the committed-seq watermark across four passes, and bring the vector
// index up to date.
func (m *Manager) recover(tenantID string) (*Resources, error) {
	root, err := tenantDir(m.dataDir, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: create dir: %w", tenantID, err)
	}

	ol, err := oplog.Open(root, tenantID, m.localNodeID)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: open oplog: %w", tenantID, err)
	}

	// Step 1: open the lexical index; a corrupt/absent index still has a
	// directory bluge can create fresh, so a first-attempt failure just
	// forces a full oplog replay on retry (step 3) rather than failing
	// recovery outright.
	lex, err := lexical.Open(lexicalDir(root))
	forceFullReplay := false
	if err != nil {
		forceFullReplay = true
		lex, err = lexical.Open(lexicalDir(root))
		if err != nil {
			return nil, fmt.Errorf("tenant %q: open lexical index: %w", tenantID, err)
		}
	}

	// Step 2: rebuild LWW from the full oplog, including already-committed
	// entries, so stale replicated ops arriving post-restart are rejected.
	allEntries := ol.ReadAll()
	lwwTable := lww.RebuildFromOplog(allEntries)

	// Step 3: determine the replay window. forceFullReplay is tracked
	// separately from committedSeq rather than by zeroing it, since seq
	// numbering is zero-based and a zeroed watermark would still exclude
	// the oplog's very first entry (Seq == 0) from the replay.
	committedSeq, err := readCommittedSeq(root)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", tenantID, err)
	}

	var toReplay []model.OpLogEntry
	for _, e := range allEntries {
		if forceFullReplay || e.Seq > committedSeq {
			toReplay = append(toReplay, e)
		}
	}

	settings, err := readSettings(root)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", tenantID, err)
	}
	rules, err := readRules(root)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", tenantID, err)
	}
	synonyms, err := readSynonyms(root)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", tenantID, err)
	}

	// First + second pass: settings/rules/synonyms ops restore config, then
	// the settings snapshot is loaded (readSettings above already covers
	// the steady-state load; settings-op replay below covers entries newer
	// than the last snapshot write).
	for _, e := range toReplay {
		if e.OpType == model.OpSettings {
			if snap, ok := e.Payload["settings"].(map[string]interface{}); ok {
				settings = decodeSettings(snap)
			}
		}
	}

	// Third pass: document ops.
	var highestSeq uint64
	for _, e := range toReplay {
		if e.Seq > highestSeq {
			highestSeq = e.Seq
		}
		switch e.OpType {
		case model.OpUpsert:
			doc, ok := e.AsDocument()
			if !ok {
				continue
			}
			lexicalFields, _ := doc.SplitVectors()
			_ = lex.Delete(doc.ID)
			_ = lex.Upsert(model.Document{ID: doc.ID, Fields: lexicalFields})
		case model.OpDelete:
			_ = lex.Delete(e.DocID())
		case model.OpClear:
			// A clear during replay is resolved against the LWW table
			// (already rebuilt in step 2), not tracked here directly.
		}
	}

	// Fourth pass: rebuild vector indexes from _vectors payloads carried by
	// replayed upserts, one index per configured embedder.
	vectors := make(writequeue.VectorIndexes)
	providers := make(map[string]embeddings.Provider)
	for name, es := range settings.Embedders {
		fp := vectorindex.Fingerprint{
			EmbedderName:     name,
			Source:           es.Source,
			Model:            es.Model,
			Dimensions:       es.Dimensions,
			DocumentTemplate: es.DocumentTemplate,
		}
		idx, ok, err := vectorindex.Open(vectorsDir(root), fp)
		if err != nil {
			return nil, fmt.Errorf("tenant %q: open vector index %q: %w", tenantID, name, err)
		}
		if !ok {
			idx = vectorindex.New(vectorsDir(root), fp)
		}
		for _, e := range toReplay {
			if e.OpType != model.OpUpsert {
				continue
			}
			doc, ok := e.AsDocument()
			if !ok {
				continue
			}
			_, vecs := doc.SplitVectors()
			if vec, ok := vecs[name]; ok {
				idx.Upsert(doc.ID, vec)
			}
		}
		for _, e := range toReplay {
			if e.OpType == model.OpDelete {
				idx.Delete(e.DocID())
			}
		}
		vectors[name] = idx

		provider, err := m.providerFactory(embeddings.Config{
			Source: es.Source, Model: es.Model, Dimensions: es.Dimensions,
			DocumentTemplate: es.DocumentTemplate, UserProvided: es.UserProvided,
		})
		if err != nil {
			return nil, fmt.Errorf("tenant %q: embedder %q: %w", tenantID, name, err)
		}
		providers[name] = provider
	}

	if err := writeSettings(root, settings); err != nil {
		return nil, fmt.Errorf("tenant %q: persist settings: %w", tenantID, err)
	}

	if len(toReplay) > 0 {
		if err := writeCommittedSeq(root, highestSeq); err != nil {
			return nil, fmt.Errorf("tenant %q: persist committed_seq: %w", tenantID, err)
		}
	}
	for _, idx := range vectors {
		if err := idx.Save(); err != nil {
			return nil, fmt.Errorf("tenant %q: save vector index: %w", tenantID, err)
		}
	}

	r := &Resources{
		TenantID:   tenantID,
		root:       root,
		Oplog:      ol,
		LWW:        lwwTable,
		Lexical:    lex,
		Vectors:    vectors,
		FacetCache: newFacetCache(m.facetCacheSize),
		settings:   settings,
		rules:      rules,
		synonyms:   synonyms,
	}

	r.Queue = writequeue.New(writequeue.Dependencies{
		TenantID:             tenantID,
		LocalNodeID:          m.localNodeID,
		Lexical:              lex,
		Oplog:                ol,
		LWW:                  lwwTable,
		Vectors:              vectors,
		Providers:            providers,
		Settings:             r.Settings,
		InvalidateFacetCache: r.FacetCache.Invalidate,
		SaveCommittedSeq:     func(seq uint64) error { return writeCommittedSeq(root, seq) },
		Replicator:           m.replicator,
		Logger:               m.logger,
	}, m.writeQueueCapacity, m.batchMaxOps, m.batchWait)

	return r, nil
}

func decodeSettings(raw map[string]interface{}) model.Settings {
	s := model.DefaultSettings()
	if attrs, ok := raw["searchableAttributes"].([]interface{}); ok {
		s.SearchableAttributes = toStringSlice(attrs)
	}
	if attrs, ok := raw["attributesForFaceting"].([]interface{}); ok {
		s.FacetAttributes = toStringSlice(attrs)
	}
	if ratio, ok := raw["defaultSemanticRatio"].(float64); ok {
		s.DefaultSemanticRatio = ratio
	}
	return s
}

func toStringSlice(raw []interface{}) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
