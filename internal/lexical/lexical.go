// Package lexical wraps github.com/blugelabs/bluge as the per-tenant BM25-
// style text index (spec §4.1 "lexical index", §4.7 hybrid search). Each
// tenant owns one Index backed by its own on-disk bluge directory under
// <data-dir>/<tenant>/lexical.
package lexical

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/analysis"
	"github.com/blugelabs/bluge/analysis/analyzer"

	"github.com/flapjack/flapjack/internal/model"
)

const idField = "_id"

// Index is a tenant's lexical (text) index.
type Index struct {
	path   string
	writer *bluge.Writer
}

// Open opens (creating if absent) the bluge index rooted at path.
func Open(path string) (*Index, error) {
	cfg := bluge.DefaultConfig(path)
	w, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("lexical: open %s: %w", path, err)
	}
	return &Index{path: path, writer: w}, nil
}

// Close releases the underlying writer/directory handles.
func (idx *Index) Close() error {
	return idx.writer.Close()
}

// Upsert indexes or reindexes a document, replacing any prior version.
func (idx *Index) Upsert(doc model.Document) error {
	bdoc := bluge.NewDocument(doc.ID)
	for name, value := range doc.Fields {
		addField(bdoc, name, value)
	}
	return idx.writer.Update(bluge.Identifier(doc.ID), bdoc)
}

// UpsertBatch applies many upserts and deletes atomically.
func (idx *Index) UpsertBatch(upserts []model.Document, deletes []string) error {
	batch := bluge.NewBatch()
	for _, doc := range upserts {
		bdoc := bluge.NewDocument(doc.ID)
		for name, value := range doc.Fields {
			addField(bdoc, name, value)
		}
		batch.Update(bluge.Identifier(doc.ID), bdoc)
	}
	for _, id := range deletes {
		batch.Delete(bluge.Identifier(id))
	}
	return idx.writer.Batch(batch)
}

// Delete removes a document by ID.
func (idx *Index) Delete(id string) error {
	return idx.writer.Delete(bluge.Identifier(id))
}

// DeleteAll removes the given document IDs in a single batch.
func (idx *Index) DeleteAll(ids []string) error {
	batch := bluge.NewBatch()
	for _, id := range ids {
		batch.Delete(bluge.Identifier(id))
	}
	return idx.writer.Batch(batch)
}

func addField(doc *bluge.Document, name string, value interface{}) {
	switch v := value.(type) {
	case string:
		doc.AddField(bluge.NewTextField(name, v).StoreValue().SearchTermPositions())
		doc.AddField(bluge.NewTextField(name+".exact", v).WithAnalyzer(keywordAnalyzer()).StoreValue())
	case float64:
		doc.AddField(bluge.NewNumericField(name, v).StoreValue())
	case int64:
		doc.AddField(bluge.NewNumericField(name, float64(v)).StoreValue())
	case bool:
		doc.AddField(bluge.NewTextField(name+".exact", strconv.FormatBool(v)).StoreValue())
	case []interface{}:
		for _, item := range v {
			addField(doc, name, item)
		}
	}
}

func keywordAnalyzer() *analysis.Analyzer {
	return analyzer.NewKeywordAnalyzer()
}

// Hit is a single lexical match.
type Hit struct {
	DocID string
	Score float64
}

// Search runs a free-text query across all text fields, returning the
// topK highest-scoring documents.
func (idx *Index) Search(ctx context.Context, queryText string, filters []string, topK int) ([]Hit, error) {
	reader, err := idx.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("lexical: reader: %w", err)
	}
	defer reader.Close()

	var q bluge.Query
	if queryText == "" {
		q = bluge.NewMatchAllQuery()
	} else {
		q = bluge.NewMatchQuery(queryText)
	}
	if len(filters) > 0 {
		boolQ := bluge.NewBooleanQuery().AddMust(q)
		for _, f := range filters {
			boolQ.AddMust(bluge.NewMatchQuery(f))
		}
		q = boolQ
	}

	req := bluge.NewTopNSearch(topK, q).WithStandardAggregations()
	dmi, err := reader.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical: search: %w", err)
	}

	var hits []Hit
	next, err := dmi.Next()
	for err == nil && next != nil {
		var docID string
		_ = next.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				docID = string(value)
			}
			return true
		})
		hits = append(hits, Hit{DocID: docID, Score: next.Score})
		next, err = dmi.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("lexical: iterate results: %w", err)
	}
	return hits, nil
}

// FacetCounts computes value counts for the given facet fields over the
// full corpus (spec §4.6 facet computation, pre-caching).
func (idx *Index) FacetCounts(ctx context.Context, fields []string) (model.FacetCounts, error) {
	reader, err := idx.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("lexical: reader: %w", err)
	}
	defer reader.Close()

	counts := make(model.FacetCounts)
	exactToField := make(map[string]string, len(fields))
	for _, field := range fields {
		counts[field] = map[string]int{}
		exactToField[field+".exact"] = field
	}

	req := bluge.NewAllMatches(bluge.NewMatchAllQuery())
	dmi, err := reader.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical: facet scan: %w", err)
	}
	next, err := dmi.Next()
	for err == nil && next != nil {
		_ = next.VisitStoredFields(func(field string, value []byte) bool {
			if orig, ok := exactToField[field]; ok {
				counts[orig][string(value)]++
			}
			return true
		})
		next, err = dmi.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("lexical: facet iterate: %w", err)
	}
	return counts, nil
}

// Count returns the total number of documents in the index.
func (idx *Index) Count() (uint64, error) {
	reader, err := idx.writer.Reader()
	if err != nil {
		return 0, err
	}
	defer reader.Close()
	return reader.Count()
}
