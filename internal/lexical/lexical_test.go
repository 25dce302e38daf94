package lexical

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/model"
)

func TestUpsertAndSearch_FindsMatchingDocument(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "lexical"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(model.Document{
		ID:     "d1",
		Fields: map[string]interface{}{"title": "red running shoes"},
	}))
	require.NoError(t, idx.Upsert(model.Document{
		ID:     "d2",
		Fields: map[string]interface{}{"title": "blue winter coat"},
	}))

	hits, err := idx.Search(context.Background(), "running", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "d1", hits[0].DocID)
}

func TestDelete_RemovesDocumentFromResults(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "lexical"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(model.Document{ID: "d1", Fields: map[string]interface{}{"title": "running shoes"}}))
	require.NoError(t, idx.Delete("d1"))

	hits, err := idx.Search(context.Background(), "running", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 0)
}

func TestFacetCounts_TalliesValues(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "lexical"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(model.Document{ID: "d1", Fields: map[string]interface{}{"brand": "acme"}}))
	require.NoError(t, idx.Upsert(model.Document{ID: "d2", Fields: map[string]interface{}{"brand": "acme"}}))
	require.NoError(t, idx.Upsert(model.Document{ID: "d3", Fields: map[string]interface{}{"brand": "globex"}}))

	counts, err := idx.FacetCounts(context.Background(), []string{"brand"})
	require.NoError(t, err)
	require.Equal(t, 2, counts["brand"]["acme"])
	require.Equal(t, 1, counts["brand"]["globex"])
}
