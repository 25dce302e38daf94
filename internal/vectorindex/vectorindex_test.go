package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testFingerprint() Fingerprint {
	return Fingerprint{Source: "ollama", Model: "mxbai-embed-large", Dimensions: 3}
}

func TestSearch_RanksByCosineSimilarity(t *testing.T) {
	idx := New(t.TempDir(), testFingerprint())
	idx.Upsert("d1", []float32{1, 0, 0})
	idx.Upsert("d2", []float32{0, 1, 0})
	idx.Upsert("d3", []float32{0.9, 0.1, 0})

	hits := idx.Search([]float32{1, 0, 0}, 2)
	require.Len(t, hits, 2)
	require.Equal(t, "d1", hits[0].DocID)
	require.Equal(t, "d3", hits[1].DocID)
}

func TestDelete_RemovesVector(t *testing.T) {
	idx := New(t.TempDir(), testFingerprint())
	idx.Upsert("d1", []float32{1, 0, 0})
	idx.Upsert("d2", []float32{0, 1, 0})
	idx.Delete("d1")
	require.Equal(t, 1, idx.Len())
	hits := idx.Search([]float32{1, 0, 0}, 10)
	require.Len(t, hits, 1)
	require.Equal(t, "d2", hits[0].DocID)
}

func TestSaveOpen_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	fp := testFingerprint()
	idx := New(dir, fp)
	idx.Upsert("d1", []float32{1, 0, 0})
	idx.Upsert("d2", []float32{0, 1, 0})
	require.NoError(t, idx.Save())

	loaded, ok, err := Open(dir, fp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, loaded.Len())
}

func TestOpen_FingerprintMismatchForcesRebuild(t *testing.T) {
	dir := t.TempDir()
	idx := New(dir, testFingerprint())
	idx.Upsert("d1", []float32{1, 0, 0})
	require.NoError(t, idx.Save())

	otherFP := Fingerprint{Source: "ollama", Model: "nomic-embed-text", Dimensions: 768}
	_, ok, err := Open(dir, otherFP)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpen_DocumentTemplateChangeForcesRebuild(t *testing.T) {
	dir := t.TempDir()
	fp := testFingerprint()
	fp.DocumentTemplate = "{{.title}}"
	idx := New(dir, fp)
	idx.Upsert("d1", []float32{1, 0, 0})
	require.NoError(t, idx.Save())

	changedFP := fp
	changedFP.DocumentTemplate = "{{.title}} {{.description}}"
	_, ok, err := Open(dir, changedFP)
	require.NoError(t, err)
	require.False(t, ok, "editing the document template must invalidate persisted vectors embedded under the old template")
}

func TestOpen_MissingFileReturnsNotFound(t *testing.T) {
	_, ok, err := Open(t.TempDir(), testFingerprint())
	require.NoError(t, err)
	require.False(t, ok)
}
