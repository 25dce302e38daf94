package oplog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/model"
)

func TestAppend_AssignsMonotonicSeq(t *testing.T) {
	ol, err := Open(t.TempDir(), "tenant-a", "node-1")
	require.NoError(t, err)
	defer ol.Close()

	seq0, err := ol.Append(model.OpUpsert, map[string]interface{}{"id": "d1"}, 100, "node-1")
	require.NoError(t, err)
	require.Equal(t, uint64(0), seq0)

	seq1, err := ol.Append(model.OpUpsert, map[string]interface{}{"id": "d2"}, 101, "node-1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq1)
	require.Equal(t, uint64(1), ol.CurrentSeq())
}

func TestAppendBatch_AllOrNothing(t *testing.T) {
	ol, err := Open(t.TempDir(), "tenant-a", "node-1")
	require.NoError(t, err)
	defer ol.Close()

	seqs, err := ol.AppendBatch([]PendingOp{
		{OpType: model.OpUpsert, Payload: map[string]interface{}{"id": "d1"}, TsMs: 100, NodeID: "node-1"},
		{OpType: model.OpUpsert, Payload: map[string]interface{}{"id": "d2"}, TsMs: 101, NodeID: "node-1"},
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, seqs)
	require.Len(t, ol.ReadAll(), 2)
}

func TestOpen_RecoversNextSeqAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ol, err := Open(dir, "tenant-a", "node-1")
	require.NoError(t, err)
	_, err = ol.Append(model.OpUpsert, map[string]interface{}{"id": "d1"}, 100, "node-1")
	require.NoError(t, err)
	_, err = ol.Append(model.OpUpsert, map[string]interface{}{"id": "d2"}, 101, "node-1")
	require.NoError(t, err)
	require.NoError(t, ol.Close())

	reopened, err := Open(dir, "tenant-a", "node-1")
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(1), reopened.CurrentSeq())
	require.Len(t, reopened.ReadAll(), 2)

	seq, err := reopened.Append(model.OpDelete, map[string]interface{}{"id": "d1"}, 102, "node-1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq)
}

func TestReadSince_ReturnsOnlyNewerEntries(t *testing.T) {
	ol, err := Open(t.TempDir(), "tenant-a", "node-1")
	require.NoError(t, err)
	defer ol.Close()

	for i := 0; i < 5; i++ {
		_, err := ol.Append(model.OpUpsert, map[string]interface{}{"id": "d"}, uint64(100+i), "node-1")
		require.NoError(t, err)
	}

	entries := ol.ReadSince(2)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(3), entries[0].Seq)
	require.Equal(t, uint64(4), entries[1].Seq)
}

func TestTruncateBefore_DropsOlderEntries(t *testing.T) {
	ol, err := Open(t.TempDir(), "tenant-a", "node-1")
	require.NoError(t, err)
	defer ol.Close()

	for i := 0; i < 5; i++ {
		_, err := ol.Append(model.OpUpsert, map[string]interface{}{"id": "d"}, uint64(100+i), "node-1")
		require.NoError(t, err)
	}

	ol.TruncateBefore(3)
	remaining := ol.ReadAll()
	require.Len(t, remaining, 2)
	require.Equal(t, uint64(3), remaining[0].Seq)
}
