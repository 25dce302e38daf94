package lww

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/model"
)

func TestTryUpsert_NewerWins(t *testing.T) {
	table := NewTable()
	require.True(t, table.TryUpsert("d1", model.LWWRecord{TimestampMs: 100, NodeID: "a"}))
	require.False(t, table.TryUpsert("d1", model.LWWRecord{TimestampMs: 50, NodeID: "a"}))
	require.True(t, table.TryUpsert("d1", model.LWWRecord{TimestampMs: 200, NodeID: "a"}))
}

func TestTryUpsert_TieBreaksOnNodeID(t *testing.T) {
	table := NewTable()
	require.True(t, table.TryUpsert("d1", model.LWWRecord{TimestampMs: 100, NodeID: "b"}))
	// Same timestamp, lexicographically smaller node ID loses under strict >.
	require.False(t, table.TryUpsert("d1", model.LWWRecord{TimestampMs: 100, NodeID: "a"}))
	require.True(t, table.TryUpsert("d1", model.LWWRecord{TimestampMs: 100, NodeID: "c"}))
}

func TestTryDelete_SameTupleAsUpsertWins(t *testing.T) {
	table := NewTable()
	tuple := model.LWWRecord{TimestampMs: 100, NodeID: "a"}
	require.True(t, table.TryUpsert("d1", tuple))
	// Delete with an identical tuple still wins (delete uses >=).
	require.True(t, table.TryDelete("d1", tuple))
}

func TestTryDelete_StaleDeleteRejected(t *testing.T) {
	table := NewTable()
	require.True(t, table.TryUpsert("d1", model.LWWRecord{TimestampMs: 200, NodeID: "a"}))
	require.False(t, table.TryDelete("d1", model.LWWRecord{TimestampMs: 100, NodeID: "a"}))
}

func TestRebuildFromOplog_ReproducesFinalState(t *testing.T) {
	entries := []model.OpLogEntry{
		{Seq: 0, TimestampMs: 100, NodeID: "a", OpType: model.OpUpsert, Payload: map[string]interface{}{"id": "d1"}},
		{Seq: 1, TimestampMs: 50, NodeID: "a", OpType: model.OpUpsert, Payload: map[string]interface{}{"id": "d1"}},
		{Seq: 2, TimestampMs: 300, NodeID: "a", OpType: model.OpDelete, Payload: map[string]interface{}{"id": "d1"}},
	}
	table := RebuildFromOplog(entries)
	rec, ok := table.Get("d1")
	require.True(t, ok)
	require.Equal(t, uint64(300), rec.TimestampMs)
}

func TestRegistry_IsolatesTenants(t *testing.T) {
	reg := NewRegistry()
	a := reg.TableFor("tenant-a")
	b := reg.TableFor("tenant-b")
	a.TryUpsert("d1", model.LWWRecord{TimestampMs: 1, NodeID: "n"})
	require.Equal(t, 1, a.Len())
	require.Equal(t, 0, b.Len())
}
