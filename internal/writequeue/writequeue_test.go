package writequeue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/embeddings"
	"github.com/flapjack/flapjack/internal/lexical"
	"github.com/flapjack/flapjack/internal/lww"
	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/oplog"
)

func newTestQueue(t *testing.T) (*Queue, *lexical.Index, *oplog.Oplog, *lww.Table) {
	t.Helper()
	dir := t.TempDir()
	lex, err := lexical.Open(filepath.Join(dir, "lexical"))
	require.NoError(t, err)
	t.Cleanup(func() { lex.Close() })

	ol, err := oplog.Open(dir, "tenant-a", "node-1")
	require.NoError(t, err)
	t.Cleanup(func() { ol.Close() })

	table := lww.NewTable()

	deps := Dependencies{
		TenantID:    "tenant-a",
		LocalNodeID: "node-1",
		Lexical:     lex,
		Oplog:       ol,
		LWW:         table,
		Vectors:     VectorIndexes{},
		Providers:   map[string]embeddings.Provider{},
		Settings:    func() model.Settings { return model.DefaultSettings() },
		Logger:      zerolog.Nop(),
	}
	q := New(deps, 100, 10, 50*time.Millisecond)
	t.Cleanup(q.Shutdown)
	return q, lex, ol, table
}

func TestCommitBatch_UpsertThenDeleteCollapsesToDelete(t *testing.T) {
	q, _, ol, _ := newTestQueue(t)

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	require.NoError(t, q.Enqueue(Action{
		DocID: "d1", OpType: model.OpUpsert,
		Document: model.Document{ID: "d1", Fields: map[string]interface{}{"title": "x"}},
		TsMs:     100, NodeID: "node-1",
		Done: done1,
	}))
	require.NoError(t, q.Enqueue(Action{
		DocID: "d1", OpType: model.OpDelete,
		TsMs: 101, NodeID: "node-1",
		Done: done2,
	}))

	<-done1
	<-done2

	entries := ol.ReadAll()
	require.Len(t, entries, 1)
	require.Equal(t, model.OpDelete, entries[0].OpType)
}

func TestCommitBatch_StaleUpsertRejectedByLWW(t *testing.T) {
	q, _, ol, table := newTestQueue(t)
	table.TryUpsert("d1", model.LWWRecord{TimestampMs: 500, NodeID: "node-1"})

	done := make(chan error, 1)
	require.NoError(t, q.Enqueue(Action{
		DocID: "d1", OpType: model.OpUpsert,
		Document: model.Document{ID: "d1", Fields: map[string]interface{}{"title": "stale"}},
		TsMs:     100, NodeID: "node-1",
		Done: done,
	}))
	<-done

	require.Len(t, ol.ReadAll(), 0)
}
