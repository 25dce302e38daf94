package tenant

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/embeddings"
	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/writequeue"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(Config{
		DataDir:            t.TempDir(),
		LocalNodeID:        "node-1",
		WriteQueueCapacity: 100,
		BatchMaxOps:        10,
		BatchWait:          30 * time.Millisecond,
		FacetCacheSize:     64,
		ProviderFactory: func(embeddings.Config) (embeddings.Provider, error) {
			return nil, nil
		},
		Logger: zerolog.Nop(),
	})
}

func TestGetOrLoad_CreatesResourcesOnce(t *testing.T) {
	m := testManager(t)
	r1, err := m.GetOrLoad("tenant-a")
	require.NoError(t, err)
	r2, err := m.GetOrLoad("tenant-a")
	require.NoError(t, err)
	require.Same(t, r1, r2)
}

func TestGetOrLoad_IsolatesTenants(t *testing.T) {
	m := testManager(t)
	a, err := m.GetOrLoad("tenant-a")
	require.NoError(t, err)
	b, err := m.GetOrLoad("tenant-b")
	require.NoError(t, err)
	require.NotEqual(t, a.root, b.root)
}

func TestRecovery_RebuildsLWWAcrossRestart(t *testing.T) {
	dataDir := t.TempDir()
	cfg := Config{
		DataDir: dataDir, LocalNodeID: "node-1",
		WriteQueueCapacity: 100, BatchMaxOps: 10, BatchWait: 20 * time.Millisecond,
		FacetCacheSize: 64, Logger: zerolog.Nop(),
		ProviderFactory: func(embeddings.Config) (embeddings.Provider, error) { return nil, nil },
	}

	m1 := NewManager(cfg)
	r, err := m1.GetOrLoad("tenant-a")
	require.NoError(t, err)

	done := make(chan error, 1)
	require.NoError(t, r.Queue.Enqueue(writequeue.Action{
		DocID: "d1", OpType: model.OpUpsert,
		Document: model.Document{ID: "d1", Fields: map[string]interface{}{"title": "hello"}},
		TsMs:     1000, NodeID: "node-1",
		Done: done,
	}))
	<-done
	m1.Shutdown()

	m2 := NewManager(cfg)
	r2, err := m2.GetOrLoad("tenant-a")
	require.NoError(t, err)
	rec, ok := r2.LWW.Get("d1")
	require.True(t, ok)
	require.Equal(t, uint64(1000), rec.TimestampMs)
}
