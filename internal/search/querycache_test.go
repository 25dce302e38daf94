package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUQueryVectorCache_PutThenGet(t *testing.T) {
	c := NewLRUQueryVectorCache(8)
	vec := []float32{1, 2, 3}
	c.Put("ollama:mxbai:hello", vec)

	got, ok := c.Get("ollama:mxbai:hello")
	require.True(t, ok)
	require.Equal(t, vec, got)
}

func TestLRUQueryVectorCache_MissOnUnknownKey(t *testing.T) {
	c := NewLRUQueryVectorCache(8)
	_, ok := c.Get("never-put")
	require.False(t, ok)
}

func TestLRUQueryVectorCache_EvictsAtCapacity(t *testing.T) {
	c := NewLRUQueryVectorCache(2)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})
	c.Put("c", []float32{3})

	require.LessOrEqual(t, len(c.entries), 2)
	_, ok := c.Get("c")
	require.True(t, ok, "most recently inserted entry must survive eviction")
}

func TestNewLRUQueryVectorCache_DefaultsNonPositiveCapacity(t *testing.T) {
	c := NewLRUQueryVectorCache(0)
	require.Equal(t, 4096, c.capacity)
}
