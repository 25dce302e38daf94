package embeddings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsToOllama(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestNew_RejectsUnknownSource(t *testing.T) {
	_, err := New(Config{Source: "does-not-exist"})
	require.Error(t, err)
}
