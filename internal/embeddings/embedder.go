// Package embeddings adapts the teacher's single-provider Embed(ctx, text)
// interface into the spec's per-index embedder configuration: a named
// source/model pair, an optional document template selecting which fields
// feed the embedding text, and a batch path used by the write queue's
// sub-batched embedding step (spec §4.3 step e).
package embeddings

import "context"

// Config names one embedder as configured on a tenant's index settings.
type Config struct {
	Source           string   `json:"source"`
	Model            string   `json:"model"`
	Dimensions       int      `json:"dimensions"`
	DocumentTemplate string   `json:"documentTemplate"`
	UserProvided     []string `json:"userProvided"`
}

// Provider produces vector representations for text, batched where the
// backing service supports it.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
