// Package ollama implements embeddings.Provider against a local Ollama
// embeddings server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Provider embeds text via Ollama's /api/embeddings endpoint.
type Provider struct {
	model      string
	dimensions int
	client     *http.Client
}

// New returns a Provider for the given model. dimensions is the expected
// embedding width used for fingerprinting; 0 means "unknown until the
// first call returns."
func New(model string, dimensions int) *Provider {
	return &Provider{model: model, dimensions: dimensions, client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *Provider) Dimensions() int { return p.dimensions }

func (p *Provider) baseURL() string {
	base := os.Getenv("FLAPJACK_EMBED_URL")
	if base == "" {
		base = "http://localhost:11434"
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base
}

// Embed embeds a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, p.dimensions), nil
	}

	type embReq struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	type embResp struct {
		Embedding []float64 `json:"embedding"`
		Error     string    `json:"error"`
	}

	body, err := json.Marshal(embReq{Model: p.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL()+"/api/embeddings", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: embeddings status %d", resp.StatusCode)
	}
	var out embResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama: embeddings error: %s", out.Error)
	}
	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	if p.dimensions == 0 {
		p.dimensions = len(vec)
	}
	return vec, nil
}

// EmbedBatch embeds each text sequentially. Ollama's embeddings endpoint
// has no native batch form, so the write queue's own sub-batching (spec
// §4.3 step e, batches of <=50) bounds how much concurrency this incurs.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("ollama: embed batch item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
