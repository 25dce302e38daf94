package embeddings

import "fmt"

// New constructs the Provider named by cfg.Source. Supported sources: "ollama".
func New(cfg Config) (Provider, error) {
	switch cfg.Source {
	case "", "ollama":
		model := cfg.Model
		if model == "" {
			model = "mxbai-embed-large"
		}
		return newOllamaProvider(model, cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("embeddings: unsupported source %q", cfg.Source)
	}
}
