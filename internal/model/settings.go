package model

// Settings is a tenant index's durable configuration snapshot
// (settings.json on disk, spec §6.1).
type Settings struct {
	SearchableAttributes []string                    `json:"searchableAttributes"`
	FacetAttributes      []string                     `json:"attributesForFaceting"`
	Embedders            map[string]EmbedderSettings `json:"embedders"`
	DefaultSemanticRatio float64                     `json:"defaultSemanticRatio"`
}

// EmbedderSettings configures one named embedder on an index.
type EmbedderSettings struct {
	Source           string   `json:"source"`
	Model            string   `json:"model"`
	Dimensions       int      `json:"dimensions"`
	DocumentTemplate string   `json:"documentTemplate"`
	UserProvided     []string `json:"userProvided"`
}

// DefaultSettings returns an empty-but-valid settings snapshot.
func DefaultSettings() Settings {
	return Settings{
		SearchableAttributes: []string{"*"},
		FacetAttributes:      []string{},
		Embedders:            map[string]EmbedderSettings{},
		DefaultSemanticRatio: 0,
	}
}
