// Package config resolves process configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for a flapjack node. Environment variables
// are parsed with the FLAPJACK_ prefix (e.g. FLAPJACK_NODE_ID).
type Config struct {
	// NodeID is the stable node identifier used in LWW tie-break and oplog
	// stamping. Required for multi-node deployments.
	NodeID string `envconfig:"NODE_ID" default:"node-1"`

	// DataDir is the root directory under which each tenant's oplog,
	// settings, and vector files live.
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	// OplogRetention is the retention window in entries (default 1000).
	OplogRetention int `envconfig:"OPLOG_RETENTION" default:"1000"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// PostgresDSN backs the experiment store. Required for experiment CRUD;
	// the write/read/replication engine itself has no SQL dependency.
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// EmbedProvider/EmbedModel configure the default embedder used when a
	// tenant's settings do not name one explicitly.
	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:"mxbai-embed-large"`
	EmbedURL      string `envconfig:"EMBED_URL" default:"http://localhost:11434"`

	// Peers is the static list of peer base URLs this node replicates to.
	Peers []string `envconfig:"PEERS"`

	// WriteQueueCapacity bounds the per-tenant write queue channel.
	WriteQueueCapacity int `envconfig:"WRITE_QUEUE_CAPACITY" default:"1000"`

	// WriteBatchMaxOps and WriteBatchWaitMs bound the write queue's
	// batching window (spec §4.3 step 1).
	WriteBatchMaxOps int `envconfig:"WRITE_BATCH_MAX_OPS" default:"10"`
	WriteBatchWaitMs int `envconfig:"WRITE_BATCH_WAIT_MS" default:"100"`

	FacetCacheSize int `envconfig:"FACET_CACHE_SIZE" default:"2048"`

	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"5"`
}

// New parses environment variables prefixed with FLAPJACK_ into a Config.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("FLAPJACK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("node_id", cfg.NodeID).
		Str("data_dir", cfg.DataDir).
		Int("oplog_retention", cfg.OplogRetention).
		Int("http_port", cfg.HTTPPort).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Int("peer_count", len(cfg.Peers)).
		Msg("configuration loaded")

	return &cfg, nil
}

// Validate enforces the invariants New relies on (non-negative sizes, a
// non-empty node ID).
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("NODE_ID must not be empty")
	}
	if c.OplogRetention <= 0 {
		return fmt.Errorf("OPLOG_RETENTION must be positive")
	}
	if c.WriteQueueCapacity <= 0 {
		return fmt.Errorf("WRITE_QUEUE_CAPACITY must be positive")
	}
	if c.WriteBatchMaxOps <= 0 {
		return fmt.Errorf("WRITE_BATCH_MAX_OPS must be positive")
	}
	return nil
}

// NewForTesting returns a Config with sane defaults pointed at a temp dir,
// bypassing environment parsing.
func NewForTesting(dataDir string) *Config {
	return &Config{
		NodeID:                    "test-node",
		DataDir:                   dataDir,
		OplogRetention:            1000,
		HTTPPort:                  0,
		EmbedProvider:             "ollama",
		EmbedModel:                "mxbai-embed-large",
		EmbedURL:                  "http://localhost:11434",
		WriteQueueCapacity:        1000,
		WriteBatchMaxOps:          10,
		WriteBatchWaitMs:          100,
		FacetCacheSize:            2048,
		HealthIntervalSeconds:     15,
		HealthProbeTimeoutSeconds: 5,
	}
}

// GetHTTPAddr returns the HTTP server listen address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
