// Package factory is the composition root: it turns a config.Config into
// every long-lived dependency the HTTP server needs, mirroring the
// teacher's memoryservice.Run()'s initDependencies/buildRouter split.
package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apihttp "github.com/flapjack/flapjack/internal/api/http"
	"github.com/flapjack/flapjack/internal/config"
	"github.com/flapjack/flapjack/internal/embeddings"
	"github.com/flapjack/flapjack/internal/events"
	"github.com/flapjack/flapjack/internal/experiment"
	"github.com/flapjack/flapjack/internal/health"
	"github.com/flapjack/flapjack/internal/replication"
	"github.com/flapjack/flapjack/internal/search"
	"github.com/flapjack/flapjack/internal/tenant"
)

// Dependencies bundles every long-lived component the node runs, so
// cmd/flapjack-node only has to start health checkers, serve HTTP, and
// shut everything down in reverse order.
type Dependencies struct {
	Config         *config.Config
	Logger         zerolog.Logger
	Tenants        *tenant.Manager
	ExperimentDB   *experiment.Store
	Fanout         *replication.FanoutClient
	AnalyticsBus   *events.Bus
	Router         *apihttp.Deps
	HealthCheckers []health.HealthChecker
	ServiceHealth  *health.ServiceHealthChecker
}

// Build wires every dependency from cfg. It does not start background
// goroutines (health tickers, HTTP listener) — that is the caller's job,
// matching the teacher's separation between constructing and starting.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Dependencies, error) {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second

	fanout := replication.NewFanoutClient(cfg.Peers, log)

	defaultProvider, err := embeddings.New(embeddings.Config{
		Source: cfg.EmbedProvider,
		Model:  cfg.EmbedModel,
	})
	if err != nil {
		return nil, err
	}
	embedderHealth := embeddings.NewProviderHealthChecker(defaultProvider, log, probeTimeout)

	tenants := tenant.NewManager(tenant.Config{
		DataDir:            cfg.DataDir,
		LocalNodeID:        cfg.NodeID,
		WriteQueueCapacity: cfg.WriteQueueCapacity,
		BatchMaxOps:        cfg.WriteBatchMaxOps,
		BatchWait:          time.Duration(cfg.WriteBatchWaitMs) * time.Millisecond,
		FacetCacheSize:     cfg.FacetCacheSize,
		Replicator:         fanout,
		Logger:             log,
	})

	expDB, err := experiment.Open(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := experiment.Bootstrap(ctx, expDB); err != nil {
		return nil, err
	}
	expStore := experiment.New(expDB)
	expHealth := experiment.NewStoreHealthChecker(expDB, log, probeTimeout)

	bus := events.NewBus(256)

	executor := &search.Executor{
		Tenants:      tenants,
		Experiments:  expStore,
		VectorCache:  search.NewLRUQueryVectorCache(4096),
		AnalyticsBus: bus,
	}

	serviceHealth := health.NewServiceHealthChecker(log, embedderHealth, expHealth)

	deps := apihttp.Deps{
		Search:      apihttp.NewSearchHandler(executor),
		Experiments: apihttp.NewExperimentHandler(expStore, nil),
		Replication: apihttp.NewReplicationHandler(tenants, cfg.NodeID, len(cfg.Peers)),
		Pause:       apihttp.NewPauseHandler(tenants),
		Health:      apihttp.NewHealthHandler(serviceHealth, embedderHealth, expHealth),
	}

	return &Dependencies{
		Config:         cfg,
		Logger:         log,
		Tenants:        tenants,
		ExperimentDB:   expStore,
		Fanout:         fanout,
		AnalyticsBus:   bus,
		Router:         &deps,
		HealthCheckers: []health.HealthChecker{embedderHealth, expHealth},
		ServiceHealth:  serviceHealth,
	}, nil
}

// StartHealthCheckers launches each dependency's background health-probe
// ticker plus the aggregator, mirroring the teacher's startHealthCheckers.
func (d *Dependencies) StartHealthCheckers(ctx context.Context) {
	interval := time.Duration(d.Config.HealthIntervalSeconds) * time.Second
	for _, c := range d.HealthCheckers {
		go c.Start(ctx, interval)
	}
	go d.ServiceHealth.Start(ctx, interval)
}

// Shutdown drains every tenant's write queue and closes the experiment DB,
// in that order, so in-flight writes finish before Postgres goes away.
func (d *Dependencies) Shutdown() {
	d.Tenants.Shutdown()
	_ = d.ExperimentDB.Close()
}
