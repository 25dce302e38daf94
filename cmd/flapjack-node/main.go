// Command flapjack-node runs one node of the search cluster: it serves
// search/experiment/replication HTTP traffic for every tenant resident in
// its data directory and replicates committed writes to its configured
// peers (spec §4.5).
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	apihttp "github.com/flapjack/flapjack/internal/api/http"
	"github.com/flapjack/flapjack/internal/config"
	"github.com/flapjack/flapjack/internal/logger"
	"github.com/flapjack/flapjack/internal/platform/factory"
)

func main() {
	log := logger.New("flapjack-node")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := factory.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build dependencies")
	}

	deps.StartHealthCheckers(ctx)
	waitUntilHealthy(ctx, deps, log)

	router := apihttp.NewRouter(*deps.Router)
	srv := &http.Server{
		Addr:    cfg.GetHTTPAddr(),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.GetHTTPAddr()).Str("node_id", cfg.NodeID).Msg("flapjack-node listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server graceful shutdown failed")
	}

	deps.Shutdown()
	log.Info().Msg("flapjack-node stopped")
}

// waitUntilHealthy blocks until every dependency's health checker reports
// healthy or a startup timeout elapses, mirroring the teacher's
// calculateStartupHealthTimeout/waitUntilHealthy pair: this avoids serving
// traffic before, e.g., the embedder is reachable.
func waitUntilHealthy(ctx context.Context, deps *factory.Dependencies, log zerolog.Logger) {
	timeout := time.Duration(deps.Config.HealthIntervalSeconds*4) * time.Second
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if deps.ServiceHealth.IsHealthy() {
			return
		}
		if time.Now().After(deadline) {
			log.Warn().Msg("startup health timeout elapsed, serving traffic anyway")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
