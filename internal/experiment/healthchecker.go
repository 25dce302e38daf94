package experiment

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// StoreHealthChecker monitors the experiment store's Postgres connection via
// periodic pings, mirroring the teacher's store.StoreHealthChecker.
type StoreHealthChecker struct {
	db           *sql.DB
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewStoreHealthChecker creates a checker that probes db on Start's interval.
func NewStoreHealthChecker(db *sql.DB, log zerolog.Logger, probeTimeout time.Duration) *StoreHealthChecker {
	hc := &StoreHealthChecker{db: db, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0)
	return hc
}

func (hc *StoreHealthChecker) Name() string    { return "experiment_store" }
func (hc *StoreHealthChecker) IsHealthy() bool { return hc.healthy.Load() == 1 }

func (hc *StoreHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		to := hc.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()
		if err := hc.db.PingContext(checkCtx); err != nil {
			hc.healthy.Store(0)
			hc.log.Error().Stack().Str("checker", hc.Name()).Err(err).Msg("experiment store health check failed")
			return
		}
		hc.healthy.Store(1)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
