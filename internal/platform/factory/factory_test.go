package factory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/flapjack/flapjack/internal/config"
)

// testDSN starts a disposable Postgres container and returns its DSN.
// Inlined rather than shared with internal/experiment's own test helper to
// avoid a test-only import cycle (experiment -> ... -> factory is never
// real, but factory already imports experiment for production wiring).
func testDSN(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("flapjack_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestBuild_WiresEveryDependency(t *testing.T) {
	cfg := config.NewForTesting(t.TempDir())
	cfg.PostgresDSN = testDSN(t)

	deps, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer deps.Shutdown()

	require.NotNil(t, deps.Tenants)
	require.NotNil(t, deps.ExperimentDB)
	require.NotNil(t, deps.Fanout)
	require.NotNil(t, deps.AnalyticsBus)
	require.NotNil(t, deps.Router)
	require.NotNil(t, deps.Router.Search)
	require.NotNil(t, deps.Router.Experiments)
	require.NotNil(t, deps.Router.Replication)
	require.NotNil(t, deps.Router.Pause)
	require.NotNil(t, deps.Router.Health)
	require.Len(t, deps.HealthCheckers, 2)
	require.False(t, deps.ServiceHealth.IsHealthy(), "service health starts down until the first probe tick")
}

func TestBuild_RejectsEmptyPostgresDSN(t *testing.T) {
	cfg := config.NewForTesting(t.TempDir())
	cfg.PostgresDSN = ""

	_, err := Build(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestStartHealthCheckers_DoesNotBlockOrPanic(t *testing.T) {
	cfg := config.NewForTesting(t.TempDir())
	cfg.PostgresDSN = testDSN(t)

	deps, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer deps.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps.StartHealthCheckers(ctx)

	// No live Ollama/embedder in this environment to probe, so the
	// aggregate flag isn't expected to flip true here -- this only checks
	// that wiring the tickers doesn't block Build's caller or panic.
	time.Sleep(20 * time.Millisecond)
}
