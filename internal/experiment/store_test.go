package experiment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/flapjack/flapjack/internal/apperr"
	"github.com/flapjack/flapjack/internal/model"
)

// newTestStore starts a disposable Postgres container, bootstraps the
// experiments schema on it, and returns a ready Store.
func newTestStore(t *testing.T) *Store {
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

	db, err := Open(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Bootstrap(ctx, db))

	return New(db)
}

func testCreateRequest(name, index string) CreateRequest {
	return CreateRequest{
		Name:          name,
		TargetIndex:   index,
		TrafficSplit:  0.5,
		ControlArm:    model.Arm{ID: "control"},
		VariantArm:    model.Arm{ID: "variant"},
		PrimaryMetric: model.MetricCTR,
		MinimumDays:   7,
	}
}

func TestStore_CreateGet(t *testing.T) {
	s := newTestStore(t)
	exp, err := s.Create(context.Background(), testCreateRequest("homepage-ranking", "products"))
	require.NoError(t, err)
	require.Equal(t, model.StatusDraft, exp.Status)
	require.NotEmpty(t, exp.ID)

	fetched, err := s.Get(context.Background(), exp.ID)
	require.NoError(t, err)
	require.Equal(t, exp.Name, fetched.Name)
}

func TestStore_Get_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeNotFound, appErr.Code)
}

func TestStore_LifecycleTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp, err := s.Create(ctx, testCreateRequest("search-ranking-v2", "products"))
	require.NoError(t, err)

	started, err := s.Start(ctx, exp.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusRunning, started.Status)
	require.NotNil(t, started.StartTime)

	_, err = s.Start(ctx, exp.ID)
	require.Error(t, err, "starting a running experiment must be rejected")

	stopped, err := s.Stop(ctx, exp.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusStopped, stopped.Status)

	_, err = s.Start(ctx, exp.ID)
	require.Error(t, err, "a stopped experiment can never restart (spec §4.6 lifecycle)")

	concluded, err := s.Conclude(ctx, exp.ID, ConcludeRequest{Winner: "variant", Notes: "clear lift"})
	require.NoError(t, err)
	require.Equal(t, model.StatusConcluded, concluded.Status)
	require.Equal(t, "variant", concluded.Conclusion.Winner)

	_, err = s.Stop(ctx, exp.ID)
	require.Error(t, err, "a concluded experiment cannot be stopped again")
}

func TestStore_Update_OnlyAllowedInDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp, err := s.Create(ctx, testCreateRequest("onboarding-flow", "users"))
	require.NoError(t, err)

	updated, err := s.Update(ctx, exp.ID, testCreateRequest("onboarding-flow-v2", "users"))
	require.NoError(t, err)
	require.Equal(t, "onboarding-flow-v2", updated.Name)

	_, err = s.Start(ctx, exp.ID)
	require.NoError(t, err)

	_, err = s.Update(ctx, exp.ID, testCreateRequest("onboarding-flow-v3", "users"))
	require.Error(t, err, "a running experiment's definition must be immutable")
}

func TestStore_Delete_RejectsConcluded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp, err := s.Create(ctx, testCreateRequest("checkout-test", "checkout"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, exp.ID))
	_, err = s.Get(ctx, exp.ID)
	require.Error(t, err, "deleted experiment must no longer be gettable")

	exp2, err := s.Create(ctx, testCreateRequest("checkout-test-2", "checkout"))
	require.NoError(t, err)
	_, err = s.Start(ctx, exp2.ID)
	require.NoError(t, err)
	_, err = s.Stop(ctx, exp2.ID)
	require.NoError(t, err)
	_, err = s.Conclude(ctx, exp2.ID, ConcludeRequest{})
	require.NoError(t, err)

	err = s.Delete(ctx, exp2.ID)
	require.Error(t, err, "a concluded experiment is a permanent record")
}

func TestStore_RunningForIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp, err := s.Create(ctx, testCreateRequest("product-ranking", "products"))
	require.NoError(t, err)

	_, found, err := s.RunningForIndex(ctx, "products")
	require.NoError(t, err)
	require.False(t, found, "a draft experiment must not be visible to the executor")

	_, err = s.Start(ctx, exp.ID)
	require.NoError(t, err)

	running, found, err := s.RunningForIndex(ctx, "products")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, exp.ID, running.ID)
}

func TestStore_Start_RejectsSecondRunningOnSameIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first, err := s.Create(ctx, testCreateRequest("homepage-ranking-a", "products"))
	require.NoError(t, err)
	second, err := s.Create(ctx, testCreateRequest("homepage-ranking-b", "products"))
	require.NoError(t, err)

	_, err = s.Start(ctx, first.ID)
	require.NoError(t, err)

	_, err = s.Start(ctx, second.ID)
	require.Error(t, err, "two experiments must never run against the same index at once")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeAlreadyExists, appErr.Code)
}

func TestStore_List_FiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, testCreateRequest("draft-one", "products"))
	require.NoError(t, err)
	exp2, err := s.Create(ctx, testCreateRequest("draft-two", "products"))
	require.NoError(t, err)
	_, err = s.Start(ctx, exp2.ID)
	require.NoError(t, err)

	drafts, err := s.List(ctx, model.StatusDraft)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	running, err := s.List(ctx, model.StatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, exp2.ID, running[0].ID)
}
