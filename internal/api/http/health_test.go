package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/health"
)

type fakeDepChecker struct {
	name    string
	healthy bool
}

func (f *fakeDepChecker) Name() string                               { return f.name }
func (f *fakeDepChecker) IsHealthy() bool                            { return f.healthy }
func (f *fakeDepChecker) Start(ctx context.Context, _ time.Duration) {}

func waitForHealthy(t *testing.T, svc *health.ServiceHealthChecker, want bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if svc.IsHealthy() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("service health did not reach %v before timeout", want)
}

func TestHealthHandler_ReturnsOKWhenAllDepsHealthy(t *testing.T) {
	embedder := &fakeDepChecker{name: "embedder", healthy: true}
	store := &fakeDepChecker{name: "experiment-store", healthy: true}
	svc := health.NewServiceHealthChecker(zerolog.Nop(), embedder, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx, 10*time.Millisecond)
	waitForHealthy(t, svc, true)

	h := NewHealthHandler(svc, embedder, store)
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	h.CheckHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Healthy)
	require.Len(t, resp.Dependencies, 2)
}

func TestHealthHandler_ReturnsUnavailableWhenADepIsDown(t *testing.T) {
	embedder := &fakeDepChecker{name: "embedder", healthy: false}
	svc := health.NewServiceHealthChecker(zerolog.Nop(), embedder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx, 10*time.Millisecond)
	waitForHealthy(t, svc, false)

	h := NewHealthHandler(svc, embedder)
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	h.CheckHealth(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
