package gatekeeper

import (
	"campusgate/internal/model"
	"campusgate/internal/navigation"
	"campusgate/internal/session"
	"campusgate/internal/storage"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store   *session.Store
	router  *navigation.Router
	gate    *Gatekeeper
	metrics *Metrics
}

func newFixture(t *testing.T, initial string) *fixture {
	t.Helper()

	store := session.New(storage.NewMemory(), discard())
	router, err := navigation.NewRouter(initial, discard())
	require.NoError(t, err)
	metrics := NewMetrics(prometheus.NewRegistry())

	return &fixture{
		store:   store,
		router:  router,
		gate:    New(store, router, DefaultRoutes(), discard(), metrics),
		metrics: metrics,
	}
}

func TestEvaluate_WaitsForHydration(t *testing.T) {
	f := newFixture(t, "/(school)/Dashboard")

	assert.False(t, f.gate.Evaluate(context.Background()))
	assert.Equal(t, "/(school)/Dashboard", f.router.Location().Path())

	f.store.Hydrate(context.Background())
	assert.True(t, f.gate.Evaluate(context.Background()))
	assert.Equal(t, "/", f.router.Location().Path())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Redirects.WithLabelValues("/")))
}

func TestEvaluate_SkipsReplaceOntoSameScreen(t *testing.T) {
	f := newFixture(t, "/")
	ctx := context.Background()
	f.store.Hydrate(ctx)
	require.NoError(t, f.store.Login(ctx, "tok", model.User{"_id": "1", "role": "bogus"}))

	assert.False(t, f.gate.Evaluate(ctx), "already on the entry screen")
	assert.Equal(t, "/", f.router.Location().Path())
}

type failingNav struct {
	*navigation.Router
}

func (failingNav) Replace(string) error { return errors.New("navigator not mounted") }

func TestEvaluate_ReplaceErrorIsSwallowed(t *testing.T) {
	f := newFixture(t, "/(admin)/Dashboard")
	f.store.Hydrate(context.Background())
	gate := New(f.store, failingNav{f.router}, DefaultRoutes(), discard(), nil)

	assert.False(t, gate.Evaluate(context.Background()))
}

type panickingSessions struct{}

func (panickingSessions) Snapshot() session.Snapshot      { panic("boom") }
func (panickingSessions) Watch() (<-chan struct{}, func()) { return make(chan struct{}), func() {} }

func TestEvaluate_RecoversPanics(t *testing.T) {
	f := newFixture(t, "/")
	gate := New(panickingSessions{}, f.router, DefaultRoutes(), discard(), nil)

	assert.NotPanics(t, func() {
		assert.False(t, gate.Evaluate(context.Background()))
	})
}

func TestRun_FollowsSessionAndNavigation(t *testing.T) {
	f := newFixture(t, "/")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.gate.Run(ctx) }()

	f.store.Hydrate(ctx)
	require.NoError(t, f.store.Login(ctx, "tok", model.User{"_id": "s1", "role": "student"}))
	waitPath(t, f.router, "/(student)/Dashboard")

	// a screen pushing into another role's area gets bounced back
	require.NoError(t, f.router.Push("/(shop)/Dashboard"))
	waitPath(t, f.router, "/(student)/Dashboard")

	// backend said 401: session dropped, user sent to the entry screen
	f.store.Expire(ctx, "tok")
	waitPath(t, f.router, "/")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("gatekeeper did not stop")
	}
}

func TestRun_StopsWhenStoreCloses(t *testing.T) {
	f := newFixture(t, "/")

	done := make(chan error, 1)
	go func() { done <- f.gate.Run(context.Background()) }()

	// give Run time to subscribe before closing
	time.Sleep(50 * time.Millisecond)
	f.store.Close()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("gatekeeper did not stop")
	}
}

func waitPath(t *testing.T, r *navigation.Router, want string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return r.Location().Path() == want
	}, time.Second, 5*time.Millisecond, "expected location %s, got %s", want, r.Location().Path())
}
