package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeThresholds(t *testing.T) {
	fail := true
	p := newProbe(Readiness, Check{
		Name:         "postgres",
		FailAfter:    2,
		RecoverAfter: 2,
		Func: func(context.Context) error {
			if fail {
				return errors.New("connection refused")
			}
			return nil
		},
	})
	ctx := context.Background()

	assert.True(t, p.passing.Load(), "probes start passing")
	assert.Nil(t, p.err())

	assert.False(t, p.tick(ctx))
	assert.True(t, p.passing.Load())
	assert.True(t, p.tick(ctx))
	assert.False(t, p.passing.Load())
	assert.EqualError(t, p.err(), "connection refused")

	fail = false
	assert.False(t, p.tick(ctx))
	assert.False(t, p.passing.Load())
	assert.True(t, p.tick(ctx))
	assert.True(t, p.passing.Load())
}

func TestProbeTimeout(t *testing.T) {
	p := newProbe(Liveness, Check{
		Name:      "slow",
		Timeout:   10 * time.Millisecond,
		FailAfter: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	p.tick(context.Background())
	assert.False(t, p.passing.Load())
	assert.ErrorIs(t, p.err(), context.DeadlineExceeded)
}

func TestEndpoints(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *Health)
		endpoint func(h *Health) http.HandlerFunc
		status   int
		failing  []string
	}{
		{
			name:     "live without checks",
			setup:    func(*Health) {},
			endpoint: func(h *Health) http.HandlerFunc { return h.LiveEndpoint },
			status:   http.StatusOK,
		},
		{
			name: "live ignores readiness failures",
			setup: func(h *Health) {
				h.Register(Readiness, Check{Name: "mongo", FailAfter: 1, Func: failing("down")})
				tickAll(h)
			},
			endpoint: func(h *Health) http.HandlerFunc { return h.LiveEndpoint },
			status:   http.StatusOK,
		},
		{
			name:     "not ready until switched",
			setup:    func(h *Health) { h.AddReadinessCheck("redis", time.Second, passing()) },
			endpoint: func(h *Health) http.HandlerFunc { return h.ReadyEndpoint },
			status:   http.StatusServiceUnavailable,
			failing:  []string{"_readiness"},
		},
		{
			name: "ready",
			setup: func(h *Health) {
				h.AddReadinessCheck("redis", time.Second, passing())
				h.SetReady(true)
				tickAll(h)
			},
			endpoint: func(h *Health) http.HandlerFunc { return h.ReadyEndpoint },
			status:   http.StatusOK,
		},
		{
			name: "one readiness check failing",
			setup: func(h *Health) {
				h.AddReadinessCheck("postgres", time.Second, passing())
				h.Register(Readiness, Check{Name: "redis", FailAfter: 1, Func: failing("i/o timeout")})
				h.SetReady(true)
				tickAll(h)
			},
			endpoint: func(h *Health) http.HandlerFunc { return h.ReadyEndpoint },
			status:   http.StatusServiceUnavailable,
			failing:  []string{"redis"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			tt.setup(h)

			w := httptest.NewRecorder()
			tt.endpoint(h)(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body report
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			if tt.status == http.StatusOK {
				assert.Equal(t, "ok", body.Status)
				assert.Empty(t, body.Checks)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			for _, name := range tt.failing {
				assert.Contains(t, body.Checks, name)
			}
			assert.Len(t, body.Checks, len(tt.failing))
		})
	}
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing())
	assert.False(t, h.IsReady())

	h.SetReady(true)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestNames(t *testing.T) {
	h := New()
	h.AddReadinessCheck("redis", time.Second, passing())
	h.AddReadinessCheck("mongo", time.Second, passing())
	h.AddLivenessCheck("goroutines", time.Second, passing())

	assert.Equal(t, []string{"mongo", "redis"}, h.Names(Readiness))
	assert.Equal(t, []string{"goroutines"}, h.Names(Liveness))
}

func TestStartStop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	h := New()
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentReads(t *testing.T) {
	h := New()
	h.AddLivenessCheck("flaky", time.Second, failing("err"))
	h.AddReadinessCheck("db", time.Second, passing())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
}

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(pingFunc(func(context.Context) error { return nil }))(context.Background()))

	err := PingCheck(pingFunc(func(context.Context) error {
		return errors.New("no reachable servers")
	}))(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reachable servers")
}

func TestRuntimeChecks(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}

// --- Helpers ---

func passing() CheckFunc {
	return func(context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func tickAll(h *Health) {
	for _, p := range h.probes {
		p.tick(context.Background())
	}
}

// --- Mock implementations ---

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
