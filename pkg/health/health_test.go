package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func serve(t *testing.T, handler http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func passing() CheckFunc {
	return func(context.Context) error { return nil }
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", passing())
	h.AddLivenessCheck("db", failing("connection refused"))

	// Checks start healthy.
	code, body := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	ctx := context.Background()
	db := h.liveness[1]
	db.run(ctx)
	db.run(ctx)
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below failure threshold")

	db.run(ctx)
	code, body = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, body.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		check      CheckFunc
		wantStatus int
		wantChecks []string
	}{
		{name: "ready", ready: true, check: passing(), wantStatus: http.StatusOK},
		{name: "not marked ready", ready: false, check: passing(), wantStatus: http.StatusServiceUnavailable, wantChecks: []string{"_readiness"}},
		{name: "dependency down", ready: true, check: failing("timeout"), wantStatus: http.StatusServiceUnavailable, wantChecks: []string{"postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddReadinessCheck("postgres", tt.check, WithThresholds(1, 1))
			h.readiness[0].run(context.Background())
			h.SetReady(tt.ready)

			code, body := serve(t, h.ReadyEndpoint)
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, h.IsReady())
			for _, name := range tt.wantChecks {
				assert.Contains(t, body.Checks, name)
			}
		})
	}
}

func TestCheckRecovers(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	c := newCheck("redis", func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}, []CheckOption{WithThresholds(1, 2)})

	ctx := context.Background()
	c.run(ctx)
	msg, failed := c.failure()
	require.True(t, failed)
	assert.Equal(t, "down", msg)

	fail.Store(false)
	c.run(ctx)
	_, failed = c.failure()
	assert.True(t, failed, "one success is below the success threshold")
	c.run(ctx)
	_, failed = c.failure()
	assert.False(t, failed)
}

func TestCheckTimeout(t *testing.T) {
	c := newCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, []CheckOption{WithTimeout(10 * time.Millisecond), WithThresholds(1, 1)})

	c.run(context.Background())
	msg, failed := c.failure()
	require.True(t, failed)
	assert.Equal(t, context.DeadlineExceeded.Error(), msg)
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	h := New()
	h.AddReadinessCheck("postgres", func(context.Context) error {
		runs.Add(1)
		return nil
	})
	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)

	h.Stop()
	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
	h.Stop()
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type redisPingerFunc func(ctx context.Context) *redis.StatusCmd

func (f redisPingerFunc) Ping(ctx context.Context) *redis.StatusCmd { return f(ctx) }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, PingCheck(pingerFunc(func(context.Context) error { return nil }))(ctx))
	assert.EqualError(t, PingCheck(pingerFunc(func(context.Context) error { return errors.New("refused") }))(ctx), "refused")

	ok := redisPingerFunc(func(context.Context) *redis.StatusCmd {
		return redis.NewStatusResult("PONG", nil)
	})
	assert.NoError(t, RedisCheck(ok)(ctx))
	down := redisPingerFunc(func(context.Context) *redis.StatusCmd {
		return redis.NewStatusResult("", errors.New("dial tcp: refused"))
	})
	assert.ErrorContains(t, RedisCheck(down)(ctx), "redis ping")

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	assert.Error(t, GoroutineCountCheck(0)(ctx))
}
