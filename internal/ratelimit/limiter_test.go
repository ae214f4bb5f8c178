package ratelimit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
	"github.com/ZanzyTHEbar/usagepulse/internal/resilience"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newMemoryLimiter(t *testing.T, perMinute int) (*RateLimiter, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	rl := NewRateLimiter(nil, Config{PerMinute: perMinute}, metrics, monitoring.NewLoggerTo(io.Discard, "error", "json"))
	t.Cleanup(rl.Close)
	return rl, metrics
}

func TestFallbackLimitsPerIP(t *testing.T) {
	rl, metrics := newMemoryLimiter(t, 3)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := rl.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := rl.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	// one token per 20s at 3/min
	assert.InDelta(t, (20 * time.Second).Seconds(), res.RetryAfter.Seconds(), 0.01)

	other, err := rl.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "limits are per IP")

	assert.Equal(t, int64(5), metrics.GetRateLimitStats()["fallback_count"])
}

func TestFallbackRefills(t *testing.T) {
	rl, _ := newMemoryLimiter(t, 60)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		res, _ := rl.AllowIP(ctx, "ip")
		require.True(t, res.Allowed)
	}
	res, _ := rl.AllowIP(ctx, "ip")
	require.False(t, res.Allowed)

	// rejected requests do not consume tokens
	now = now.Add(time.Second)
	res, _ = rl.AllowIP(ctx, "ip")
	assert.True(t, res.Allowed)
}

func TestResetAndEviction(t *testing.T) {
	rl, _ := newMemoryLimiter(t, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = rl.AllowIP(ctx, "a")
	res, _ := rl.AllowIP(ctx, "a")
	require.False(t, res.Allowed)

	require.NoError(t, rl.Reset(ctx, "a"))
	res, _ = rl.AllowIP(ctx, "a")
	assert.True(t, res.Allowed)

	_, _ = rl.AllowIP(ctx, "b")
	assert.Equal(t, 2, rl.GetStats()["memory_buckets"])

	now = now.Add(rl.config.IdleTTL + time.Second)
	assert.Equal(t, 2, rl.evictIdle())
	assert.Equal(t, 0, rl.GetStats()["memory_buckets"])
	assert.Equal(t, false, rl.GetStats()["redis_enabled"])
}

func TestDefaults(t *testing.T) {
	rl := NewRateLimiter(&RedisClient{}, Config{}, nil, nil)
	defer rl.Close()
	assert.Equal(t, DefaultConfig().PerMinute, rl.Limit())

	disabled, err := NewRedisClient(context.Background(), RedisConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, disabled.IsEnabled())
	assert.Error(t, disabled.HealthCheck(context.Background()))
	assert.NoError(t, disabled.Close())
	assert.Equal(t, false, disabled.GetPoolStats()["enabled"])
}

func TestIPRateLimitMiddleware(t *testing.T) {
	rl, metrics := newMemoryLimiter(t, 2)

	r := gin.New()
	r.Use(rl.IPRateLimitMiddleware("/health"))
	r.GET("/api/kpis", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "up") })

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.7:5555"
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		w := do("/api/kpis")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := do("/api/kpis")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Equal(t, int64(1), metrics.GetRateLimitStats()["ip_blocks"])

	w = do("/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestStatusHandlers(t *testing.T) {
	rl, _ := newMemoryLimiter(t, 5)

	r := gin.New()
	r.GET("/api/ratelimit", rl.HandleRateLimitStatus())
	r.GET("/api/ratelimit/stats", rl.HandleRateLimitStats())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ratelimit", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backend":"memory"`)
	assert.Contains(t, w.Body.String(), `"requests":5`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ratelimit/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ip_blocks"`)
}

func TestRetrySeconds(t *testing.T) {
	assert.Equal(t, 1, retrySeconds(&Result{}))
	assert.Equal(t, 2, retrySeconds(&Result{RetryAfter: 1500 * time.Millisecond}))
	assert.Equal(t, 20, retrySeconds(&Result{RetryAfter: 20 * time.Second}))
}

func TestBreakerSkipsUnreachableRedis(t *testing.T) {
	// nothing listens on port 1; every check fails with connection refused
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	metrics := monitoring.NewMetrics()
	config := DefaultConfig()
	config.PerMinute = 10
	config.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour}
	rl := NewRateLimiter(&RedisClient{client: client, enabled: true, addr: "127.0.0.1:1"}, config, metrics,
		monitoring.NewLoggerTo(io.Discard, "error", "json"))
	t.Cleanup(rl.Close)

	for i := 0; i < 5; i++ {
		res, err := rl.AllowIP(context.Background(), "10.0.0.9")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	stats := metrics.GetRateLimitStats()
	assert.Equal(t, int64(2), stats["redis_errors"])
	assert.Equal(t, int64(5), stats["fallback_count"])

	breaker := rl.GetStats()["redis_breaker"].(map[string]interface{})
	assert.Equal(t, "open", breaker["state"])
}
