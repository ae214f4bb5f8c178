package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
	"github.com/ZanzyTHEbar/usagepulse/internal/resilience"
)

const keyPrefix = "usagepulse:ratelimit:ip:"

// Config holds rate limiter configuration
type Config struct {
	PerMinute       int // requests per minute per client IP
	BurstMultiplier int // burst capacity of the in-memory bucket, in multiples of PerMinute
	IdleTTL         time.Duration
	Breaker         resilience.CircuitBreakerConfig
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		PerMinute:       120,
		BurstMultiplier: 1,
		IdleTTL:         10 * time.Minute,
		Breaker:         resilience.DefaultCircuitBreakerConfig(),
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP. Redis keeps the counters when it
// is reachable; otherwise every process keeps its own token buckets. After
// repeated Redis failures the breaker sends checks straight to the buckets
// until its recovery timeout passes.
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	breaker      *resilience.CircuitBreaker
	config       Config
	metrics      *monitoring.Metrics
	logger       *monitoring.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewRateLimiter creates a new rate limiter. A nil or disabled redisClient
// selects the in-memory limiter.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics, logger *monitoring.Logger) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = DefaultConfig().PerMinute
	}
	if config.BurstMultiplier <= 0 {
		config.BurstMultiplier = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultConfig().IdleTTL
	}
	if redisClient == nil {
		redisClient = &RedisClient{}
	}
	if logger == nil {
		logger = monitoring.NewLogger("info", "json")
	}

	rl := &RateLimiter{
		redisClient: redisClient,
		breaker:     resilience.NewCircuitBreaker(config.Breaker),
		config:      config,
		metrics:     metrics,
		logger:      logger,
		buckets:     make(map[string]*bucket),
		now:         time.Now,
		stop:        make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		logger.SystemLogger("ratelimit_init", "redis")
	} else {
		logger.SystemLogger("ratelimit_init", "memory")
	}

	go rl.cleanupLoop()
	return rl
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// Limit returns the per-minute limit.
func (rl *RateLimiter) Limit() int { return rl.config.PerMinute }

// AllowIP checks if an IP address is allowed to make a request
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	key := keyPrefix + ip

	if rl.redisLimiter != nil {
		var result *Result
		err := rl.breaker.Call(func() error {
			var err error
			result, err = rl.allowRedis(ctx, key)
			return err
		})
		if err == nil {
			return result, nil
		}

		var open *resilience.CircuitBreakerError
		if !errors.As(err, &open) {
			rl.logger.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitRedisError()
			}
		}
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.PerMinute(rl.config.PerMinute))
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    rl.now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

func (rl *RateLimiter) allowFallback(key string) *Result {
	now := rl.now()
	limit := rl.config.PerMinute
	burst := limit * rl.config.BurstMultiplier

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(limit)/time.Minute.Seconds()), burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	result := &Result{Limit: limit}

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		// hand the token back; the request is rejected
		r.CancelAt(now)
		result.RetryAfter = delay
		result.ResetAt = now.Add(delay)
		return result
	}

	result.Allowed = true
	tokens := b.limiter.TokensAt(now)
	if tokens > 0 {
		result.Remaining = int(tokens)
	}
	missing := float64(burst) - tokens
	result.ResetAt = now.Add(time.Duration(missing / float64(b.limiter.Limit()) * float64(time.Second)))
	return result
}

// Reset forgets the counters of one IP.
func (rl *RateLimiter) Reset(ctx context.Context, ip string) error {
	key := keyPrefix + ip
	if rl.redisLimiter != nil {
		if err := rl.redisLimiter.Reset(ctx, key); err != nil {
			return fmt.Errorf("reset rate limit for %s: %w", ip, err)
		}
	}
	rl.mu.Lock()
	delete(rl.buckets, key)
	rl.mu.Unlock()
	return nil
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stop:
			return
		}
	}
}

// evictIdle drops buckets not used for IdleTTL. A bucket idle that long has
// refilled completely, so dropping it changes no decision.
func (rl *RateLimiter) evictIdle() int {
	cutoff := rl.now().Add(-rl.config.IdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
			evicted++
		}
	}
	if evicted > 0 {
		rl.logger.Debug("Evicted idle rate limit buckets", "count", evicted, "remaining", len(rl.buckets))
	}
	return evicted
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	buckets := len(rl.buckets)
	rl.mu.Unlock()

	stats := map[string]interface{}{
		"limit_per_minute": rl.config.PerMinute,
		"redis_enabled":    rl.redisClient.IsEnabled(),
		"memory_buckets":   buckets,
	}
	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
		stats["redis_breaker"] = rl.breaker.Stats()
	}
	return stats
}
