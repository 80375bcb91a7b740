// ratelimit.go enforces per-client request limits. Two backends are
// supported: an in-process token bucket for single-instance deployments, and
// Redis (GCRA via redis_rate) when multiple instances must share counters.
package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
	"github.com/itz4blitz/glimmr-api-sub005/internal/config"
	"github.com/itz4blitz/glimmr-api-sub005/internal/telemetry"
)

// Profile is a named request budget. Route groups pick the profile matching
// their cost: auth endpoints get a tight budget to slow credential stuffing,
// expensive endpoints (imports, exports, stats) get their own, and everything
// else shares the default.
type Profile struct {
	Name      string
	PerMinute int
	Burst     int
}

// Limiter decides whether a request identified by key fits within a profile's
// budget. Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string, profile Profile) (bool, error)
	Stop()
}

// NewLimiter builds the limiter backend named in the configuration.
func NewLimiter(cfg config.RateLimitingConfig) (Limiter, error) {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return &RedisLimiter{client: client, limiter: redis_rate.NewLimiter(client)}, nil
	}
	return NewMemoryLimiter(5 * time.Minute), nil
}

// ---------------------------------------------------------------------------
// In-memory token bucket
// ---------------------------------------------------------------------------

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter is a token-bucket limiter keyed by (profile, client). Buckets
// idle for ten minutes are dropped by a background sweep.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	stopCh  chan struct{}
	stopped sync.Once
}

// NewMemoryLimiter creates a memory limiter sweeping at the given interval.
func NewMemoryLimiter(cleanupInterval time.Duration) *MemoryLimiter {
	ml := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go ml.sweep(cleanupInterval)
	return ml
}

func (ml *MemoryLimiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ml.mu.Lock()
			now := time.Now()
			for key, b := range ml.buckets {
				if now.Sub(b.lastUpdate) > 10*time.Minute {
					delete(ml.buckets, key)
				}
			}
			ml.mu.Unlock()
		case <-ml.stopCh:
			return
		}
	}
}

// Allow implements Limiter with the standard token-bucket refill rule.
func (ml *MemoryLimiter) Allow(_ context.Context, key string, profile Profile) (bool, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := time.Now()
	bucketKey := profile.Name + ":" + key

	b, ok := ml.buckets[bucketKey]
	if !ok {
		ml.buckets[bucketKey] = &bucket{tokens: float64(profile.Burst) - 1, lastUpdate: now}
		return true, nil
	}

	refill := now.Sub(b.lastUpdate).Seconds() * float64(profile.PerMinute) / 60.0
	b.tokens = min(float64(profile.Burst), b.tokens+refill)
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Stop terminates the background sweep.
func (ml *MemoryLimiter) Stop() {
	ml.stopped.Do(func() { close(ml.stopCh) })
}

// ---------------------------------------------------------------------------
// Redis backend
// ---------------------------------------------------------------------------

// RedisLimiter shares request budgets across instances using redis_rate.
type RedisLimiter struct {
	client  *redis.Client
	limiter *redis_rate.Limiter
}

// Allow implements Limiter via GCRA in Redis.
func (rl *RedisLimiter) Allow(ctx context.Context, key string, profile Profile) (bool, error) {
	res, err := rl.limiter.Allow(ctx, profile.Name+":"+key, redis_rate.Limit{
		Rate:   profile.PerMinute,
		Burst:  profile.Burst,
		Period: time.Minute,
	})
	if err != nil {
		return false, err
	}
	return res.Allowed > 0, nil
}

// Stop closes the Redis connection.
func (rl *RedisLimiter) Stop() {
	if err := rl.client.Close(); err != nil {
		slog.Warn("failed to close rate limit redis client", "error", err)
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware rejects requests exceeding the profile's budget with
// the standard 429 envelope. Authenticated clients are keyed by user ID so a
// NAT full of users is not punished collectively; anonymous clients fall back
// to the client IP. Backend failures fail open: shedding all traffic because
// Redis blinked is worse than briefly not shedding any.
func RateLimitMiddleware(limiter Limiter, profile Profile) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		allowed, err := limiter.Allow(c.Request.Context(), key, profile)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "profile", profile.Name, "error", err)
			c.Next()
			return
		}

		if !allowed {
			telemetry.RateLimitRejectionsTotal.WithLabelValues(profile.Name).Inc()
			c.Header("Retry-After", "60")
			c.Error(apperr.RateLimited("Rate limit exceeded, retry later"))
			c.Abort()
			return
		}

		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
