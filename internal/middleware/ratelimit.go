package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/response"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ByIP buckets requests by client IP.
func ByIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByCaller buckets requests by authenticated caller, falling back to client IP.
func ByCaller(c *gin.Context) string {
	if caller, ok := GetCaller(c); ok {
		return caller.ID.String()
	}
	return c.ClientIP()
}

// RateLimiter implements a simple in-process token bucket rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
	key      KeyFunc
	now      func() time.Time
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 10 requests per minute per key).
// Stale buckets are swept until ctx is cancelled.
func NewRateLimiter(ctx context.Context, rate int, interval time.Duration, key KeyFunc) *RateLimiter {
	if key == nil {
		key = ByIP
	}
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
		key:      key,
		now:      time.Now,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()

	return rl
}

// Allow takes one token from the key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[key] = v
	}

	// Refill tokens based on elapsed time.
	refill := int(now.Sub(v.lastSeen)/rl.interval) * rl.rate
	if refill > 0 {
		v.tokens += refill
		if v.tokens > rl.rate {
			v.tokens = rl.rate
		}
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// Middleware returns a Gin middleware that rate-limits requests per key.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(rl.key(c)) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if rl.now().Sub(v.lastSeen) > 3*rl.interval {
			delete(rl.visitors, key)
		}
	}
}

// WindowCounter increments a counter that expires after window.
type WindowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisWindowCounter is a WindowCounter shared by every API instance.
type RedisWindowCounter struct {
	rdb *redis.Client
}

// NewRedisWindowCounter creates a new RedisWindowCounter.
func NewRedisWindowCounter(rdb *redis.Client) *RedisWindowCounter {
	return &RedisWindowCounter{rdb: rdb}
}

// Incr increments key and sets its expiry in one round trip.
func (r *RedisWindowCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// AutosaveLimit caps autosaves per caller per minute using fixed one-minute windows.
// A zero limit disables it. Counter failures let the request through.
func AutosaveLimit(counter WindowCounter, perMinute int, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if perMinute <= 0 {
			c.Next()
			return
		}

		window := time.Now().Unix() / 60
		key := config.CacheKey.AutosaveRateKey(ByCaller(c), window)

		n, err := counter.Incr(c.Request.Context(), key, 2*time.Minute)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Autosave rate counter unavailable, allowing request")
			c.Next()
			return
		}

		if n > int64(perMinute) {
			c.Header("Retry-After", strconv.FormatInt(60-time.Now().Unix()%60, 10))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}

		c.Next()
	}
}
