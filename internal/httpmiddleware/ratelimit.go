package httpmiddleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"gatepass/internal/logging"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit enforces per-IP limits. Limiter errors let the request through.
func RateLimit(l Limiter, log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		ok, err := l.Allow(c.Request.Context(), ip)
		if err != nil {
			log.Warn(c.Request.Context(), "rate limiter unavailable", "err", err)
			ok = true
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// TokenBucket is an in-memory limiter for a single API instance.
type TokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates limiter with capacity tokens and rate per minute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
		now:      time.Now,
	}
}

func (l *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.state[key]
	if !ok {
		l.sweep(now)
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true, nil
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// sweep drops buckets idle long enough to be full again.
func (l *TokenBucket) sweep(now time.Time) {
	if l.rate <= 0 {
		return
	}
	idle := time.Duration(float64(l.capacity)/float64(l.rate)*float64(time.Minute)) + time.Minute
	for k, b := range l.state {
		if now.Sub(b.last) > idle {
			delete(l.state, k)
		}
	}
}

// RedisWindow counts requests per key in fixed one-minute windows shared by
// every API instance.
type RedisWindow struct {
	client    *redis.Client
	prefix    string
	perMinute int
	now       func() time.Time
}

func NewRedisWindow(client *redis.Client, prefix string, perMinute int) *RedisWindow {
	return &RedisWindow{client: client, prefix: prefix, perMinute: perMinute, now: time.Now}
}

func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	window := l.now().Unix() / 60
	k := l.prefix + key + ":" + strconv.FormatInt(window, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.perMinute), nil
}
