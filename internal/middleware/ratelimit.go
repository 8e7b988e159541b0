package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/lapolinarweb/contracts/internal/config"
	apierrors "github.com/lapolinarweb/contracts/internal/pkg/errors"
	"github.com/lapolinarweb/contracts/internal/pkg/response"
)

// localLimiterSize bounds the number of clients tracked in process.
const localLimiterSize = 8192

// Counter is a windowed counter shared between relayer replicas.
type Counter interface {
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(ctx context.Context, clientID string) (remaining int, ok bool, err error)
}

// RedisLimiter counts requests per client per minute in Redis.
type RedisLimiter struct {
	counter Counter
	limit   int
}

// NewRedisLimiter returns a fixed window limiter backed by counter.
func NewRedisLimiter(counter Counter, cfg config.RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{counter: counter, limit: cfg.RequestsPerMinute + cfg.Burst}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, clientID string) (int, bool, error) {
	count, err := l.counter.IncrWithExpire(ctx, "ratelimit:"+clientID, time.Minute)
	if err != nil {
		return 0, false, err
	}
	remaining := l.limit - int(count)
	if remaining < 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

// LocalLimiter is a token bucket per client, used when Redis is disabled.
type LocalLimiter struct {
	buckets *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewLocalLimiter returns an in-process limiter.
func NewLocalLimiter(cfg config.RateLimitConfig) *LocalLimiter {
	buckets, _ := lru.New[string, *rate.Limiter](localLimiterSize)
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &LocalLimiter{
		buckets: buckets,
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:   burst,
	}
}

// Allow implements Limiter.
func (l *LocalLimiter) Allow(_ context.Context, clientID string) (int, bool, error) {
	bucket, ok := l.buckets.Get(clientID)
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(clientID, bucket)
	}
	if !bucket.Allow() {
		return 0, false, nil
	}
	return int(bucket.Tokens()), true, nil
}

// RateLimit returns a rate limiting middleware. Limiter errors fail open.
func RateLimit(limiter Limiter, cfg config.RateLimitConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := getClientID(r)

			remaining, ok, err := limiter.Allow(r.Context(), clientID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			resetAt := time.Now().Truncate(time.Minute).Add(time.Minute)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
				response.Error(w, apierrors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func getClientID(r *http.Request) string {
	return "ip:" + getRealIP(r)
}

func getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
