package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/metrics"
)

// limiterTimeout bounds each rate-limit store call. A slow store must never
// stall requests.
const limiterTimeout = 250 * time.Millisecond

// RateLimiter enforces fixed-window per-key limits. The store is Redis when
// configured, an in-memory map otherwise. Store failures fail OPEN: an
// outage must never lock users out.
type RateLimiter struct {
	rdb     *redis.Client
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu      sync.Mutex
	local   map[string]*localWindow
	lastGC  time.Time
}

type localWindow struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter. addr empty means in-memory only.
func NewRateLimiter(addr string, m *metrics.Metrics, log zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		metrics: m,
		local:   make(map[string]*localWindow),
		lastGC:  time.Now(),
		log:     log.With().Str("component", "rate_limiter").Logger(),
	}
	if addr != "" {
		rl.rdb = redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rl.rdb.Ping(ctx).Err(); err != nil {
			rl.log.Warn().Err(err).Str("addr", addr).Msg("Redis unreachable, rate limits fall back to in-memory")
		}
	}
	return rl
}

// Allow counts one hit for the key and reports whether it stays within
// limit per window. On store errors the request is allowed.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	if rl.rdb != nil {
		ok, retry, err := rl.allowRedis(ctx, key, limit, window)
		if err == nil {
			return ok, retry
		}
		rl.log.Warn().Err(err).Str("key", key).Msg("Rate-limit store error, failing open")
		return true, 0
	}
	return rl.allowLocal(key, limit, window)
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, limiterTimeout)
	defer cancel()

	redisKey := "ratelimit:" + key
	count, err := rl.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, 0, err
	}
	if count == 1 {
		if err := rl.rdb.Expire(ctx, redisKey, window).Err(); err != nil {
			return true, 0, err
		}
	}
	if count > int64(limit) {
		ttl, err := rl.rdb.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			ttl = window
		}
		return false, ttl, nil
	}
	return true, 0, nil
}

func (rl *RateLimiter) allowLocal(key string, limit int, window time.Duration) (bool, time.Duration) {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastGC) > time.Minute {
		for k, w := range rl.local {
			if now.After(w.resetAt) {
				delete(rl.local, k)
			}
		}
		rl.lastGC = now
	}

	w, ok := rl.local[key]
	if !ok || now.After(w.resetAt) {
		rl.local[key] = &localWindow{count: 1, resetAt: now.Add(window)}
		return true, 0
	}
	w.count++
	if w.count > limit {
		return false, time.Until(w.resetAt)
	}
	return true, 0
}

// Close releases the Redis connection when one exists.
func (rl *RateLimiter) Close() error {
	if rl.rdb != nil {
		return rl.rdb.Close()
	}
	return nil
}

// limitMiddleware builds a chi middleware for one scope. keyFn derives the
// counter key from the request; a returned empty key skips the check.
func (s *Server) limitMiddleware(scope string, limit int, window time.Duration, keyFn func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ok, retry := s.limiter.Allow(r.Context(), fmt.Sprintf("%s:%s", scope, key), limit, window)
			if !ok {
				if s.metrics != nil {
					s.metrics.RateLimited.WithLabelValues(scope).Inc()
				}
				seconds := int(retry.Round(time.Second).Seconds())
				if seconds < 1 {
					seconds = 1
				}
				s.writeError(w, domain.ErrRateLimited(seconds))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys anonymous limits by remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
