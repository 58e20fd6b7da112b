package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"pos-ledger/internal/config"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// limiter decides whether the client identified by key may proceed.
type limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type RateLimiterMiddleware struct {
	backend limiter
	cfg     config.RateLimitConfig
	logger  *slog.Logger
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiterMiddleware picks the Redis fixed-window backend when configured
// and a client is available, and the in-process token bucket otherwise.
func NewRateLimiterMiddleware(cfg config.RateLimitConfig, redisClient *redis.Client, logger *slog.Logger) *RateLimiterMiddleware {
	logger = logger.With("component", "RateLimiter")
	rl := &RateLimiterMiddleware{cfg: cfg, logger: logger, stop: make(chan struct{})}

	if !cfg.Enabled {
		logger.Info("Rate limiting is disabled via configuration.")
		return rl
	}

	if cfg.Backend == BackendRedis {
		if redisClient != nil {
			rl.backend = newRedisLimiter(redisClient, cfg)
			logger.Info("Rate limiter configured", "backend", BackendRedis, "rps", cfg.RPS, "window", time.Second)
			return rl
		}
		logger.Warn("Redis rate limiting requested but no Redis client provided; using in-process limiter.")
	}

	mem := newMemoryLimiter(cfg)
	rl.backend = mem
	go mem.cleanup(10*time.Minute, rl.stop)
	logger.Info("Rate limiter configured", "backend", BackendMemory, "rps", cfg.RPS, "burst", cfg.Burst)
	return rl
}

func (rl *RateLimiterMiddleware) IsEnabled() bool {
	return rl.cfg.Enabled && rl.backend != nil
}

// Close stops background cleanup of idle in-process limiters.
func (rl *RateLimiterMiddleware) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiterMiddleware) extractIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		ip := strings.TrimSpace(ips[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if net.ParseIP(xRealIP) != nil {
		return xRealIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return ip
	}
	return r.RemoteAddr
}

func (rl *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	if !rl.IsEnabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.extractIP(r)

		allowed, retryAfter, err := rl.backend.Allow(r.Context(), ip)
		if err != nil {
			// fail open: a limiter outage must not stop the tills
			rl.logger.ErrorContext(r.Context(), "Rate limiter backend failed", "error", err, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			rl.logger.WarnContext(r.Context(), "Rate limit exceeded", "ip", ip)
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{
					"code":    "RATE_LIMITED",
					"message": "Rate limit exceeded",
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

type memoryLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
}

func newMemoryLimiter(cfg config.RateLimitConfig) *memoryLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Max(1, cfg.RPS))
	}
	return &memoryLimiter{rps: rate.Limit(cfg.RPS), burst: burst}
}

func (m *memoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	v, _ := m.limiters.LoadOrStore(key, rate.NewLimiter(m.rps, m.burst))
	l := v.(*rate.Limiter)

	res := l.Reserve()
	if !res.OK() {
		return false, time.Second, nil
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}

// cleanup drops limiters that have refilled completely.
func (m *memoryLimiter) cleanup(every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.limiters.Range(func(key, value interface{}) bool {
				if value.(*rate.Limiter).Tokens() >= float64(m.burst) {
					m.limiters.Delete(key)
				}
				return true
			})
		}
	}
}

// redisLimiter is a fixed one-second window shared by every instance.
type redisLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
}

func newRedisLimiter(client redis.Cmdable, cfg config.RateLimitConfig) *redisLimiter {
	limit := int64(math.Ceil(cfg.RPS))
	if limit < 1 {
		limit = 1
	}
	return &redisLimiter{client: client, limit: limit, window: time.Second}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	key = "pos-ledger:ratelimit:" + key

	pipe := l.client.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis pipeline: %w", err)
	}

	count, err := incrCmd.Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis incr: %w", err)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("redis expire: %w", err)
		}
		ttl = l.window
	}

	if count > l.limit {
		return false, ttl, nil
	}
	return true, 0, nil
}
