// Package ratelimit throttles the public credential endpoints per client IP.
// Local keeps token buckets in process; Redis shares a fixed window across
// replicas.
package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed. When it is not,
// retry is how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retry time.Duration, err error)
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Local is a per-key token bucket limiter held in memory.
type Local struct {
	perMinute int
	burst     int
	ttl       time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	stopCh  chan struct{}
}

// NewLocal allows perMinute requests per key with the given burst. Idle keys
// are dropped after two cleanup intervals.
func NewLocal(perMinute, burst int, cleanup time.Duration) *Local {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = perMinute
	}
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	l := &Local{
		perMinute: perMinute,
		burst:     burst,
		ttl:       2 * cleanup,
		entries:   make(map[string]*entry),
		stopCh:    make(chan struct{}),
	}
	go l.cleanupLoop(cleanup)
	return l
}

func (l *Local) Stop() { close(l.stopCh) }

func (l *Local) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	lim := l.limiterFor(key)
	r := lim.Reserve()
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d, nil
	}
	return true, 0, nil
}

func (l *Local) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.burst)}
		l.entries[key] = e
	}
	e.lastAccess = time.Now()
	return e.limiter
}

// Len is the number of tracked keys.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Local) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *Local) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if now.Sub(e.lastAccess) > l.ttl {
			delete(l.entries, k)
		}
	}
}

// Redis counts requests per key in fixed windows shared by every replica.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	if prefix == "" {
		prefix = "rl"
	}
	return &Redis{client: client, prefix: prefix, limit: int64(limit), window: window}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + ":" + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= l.limit {
		return true, 0, nil
	}
	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl <= 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// ClientIP is the host of the peer address. Forwarding headers are ignored
// here; behind a trusted proxy, chi's RealIP middleware rewrites RemoteAddr
// before this runs.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware throttles requests by client IP. deny writes the refusal. A
// limiter error lets the request through.
func Middleware(l Limiter, deny func(http.ResponseWriter, *http.Request, time.Duration), logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			ok, retry, err := l.Allow(r.Context(), ip)
			if err != nil {
				logger.Warnw("rate limiter unavailable", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				logger.Warnw("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				deny(w, r, roundUp(retry))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func roundUp(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
