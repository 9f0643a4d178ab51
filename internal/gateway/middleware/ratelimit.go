package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"othello-relay/internal/gateway/handlers"
)

// RateLimiterConfig configures per-IP limiting.
type RateLimiterConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int

	// Idle buckets older than twice this are dropped.
	CleanupInterval time.Duration
}

func (c RateLimiterConfig) withDefaults() RateLimiterConfig {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
	return c
}

type tokenBucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter is a token bucket per client IP.
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter. When enabled it runs a cleanup goroutine
// until Stop.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config.withDefaults(),
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
		stopCh:  make(chan struct{}),
	}
	if rl.config.Enabled {
		go rl.cleanup()
	}
	return rl
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-2 * rl.config.CleanupInterval)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// Allow takes a token for ip. When none is left it reports how long until
// the next one.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	if !rl.config.Enabled {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0

	b, ok := rl.buckets[ip]
	if !ok {
		b = &tokenBucket{tokens: float64(rl.config.Burst), lastSeen: now}
		rl.buckets[ip] = b
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * perSecond
	if b.tokens > float64(rl.config.Burst) {
		b.tokens = float64(rl.config.Burst)
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
	return false, wait
}

// Limit rejects requests over the limit with 429.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, wait := rl.Allow(clientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			handlers.SendError(w, http.StatusTooManyRequests, handlers.ErrCodeRateLimited, "too many connection attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}
