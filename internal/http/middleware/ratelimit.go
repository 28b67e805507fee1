package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	limiterIdleTTL     = 10 * time.Minute
	limiterSweepEvery  = 1024
	limiterRetryAfterS = "1"
)

// RateLimiter is a per-key token bucket. Idle buckets are swept lazily so
// the limiter needs no background goroutine.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
	now     func() time.Time
	calls   int
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter allows rate requests per second per key with the given burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.calls++
	if rl.calls%limiterSweepEvery == 0 {
		rl.sweep(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[key] = b
	}
	b.tokens += now.Sub(b.seen).Seconds() * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.seen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) sweep(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.seen) > limiterIdleTTL {
			delete(rl.buckets, key)
		}
	}
}

// RateLimit rejects clients over the limit with 429. A non-positive rate
// disables limiting.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	if rate <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return RateLimitWith(NewRateLimiter(rate, burst))
}

// RateLimitWith applies an existing limiter keyed by client IP.
func RateLimitWith(limiter *RateLimiter) func(http.Handler) http.Handler {
	return RateLimitByKey(limiter, clientIP)
}

// RateLimitByKey applies limiter to the bucket named by key(r).
func RateLimitByKey(limiter *RateLimiter, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(key(r)) {
				w.Header().Set("Retry-After", limiterRetryAfterS)
				writeError(w, http.StatusTooManyRequests, "Demasiados mensajes, esperá un momento.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SenderRateLimit limits webhook traffic per sender address taken from the
// form field, so one provider egress IP relaying many patients does not
// share a single bucket. Requests without the field fall back to client IP.
func SenderRateLimit(rate float64, burst int, field string) func(http.Handler) http.Handler {
	if rate <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return RateLimitByKey(NewRateLimiter(rate, burst), func(r *http.Request) string {
		if sender := strings.TrimSpace(r.PostFormValue(field)); sender != "" {
			return field + ":" + sender
		}
		return clientIP(r)
	})
}

// clientIP prefers X-Real-Ip, which chi's RealIP middleware also honours.
func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
