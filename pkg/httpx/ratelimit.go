package httpx

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/handihub/trustgate/pkg/slogx"
)

// RateLimitConfig defines the rate limiting parameters for an endpoint class.
type RateLimitConfig struct {
	// Requests is the number of requests allowed in the time window.
	Requests int
	// Window is the fixed window the counter covers. Counters reset at the
	// window boundary, never decay gradually.
	Window time.Duration
}

// Endpoint-class rate limit profiles. Policy constants, not mechanism; each
// can be overridden via environment variables (see init below).
var (
	// StrictLimit for credential-guessing surfaces (login, 2FA confirm).
	// Override with: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC
	StrictLimit = RateLimitConfig{
		Requests: 5,
		Window:   15 * time.Minute,
	}

	// ModerateLimit for authenticated mutating operations.
	// Override with: RATELIMIT_MODERATE_REQUESTS, RATELIMIT_MODERATE_WINDOW_SEC
	ModerateLimit = RateLimitConfig{
		Requests: 20,
		Window:   time.Minute,
	}

	// LenientLimit for generic API reads.
	// Override with: RATELIMIT_LENIENT_REQUESTS, RATELIMIT_LENIENT_WINDOW_SEC
	LenientLimit = RateLimitConfig{
		Requests: 100,
		Window:   time.Minute,
	}

	// ResetLimit for account-recovery style endpoints.
	// Override with: RATELIMIT_RESET_REQUESTS, RATELIMIT_RESET_WINDOW_SEC
	ResetLimit = RateLimitConfig{
		Requests: 3,
		Window:   time.Hour,
	}
)

func init() {
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit)
	ModerateLimit = ParseRateLimitFromEnv("MODERATE", ModerateLimit)
	LenientLimit = ParseRateLimitFromEnv("LENIENT", LenientLimit)
	ResetLimit = ParseRateLimitFromEnv("RESET", ResetLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment
// variables following the pattern RATELIMIT_{prefix}_{field}. Exported so
// deployments can define their own endpoint classes.
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.Requests = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	return config
}

// KeyExtractor extracts the caller-identity part of a rate limit key from the
// request (IP address, account id, form field, ...).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request. The guard
// resolves the address once per request (consulting forwarding headers only
// for trusted proxies) and stashes it in the context; outside the guard the
// transport address is used, never client-supplied headers.
func IPKeyExtractor(r *http.Request) string {
	if ip := ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// AccountKeyExtractor extracts the authenticated account id from the request
// context. Returns empty string for anonymous requests.
func AccountKeyExtractor(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.AccountID
	}
	return ""
}

// FormFieldKeyExtractor extracts a key from a form field (GET or POST). Used
// to limit login attempts by IP + submitted email.
func FormFieldKeyExtractor(fieldName string) KeyExtractor {
	return func(r *http.Request) string {
		if err := r.ParseForm(); err == nil {
			return r.FormValue(fieldName)
		}
		return ""
	}
}

// CompositeKeyExtractor combines multiple key extractors with a separator,
// skipping extractors that produce nothing.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// windowCounter is the per-key fixed-window state: requests observed since
// windowStart, for a window of the recorded length.
type windowCounter struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

// FixedWindowLimiter counts requests per key within contiguous fixed windows.
// A counter resets when its window has fully elapsed. All state is owned by
// the limiter instance, so tests get isolation from a fresh instance.
type FixedWindowLimiter struct {
	mu        sync.Mutex
	counters  map[string]*windowCounter
	now       func() time.Time
	lastSweep time.Time
}

// NewFixedWindowLimiter returns a limiter using the wall clock.
func NewFixedWindowLimiter() *FixedWindowLimiter {
	return NewFixedWindowLimiterWithClock(time.Now)
}

// NewFixedWindowLimiterWithClock returns a limiter with an injectable clock,
// used by tests to step across window boundaries deterministically.
func NewFixedWindowLimiterWithClock(now func() time.Time) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		counters:  make(map[string]*windowCounter),
		now:       now,
		lastSweep: now(),
	}
}

// Allow records a request for key and reports whether it is within limit for
// the window. The increment-and-compare happens under the limiter lock, so
// two racing requests for the same key can never both claim the last slot.
func (l *FixedWindowLimiter) Allow(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweep(now)

	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowStart) >= window {
		l.counters[key] = &windowCounter{count: 1, windowStart: now, window: window}
		return limit >= 1
	}

	c.count++
	return c.count <= limit
}

// RetryAfter reports how long until the key's current window resets. Zero when
// no counter exists or the window has already elapsed.
func (l *FixedWindowLimiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		return 0
	}

	remaining := c.window - l.now().Sub(c.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

const sweepInterval = 5 * time.Minute

// maybeSweep garbage-collects counters whose window has fully elapsed. Caller
// must hold the lock.
func (l *FixedWindowLimiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now

	for key, c := range l.counters {
		if now.Sub(c.windowStart) >= c.window {
			delete(l.counters, key)
		}
	}
}

// RateLimitMiddleware enforces config for requests grouped by endpoint plus
// the extracted caller identity. Rejections carry a Retry-After hint and the
// standard 429 envelope.
func RateLimitMiddleware(l *FixedWindowLimiter, config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			caller := keyExtractor(r)
			if caller == "" {
				// Can't attribute the request to anyone; allow but log it.
				log.Warn("rate limit: unable to extract caller key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			key := r.Method + " " + r.URL.Path + "|" + caller

			if !l.Allow(key, config.Requests, config.Window) {
				retryAfter := max(int(l.RetryAfter(key).Seconds()), 1)

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.Requests))
				w.Header().Set("X-RateLimit-Window", config.Window.String())

				log.Warn("rate limit exceeded",
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteError(w, http.StatusTooManyRequests,
					"rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits by client IP address only.
func RateLimitByIP(l *FixedWindowLimiter, config RateLimitConfig) Middleware {
	return RateLimitMiddleware(l, config, IPKeyExtractor)
}

// RateLimitByAccount limits by authenticated account, falling back to IP for
// anonymous callers.
func RateLimitByAccount(l *FixedWindowLimiter, config RateLimitConfig) Middleware {
	return RateLimitMiddleware(l, config, CompositeKeyExtractor(":",
		AccountKeyExtractor,
		IPKeyExtractor,
	))
}

// RateLimitByIPAndFormField limits by IP + a submitted form field, e.g. login
// attempts by IP + email.
func RateLimitByIPAndFormField(l *FixedWindowLimiter, config RateLimitConfig, fieldName string) Middleware {
	return RateLimitMiddleware(l, config, CompositeKeyExtractor(":",
		IPKeyExtractor,
		FormFieldKeyExtractor(fieldName),
	))
}
