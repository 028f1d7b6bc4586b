package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/handihub/trustgate/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowLimiter(t *testing.T) {
	t.Parallel()

	t.Run("sixth call within window is rejected", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		l := httpx.NewFixedWindowLimiterWithClock(func() time.Time { return now })

		for i := range 5 {
			require.True(t, l.Allow("login|1.2.3.4", 5, time.Minute), "request %d should pass", i+1)
		}
		require.False(t, l.Allow("login|1.2.3.4", 5, time.Minute))
	})

	t.Run("counter resets after the window elapses", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		l := httpx.NewFixedWindowLimiterWithClock(func() time.Time { return now })

		for range 5 {
			require.True(t, l.Allow("k", 5, time.Minute))
		}
		require.False(t, l.Allow("k", 5, time.Minute))

		now = now.Add(61 * time.Second)
		require.True(t, l.Allow("k", 5, time.Minute))
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := httpx.NewFixedWindowLimiter()

		require.True(t, l.Allow("a", 1, time.Minute))
		require.False(t, l.Allow("a", 1, time.Minute))
		require.True(t, l.Allow("b", 1, time.Minute))
	})

	t.Run("retry after reports remaining window", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		l := httpx.NewFixedWindowLimiterWithClock(func() time.Time { return now })

		l.Allow("k", 5, time.Minute)
		now = now.Add(20 * time.Second)
		require.Equal(t, 40*time.Second, l.RetryAfter("k"))

		require.Equal(t, time.Duration(0), l.RetryAfter("unknown"))
	})

	t.Run("no lost updates under concurrent increments", func(t *testing.T) {
		l := httpx.NewFixedWindowLimiter()

		const callers = 50
		allowed := make(chan bool, callers)

		var wg sync.WaitGroup
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				allowed <- l.Allow("shared", 10, time.Minute)
			}()
		}
		wg.Wait()
		close(allowed)

		count := 0
		for ok := range allowed {
			if ok {
				count++
			}
		}
		require.Equal(t, 10, count, "exactly the limit may pass")
	})
}

func TestIPKeyExtractor(t *testing.T) {
	t.Parallel()

	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})

	t.Run("ignores forwarding headers outside the guard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})

	t.Run("prefers the address resolved by the guard", func(t *testing.T) {
		var key string
		h := httpx.ClientIPFilter(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key = httpx.IPKeyExtractor(r)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:443"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, "203.0.113.1", key)
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	t.Parallel()

	t.Run("combines extractors and skips empties", func(t *testing.T) {
		form := url.Values{}
		form.Set("email", "pat@example.com")
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "192.168.1.1:12345"

		extract := httpx.CompositeKeyExtractor(":",
			httpx.IPKeyExtractor,
			httpx.FormFieldKeyExtractor("email"),
		)
		require.Equal(t, "192.168.1.1:pat@example.com", extract(req))

		empty := httptest.NewRequest(http.MethodGet, "/", nil)
		empty.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", extract(empty))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	config := httpx.RateLimitConfig{Requests: 3, Window: time.Minute}

	newHandler := func() http.Handler {
		l := httpx.NewFixedWindowLimiter()
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		return httpx.RateLimitMiddleware(l, config, httpx.IPKeyExtractor)(next)
	}

	t.Run("allows under the limit, rejects over it", func(t *testing.T) {
		h := newHandler()

		for i := range 3 {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/v1/thing", nil)
			req.RemoteAddr = "10.0.0.9:4000"
			h.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/thing", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	})

	t.Run("spoofed forwarding headers cannot dodge the limit", func(t *testing.T) {
		l := httpx.NewFixedWindowLimiter()
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		h := httpx.RateLimitMiddleware(l, httpx.RateLimitConfig{Requests: 1, Window: time.Minute}, httpx.IPKeyExtractor)(next)

		// same transport address rotating fabricated forwarded addresses
		for i, xff := range []string{"203.0.113.1", "203.0.113.2"} {
			req := httptest.NewRequest(http.MethodGet, "/v1/thing", nil)
			req.RemoteAddr = "10.0.0.9:4000"
			req.Header.Set("X-Forwarded-For", xff)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if i == 0 {
				require.Equal(t, http.StatusOK, rec.Code)
			} else {
				require.Equal(t, http.StatusTooManyRequests, rec.Code)
			}
		}
	})

	t.Run("distinct endpoints count separately", func(t *testing.T) {
		l := httpx.NewFixedWindowLimiter()
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		h := httpx.RateLimitMiddleware(l, httpx.RateLimitConfig{Requests: 1, Window: time.Minute}, httpx.IPKeyExtractor)(next)

		first := httptest.NewRequest(http.MethodGet, "/v1/a", nil)
		first.RemoteAddr = "10.0.0.9:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, first)
		require.Equal(t, http.StatusOK, rec.Code)

		other := httptest.NewRequest(http.MethodGet, "/v1/b", nil)
		other.RemoteAddr = "10.0.0.9:4000"
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, other)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
