package httpx

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/handihub/trustgate/pkg/slogx"
)

// GuardConfig configures the request guard pipeline that every inbound
// request passes through before authentication.
type GuardConfig struct {
	// MaxBodyBytes is the request payload ceiling. Zero disables the check.
	MaxBodyBytes int64

	// AllowedOrigins is the CORS allow-list for cross-origin requests. An
	// entry of "*" allows any origin.
	AllowedOrigins []string

	// BlockedUserAgents are lowercase substrings of automated-client
	// signatures rejected on endpoints that disallow bots. Empty means the
	// default signature set.
	BlockedUserAgents []string

	// TrustProxyHeaders controls whether X-Forwarded-For and X-Real-IP are
	// honoured when resolving the client address. Enable only behind a proxy
	// that overwrites client-supplied values; otherwise a direct caller could
	// rotate spoofed addresses past the IP-keyed rate limits.
	TrustProxyHeaders bool
}

// DefaultBlockedUserAgents are signatures of common automated clients. The
// marketplace API is browser- and mobile-app-facing; script traffic goes
// through the partner API instead.
var DefaultBlockedUserAgents = []string{
	"curl/",
	"wget/",
	"python-requests",
	"python-urllib",
	"go-http-client",
	"scrapy",
	"phantomjs",
	"headlesschrome",
}

// RequestGuard composes the request-validation pipeline, cheapest checks
// first, short-circuiting on the first failure:
//
//  1. client IP format check (403)
//  2. user-agent filter (403)
//  3. payload size ceiling (413)
//  4. CORS origin allow-list (403)
//
// Rate limiting completes the pipeline but is mounted per-route (step 5), so
// each endpoint class gets its own limits. Error bodies stay generic; the
// reason detail goes to the logs only.
func RequestGuard(cfg GuardConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return Chain(next,
			ClientIPFilter(cfg.TrustProxyHeaders),
			UserAgentFilter(cfg.BlockedUserAgents),
			BodyLimit(cfg.MaxBodyBytes),
			CORSFilter(cfg.AllowedOrigins),
		)
	}
}

// resolveClientAddr picks the address the guard and the IP-keyed rate limits
// use. Forwarding headers are only consulted for trusted proxies; a direct
// caller is always keyed by its transport address.
func resolveClientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ClientIPFilter rejects requests whose client address does not parse as an
// IP at all. Loopback and private addresses are classified low risk and pass
// through; the resolved IP is stashed in the context for later keying.
func ClientIPFilter(trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw := resolveClientAddr(r, trustProxy)
			ip := net.ParseIP(raw)
			if ip == nil {
				log.Warn("request guard: malformed client address", "addr", raw)
				WriteError(w, http.StatusForbidden,
					"invalid_client", "Request rejected.")
				return
			}

			if ip.IsLoopback() || ip.IsPrivate() {
				log.Debug("request guard: internal client address", "ip", ip.String())
			}

			ctx = context.WithValue(ctx, CtxKeyClientIP, ip.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserAgentFilter rejects known automated-client signatures. An absent
// user-agent header is allowed; only positive signature matches are blocked.
func UserAgentFilter(blocked []string) Middleware {
	if len(blocked) == 0 {
		blocked = DefaultBlockedUserAgents
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := strings.ToLower(r.UserAgent())
			for _, sig := range blocked {
				if ua != "" && strings.Contains(ua, sig) {
					slogx.FromContext(r.Context()).Warn("request guard: blocked user agent",
						"user_agent", r.UserAgent())
					WriteError(w, http.StatusForbidden,
						"client_not_allowed", "Request rejected.")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimit rejects request bodies over the ceiling. The Content-Length check
// catches declared oversize up front; MaxBytesReader backstops chunked
// requests that lie about their size.
func BodyLimit(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				slogx.FromContext(r.Context()).Warn("request guard: payload too large",
					"content_length", r.ContentLength, "limit", maxBytes)
				WriteError(w, http.StatusRequestEntityTooLarge,
					"payload_too_large", "Request payload exceeds the allowed size.")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// CORSFilter enforces the cross-origin allow-list. Same-origin requests (no
// Origin header) pass untouched; allowed cross-origin requests get the CORS
// response headers, including a preflight short-circuit.
func CORSFilter(allowedOrigins []string) Middleware {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAny := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAny = true
		}
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[strings.ToLower(strings.TrimRight(origin, "/"))]; !ok && !allowAny {
				slogx.FromContext(r.Context()).Warn("request guard: origin not allowed",
					"origin", origin)
				WriteError(w, http.StatusForbidden,
					"origin_not_allowed", "Request rejected.")
				return
			}

			if allowAny {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Stepup-Code")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
