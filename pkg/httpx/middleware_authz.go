package httpx

import "net/http"

// RequireRole allows the request through only when the resolved principal's
// role is in the allow-list. Must be mounted after AuthnMiddleware.
func RequireRole(allowed ...string) Middleware {
	want := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		want[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			if _, ok := want[p.Role]; !ok {
				WriteError(w, http.StatusForbidden,
					"insufficient_role", "This action is not permitted for your account.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
