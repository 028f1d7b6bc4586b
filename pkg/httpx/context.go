package httpx

import "context"

// Principal is the immutable identity attached to an authorized request for
// its lifetime. It is derived from the session token and never mutated.
type Principal struct {
	AccountID string
	Role      string
	AMR       []string
}

type ctxKey string

const (
	CtxKeyPrincipal ctxKey = "principal"
	CtxKeyClientIP  ctxKey = "client_ip"
)

// PrincipalFromContext returns the request principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(CtxKeyPrincipal).(Principal)
	return p, ok
}

// ClientIPFromContext returns the validated client IP set by the request
// guard, or an empty string when the guard has not run.
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(CtxKeyClientIP).(string); ok {
		return ip
	}
	return ""
}
