package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/handihub/trustgate/internal/access/domain"
	"github.com/handihub/trustgate/internal/access/service"
	"github.com/handihub/trustgate/internal/access/store"
	"github.com/handihub/trustgate/pkg/httpx"
	"github.com/handihub/trustgate/pkg/jwtx"
	"github.com/handihub/trustgate/pkg/slogx"
)

// Config carries the router's policy knobs, separate from its dependencies.
type Config struct {
	Issuer        string
	Env           string
	BuildVersion  string
	SessionTTL    time.Duration
	ThrottleRPS   float64
	ThrottleBurst int
	Guard         httpx.GuardConfig
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	config    Config
	signer    jwtx.Signer
	verifier  jwtx.Verifier
	startTime time.Time
	logger    *slog.Logger
	limiter   *httpx.FixedWindowLimiter

	store     store.Store
	Accounts  *service.AccountService
	TwoFactor *service.TwoFactorService
}

func NewRouter(
	cfg Config,
	signer jwtx.Signer,
	verifier jwtx.Verifier,
	st store.Store,
	logger *slog.Logger,
) *Router {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = jwtx.DefaultSessionTTL
	}

	r := &Router{
		Mux:       http.NewServeMux(),
		config:    cfg,
		signer:    signer,
		verifier:  verifier,
		startTime: time.Now(),
		logger:    logger,
		limiter:   httpx.NewFixedWindowLimiter(),
		store:     st,
	}

	// Global middleware chain: logging first so every rejection is logged,
	// then security headers, the throughput ceiling, and the request guard.
	// Per-endpoint rate limits are mounted on the routes themselves.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.SecurityHeaders(cfg.Env),
	}
	if cfg.ThrottleRPS > 0 {
		r.middlewares = append(r.middlewares,
			httpx.ThrottleMiddleware(cfg.ThrottleRPS, cfg.ThrottleBurst))
	}
	r.middlewares = append(r.middlewares, httpx.RequestGuard(cfg.Guard))

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAccounts()
	r.registerSessions()
	r.registerTwoFactor()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAccounts() {
	registerHandler := &RegisterHandler{Accounts: r.Accounts}

	// POST /accounts - moderate limit; registration is mutating but not a
	// credential-guessing surface
	r.Mux.Handle("POST /v1/accounts",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(r.limiter, httpx.ModerateLimit),
		),
	)

	// admin principals are only minted by an existing admin
	adminRegisterHandler := &RegisterHandler{Accounts: r.Accounts, AllowAdmin: true}
	r.Mux.Handle("POST /v1/admin/accounts",
		httpx.Chain(adminRegisterHandler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireRole(domain.RoleAdmin.String()),
			httpx.RateLimitByAccount(r.limiter, httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSessions() {
	sessionHandler := &SessionHandler{
		Accounts:   r.Accounts,
		Signer:     r.signer,
		Issuer:     r.config.Issuer,
		SessionTTL: r.config.SessionTTL,
	}

	// POST /sessions - strict limit keyed by IP + submitted email so one IP
	// cannot walk a password list against many accounts unnoticed
	r.Mux.Handle("POST /v1/sessions",
		httpx.Chain(sessionHandler,
			httpx.RateLimitByIPAndFormField(r.limiter, httpx.StrictLimit, "email"),
		),
	)
}

func (r *Router) registerTwoFactor() {
	authn := httpx.AuthnMiddleware(r.verifier)
	twoFactorHandler := &TwoFactorHandler{TwoFactor: r.TwoFactor}

	r.Mux.Handle("POST /v1/2fa/enroll",
		httpx.Chain(http.HandlerFunc(twoFactorHandler.HandleEnroll),
			authn,
			httpx.RateLimitByAccount(r.limiter, httpx.ModerateLimit),
		),
	)

	// confirm and verify accept guessable codes, so they get the strict class
	r.Mux.Handle("POST /v1/2fa/confirm",
		httpx.Chain(http.HandlerFunc(twoFactorHandler.HandleConfirm),
			authn,
			httpx.RateLimitByAccount(r.limiter, httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/2fa/verify",
		httpx.Chain(http.HandlerFunc(twoFactorHandler.HandleVerify),
			authn,
			httpx.RateLimitByAccount(r.limiter, httpx.StrictLimit),
		),
	)

	// recovery-material churn is rare; the reset class keeps it that way
	r.Mux.Handle("POST /v1/2fa/backup-codes",
		httpx.Chain(http.HandlerFunc(twoFactorHandler.HandleRegenerate),
			authn,
			httpx.RateLimitByAccount(r.limiter, httpx.ResetLimit),
		),
	)

	r.Mux.Handle("DELETE /v1/2fa",
		httpx.Chain(http.HandlerFunc(twoFactorHandler.HandleDisable),
			authn,
			httpx.RateLimitByAccount(r.limiter, httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	userInfoHandler := &UserInfoHandler{Store: r.store}
	r.Mux.Handle("GET /v1/userinfo",
		httpx.Chain(userInfoHandler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByAccount(r.limiter, httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.config.BuildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.store))
}
