package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/handihub/trustgate/internal/access/service"
	"github.com/handihub/trustgate/pkg/httpx"
	"github.com/handihub/trustgate/pkg/jwtx"
	"github.com/handihub/trustgate/pkg/slogx"
)

// SessionHandler handles POST /v1/sessions. The endpoint is form-encoded so
// the login rate limit can key on the submitted email without re-reading a
// JSON body.
type SessionHandler struct {
	Accounts   *service.AccountService
	Signer     jwtx.Signer
	Issuer     string
	SessionTTL time.Duration
}

type sessionResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"` // seconds
	AMR         []string `json:"amr"`
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Malformed form body.")
		return
	}

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	code := r.PostFormValue("code") // TOTP or backup code, required when 2FA is on

	if email == "" || password == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "email and password are required.")
		return
	}

	account, amr, err := h.Accounts.Login(ctx, email, password, code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTwoFactorRequired):
			// tells the client to re-submit with a code; not a failed attempt
			httpx.WriteError(w, http.StatusUnauthorized,
				"two_factor_required", "Submit a verification code to finish signing in.")
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteError(w, http.StatusUnauthorized,
				"invalid_credentials", "Email, password or code is incorrect.")
		default:
			log.Error("login failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError,
				"server_error", "Something went wrong.")
		}
		return
	}

	claims := jwtx.NewSessionClaims(
		account.ID,
		account.Role.String(),
		account.Email,
		amr,
		h.Issuer,
		h.SessionTTL,
		time.Now().UTC(),
	)
	token, err := h.Signer.Sign(claims)
	if err != nil {
		log.Error("failed to sign session token", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Something went wrong.")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.SessionTTL.Seconds()),
		AMR:         amr,
	})
}
