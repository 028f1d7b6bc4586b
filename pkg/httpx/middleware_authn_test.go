package httpx_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/handihub/trustgate/pkg/httpx"
	"github.com/handihub/trustgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://trustgate.test"

func newTestTokenPair(t *testing.T) (jwtx.Signer, jwtx.Verifier) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signer, err := jwtx.NewSignerEdDSA(priv)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierEdDSA(signer.PublicKey(), testIssuer)
	require.NoError(t, err)

	return signer, verifier
}

func mintToken(t *testing.T, s jwtx.Signer, subject, role string, amr []string, ttl time.Duration) string {
	t.Helper()

	claims := jwtx.NewSessionClaims(subject, role, "pat@example.com", amr, testIssuer, ttl, time.Now().UTC())
	token, err := s.Sign(claims)
	require.NoError(t, err)
	return token
}

func TestAuthnMiddleware(t *testing.T) {
	t.Parallel()

	signer, verifier := newTestTokenPair(t)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := httpx.PrincipalFromContext(r.Context())
		require.True(t, ok)
		w.Header().Set("X-Test-Subject", p.AccountID)
		w.Header().Set("X-Test-Role", p.Role)
		w.WriteHeader(http.StatusOK)
	})
	h := httpx.AuthnMiddleware(verifier)(echo)

	t.Run("valid token resolves the principal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
		req.Header.Set("Authorization", "Bearer "+mintToken(t, signer, "acct_1", "customer", []string{"pwd"}, time.Hour))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "acct_1", rec.Header().Get("X-Test-Subject"))
		require.Equal(t, "customer", rec.Header().Get("X-Test-Role"))
	})

	t.Run("missing header gets 401 with WWW-Authenticate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("garbage token gets 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token from a foreign key gets 401", func(t *testing.T) {
		foreignSigner, _ := newTestTokenPair(t)
		req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
		req.Header.Set("Authorization", "Bearer "+mintToken(t, foreignSigner, "acct_1", "customer", nil, time.Hour))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token gets 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
		req.Header.Set("Authorization", "Bearer "+mintToken(t, signer, "acct_1", "customer", nil, -time.Minute))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	signer, verifier := newTestTokenPair(t)
	h := httpx.Chain(okHandler(),
		httpx.AuthnMiddleware(verifier),
		httpx.RequireRole("admin"),
	)

	t.Run("allowed role passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/thing", nil)
		req.Header.Set("Authorization", "Bearer "+mintToken(t, signer, "acct_9", "admin", []string{"pwd", "otp"}, time.Hour))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("other role gets 403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/thing", nil)
		req.Header.Set("Authorization", "Bearer "+mintToken(t, signer, "acct_1", "customer", []string{"pwd"}, time.Hour))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "insufficient_role")
	})

	t.Run("unauthenticated gets 401, not 403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/thing", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
