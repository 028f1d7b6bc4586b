package http_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	accesshttp "github.com/handihub/trustgate/internal/access/http"
	"github.com/handihub/trustgate/internal/access/service"
	"github.com/handihub/trustgate/internal/access/store"
	"github.com/handihub/trustgate/internal/access/store/drivers/sqlite"
	"github.com/handihub/trustgate/pkg/cryptox"
	"github.com/handihub/trustgate/pkg/httpx"
	"github.com/handihub/trustgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://trustgate.test"

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "trustgate-http-test")
	if err != nil {
		os.Exit(1)
	}
	cryptoxSetup(dir)

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func newTestRouter(t *testing.T) (*accesshttp.Router, store.Store) {
	t.Helper()

	st, err := sqlite.NewStore("file:" + t.Name() + "?mode=memory&cache=shared&_pragma=busy_timeout(10000)")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA(priv)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierEdDSA(signer.PublicKey(), testIssuer)
	require.NoError(t, err)

	twoFactor := &service.TwoFactorService{
		Store:    st,
		Issuer:   "HandiHub",
		Verifier: service.TOTPVerifier{Skew: service.DefaultTOTPSkew},
	}
	accounts := &service.AccountService{
		Store:     st,
		TwoFactor: twoFactor,
	}

	router := accesshttp.NewRouter(accesshttp.Config{
		Issuer:       testIssuer,
		Env:          "test",
		BuildVersion: "test",
		Guard: httpx.GuardConfig{
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"https://app.handihub.test"},
		},
	}, signer, verifier, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router.Accounts = accounts
	router.TwoFactor = twoFactor
	router.ApplyRoutes()

	return router, st
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:1234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.RemoteAddr = "203.0.113.7:1234"
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// registerAccount registers through the API and returns the account id.
func registerAccount(t *testing.T, router http.Handler, email, password string) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/v1/accounts", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]string](t, rec)["account_id"]
}

// login signs in through the API and returns the session token.
func login(t *testing.T, router http.Handler, email, password, code string) string {
	t.Helper()

	form := url.Values{"email": {email}, "password": {password}}
	if code != "" {
		form.Set("code", code)
	}
	rec := doForm(t, router, "/v1/sessions", form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]any](t, rec)["access_token"].(string)
}

func cryptoxSetup(dir string) {
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))
	cryptox.SetMasterKeyPath(filepath.Join(dir, "master.key"))
	_ = os.WriteFile(filepath.Join(dir, "master.key"), []byte("http-test-master-key"), 0600)
}
