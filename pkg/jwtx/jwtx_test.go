package jwtx_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/handihub/trustgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newKeypair(t *testing.T) (*jwtx.EdDSASigner, *jwtx.EdDSAVerifier) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signer, err := jwtx.NewSignerEdDSA(priv)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierEdDSA(signer.PublicKey(), "trustgate")
	require.NoError(t, err)

	return signer, verifier
}

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	signer, verifier := newKeypair(t)

	claims := jwtx.NewSessionClaims(
		"01JC4T9GKQ3Z6X8W5V2R1N0MAB", "provider", "pat@example.com",
		[]string{"pwd", "otp"},
		"trustgate", jwtx.DefaultSessionTTL, time.Now().UTC(),
	)

	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := verifier.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "01JC4T9GKQ3Z6X8W5V2R1N0MAB", got.Subject)
	require.Equal(t, "provider", got.Role)
	require.Equal(t, []string{"pwd", "otp"}, got.AMR)
	require.NotEmpty(t, got.ID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	signer, verifier := newKeypair(t)

	claims := jwtx.NewSessionClaims(
		"acct", "customer", "",
		[]string{"pwd"},
		"trustgate", time.Minute, time.Now().UTC().Add(-time.Hour),
	)
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	t.Parallel()

	signer, _ := newKeypair(t)
	_, otherVerifier := newKeypair(t)

	claims := jwtx.NewSessionClaims(
		"acct", "customer", "",
		[]string{"pwd"},
		"trustgate", time.Minute, time.Now().UTC(),
	)
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = otherVerifier.Verify(raw)
	require.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA(priv)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierEdDSA(signer.PublicKey(), "expected-issuer")
	require.NoError(t, err)

	claims := jwtx.NewSessionClaims(
		"acct", "customer", "",
		nil,
		"someone-else", time.Minute, time.Now().UTC(),
	)
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrIssuer)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, verifier := newKeypair(t)

	for _, raw := range []string{"", "abc", "a.b.c"} {
		_, err := verifier.Verify(raw)
		require.Error(t, err)
	}
}
