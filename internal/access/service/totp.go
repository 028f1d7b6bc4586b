package service

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultTOTPSkew accepts codes from this many 30-second steps either side of
// the current one, absorbing clock drift between server and authenticator.
const DefaultTOTPSkew = 2

// maxTOTPSkew caps the acceptance window; anything wider defeats the point of
// a time-based code.
const maxTOTPSkew = 4

// TOTPVerifier checks 6-digit, 30-second-period, SHA-1 codes against a base32
// secret. All failure modes look the same to the caller: false.
type TOTPVerifier struct {
	// Skew is the accepted step drift in each direction. Values above
	// maxTOTPSkew are clamped.
	Skew uint
}

// Verify reports whether code matches secret at the given instant. Malformed
// secrets and codes simply fail verification; the comparison itself is
// constant-time inside the otp library.
func (v TOTPVerifier) Verify(secret, code string, now time.Time) bool {
	skew := v.Skew
	if skew > maxTOTPSkew {
		skew = maxTOTPSkew
	}

	ok, err := totp.ValidateCustom(code, secret, now.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}
