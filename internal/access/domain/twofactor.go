package domain

import "time"

// EnrollmentState is the two-factor lifecycle state machine:
// disabled -> pending (secret issued) -> enabled (first code confirmed).
type EnrollmentState string

const (
	EnrollmentDisabled EnrollmentState = "disabled"
	EnrollmentPending  EnrollmentState = "pending"
	EnrollmentEnabled  EnrollmentState = "enabled"
)

// EnrollmentResponse is returned when enrollment starts. The secret and QR are
// shown to the account holder exactly once and never persisted in plaintext.
type EnrollmentResponse struct {
	Secret     string `json:"secret"`      // base32 encoded TOTP secret
	OtpauthURL string `json:"otpauth_url"` // otpauth:// provisioning URI
	QRCode     string `json:"qr_code"`     // base64 data URI, PNG
}

// BackupCode is one stored single-use recovery code. Only the fingerprint is
// kept; the plaintext exists solely in the response that generated it.
type BackupCode struct {
	ID        string
	AccountID string
	CodeHash  string // base64url SHA-256 of the normalized code
	CreatedAt time.Time
}
