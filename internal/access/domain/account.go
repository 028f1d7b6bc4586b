package domain

import (
	"errors"
	"time"
)

// Role is the closed set of marketplace principal roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

var ErrInvalidRole = errors.New("domain: invalid role")

// ParseRole validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomer, RoleProvider, RoleAdmin:
		return Role(s), nil
	}
	return "", ErrInvalidRole
}

func (r Role) String() string { return string(r) }

type Account struct {
	ID           string
	Email        string
	PasswordHash string     // argon2id PHC encoded
	Role         Role
	TOTPSecret   *string    // AES-256-GCM encrypted, base64; nil until enrollment starts
	TOTPEnabled  *time.Time // when enrollment was confirmed (nil = not enabled)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TwoFactorState reports where the account sits in the enrollment lifecycle.
func (a *Account) TwoFactorState() EnrollmentState {
	switch {
	case a.TOTPEnabled != nil:
		return EnrollmentEnabled
	case a.TOTPSecret != nil:
		return EnrollmentPending
	default:
		return EnrollmentDisabled
	}
}
