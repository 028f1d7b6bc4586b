package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/handihub/trustgate/internal/access/domain"
	"github.com/handihub/trustgate/internal/access/store"
	"github.com/handihub/trustgate/pkg/cryptox"
	"github.com/handihub/trustgate/pkg/idx"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTwoFactorRequired  = errors.New("two-factor code required")
)

// WeakPasswordError carries the policy check so handlers can return the
// violation list to the client.
type WeakPasswordError struct {
	Check PasswordCheck
}

func (e *WeakPasswordError) Error() string {
	return "password rejected by policy: " + strings.Join(e.Check.Violations, ", ")
}

// AccountService handles registration and credential verification. Two-factor
// checks during login are delegated to the TwoFactorService.
type AccountService struct {
	Store     store.Store
	Policy    PasswordPolicy
	TwoFactor *TwoFactorService
}

// Register creates a new account after the password clears policy. The email
// is lowercased so lookups are case-insensitive.
func (s *AccountService) Register(ctx context.Context, email, password string, role domain.Role) (domain.Account, error) {
	if check := s.Policy.Score(password); !check.Valid {
		return domain.Account{}, &WeakPasswordError{Check: check}
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to hash password: %w", err)
	}

	account := domain.Account{
		ID:           idx.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.Store.Accounts().CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, ErrEmailTaken
		}
		return domain.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// Login verifies the password and, when two-factor is enabled, the submitted
// code. It returns the account plus the AMR method list for the session token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password, twoFactorCode string) (domain.Account, []string, error) {
	account, err := s.Store.Accounts().GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, nil, ErrInvalidCredentials
		}
		return domain.Account{}, nil, fmt.Errorf("failed to load account: %w", err)
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.Account{}, nil, ErrInvalidCredentials
		}
		return domain.Account{}, nil, fmt.Errorf("failed to verify password: %w", err)
	}

	amr := []string{"pwd"}
	if account.TwoFactorState() == domain.EnrollmentEnabled {
		if twoFactorCode == "" {
			return domain.Account{}, nil, ErrTwoFactorRequired
		}
		method, err := s.TwoFactor.VerifyStepUp(ctx, account.ID, twoFactorCode)
		if err != nil {
			if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrNotEnabled) {
				return domain.Account{}, nil, ErrInvalidCredentials
			}
			return domain.Account{}, nil, err
		}
		amr = append(amr, method)
	}

	return account, amr, nil
}
