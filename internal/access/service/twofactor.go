package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/handihub/trustgate/internal/access/domain"
	"github.com/handihub/trustgate/internal/access/store"
	"github.com/handihub/trustgate/pkg/cryptox"
	"github.com/handihub/trustgate/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	backupCodeCount = 10  // codes issued per confirmation or regeneration
	qrCodeSizePx    = 256 // provisioning QR edge length
)

var (
	ErrInvalidCode    = errors.New("invalid verification code")
	ErrNotEnabled     = errors.New("two-factor not enabled for this account")
	ErrNotEnrolled    = errors.New("two-factor enrollment not started")
	ErrAlreadyEnabled = errors.New("two-factor already enabled for this account")
)

// Step-up method labels, recorded in session AMR claims.
const (
	MethodTOTP       = "otp"
	MethodBackupCode = "bkp"
)

// TwoFactorService owns the enrollment state machine (disabled -> pending ->
// enabled), the backup code ledger, and step-up verification for sensitive
// actions.
type TwoFactorService struct {
	Store    store.Store
	Issuer   string // provisioning URI issuer (e.g., "HandiHub")
	Verifier TOTPVerifier
}

// StartEnrollment generates a fresh TOTP secret for the account and stores it
// encrypted, without enabling anything yet. The secret, otpauth URI and QR
// image are returned exactly once; re-calling replaces any pending secret.
func (s *TwoFactorService) StartEnrollment(ctx context.Context, accountID string) (domain.EnrollmentResponse, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return domain.EnrollmentResponse{}, fmt.Errorf("failed to load account: %w", err)
	}
	if account.TwoFactorState() == domain.EnrollmentEnabled {
		return domain.EnrollmentResponse{}, ErrAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.EnrollmentResponse{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, err := cryptox.EncryptSecret(key.Secret())
	if err != nil {
		return domain.EnrollmentResponse{}, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}
	if err := s.Store.Accounts().SetTOTPSecret(ctx, accountID, encrypted); err != nil {
		return domain.EnrollmentResponse{}, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodeSizePx)
	if err != nil {
		return domain.EnrollmentResponse{}, fmt.Errorf("failed to render provisioning QR: %w", err)
	}

	return domain.EnrollmentResponse{
		Secret:     key.Secret(),
		OtpauthURL: key.URL(),
		QRCode:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// ConfirmEnrollment verifies the first code against the pending secret. On
// success the account flips to enabled and a fresh set of backup codes is
// issued, returned in plaintext this one time. On failure the pending secret
// is retained so the holder can retry.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, accountID string, code string) ([]string, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	switch account.TwoFactorState() {
	case domain.EnrollmentEnabled:
		return nil, ErrAlreadyEnabled
	case domain.EnrollmentDisabled:
		return nil, ErrNotEnrolled
	}

	secret, err := cryptox.DecryptSecret(*account.TOTPSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}
	if !s.Verifier.Verify(secret, code, time.Now()) {
		return nil, ErrInvalidCode
	}

	codes, err := s.generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.storeBackupCodes(ctx, tx, accountID, codes); err != nil {
			return err
		}
		if err := tx.Accounts().EnableTOTP(ctx, accountID); err != nil {
			return fmt.Errorf("failed to enable two-factor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// Disable clears the secret, the enabled mark and all backup codes in one
// transaction. Disabling an account that never enrolled is a no-op.
func (s *TwoFactorService) Disable(ctx context.Context, accountID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		if err := tx.Accounts().DisableTOTP(ctx, accountID); err != nil {
			return fmt.Errorf("failed to disable two-factor: %w", err)
		}
		return nil
	})
}

// VerifyStepUp checks a submitted code against the live TOTP secret first and
// the backup-code ledger second. It returns the method that matched (MethodTOTP
// or MethodBackupCode); a consumed backup code is gone for good even if the
// guarded action later fails. Callers surface one generic failure message;
// ErrNotEnabled vs ErrInvalidCode matters only for logs and flow control.
func (s *TwoFactorService) VerifyStepUp(ctx context.Context, accountID string, code string) (string, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to load account: %w", err)
	}
	if account.TwoFactorState() != domain.EnrollmentEnabled {
		return "", ErrNotEnabled
	}

	secret, err := cryptox.DecryptSecret(*account.TOTPSecret)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}
	if s.Verifier.Verify(secret, code, time.Now()) {
		return MethodTOTP, nil
	}

	hash := cryptox.FingerprintToken(cryptox.NormalizeBackupCode(code))
	consumed, err := s.Store.BackupCodes().ConsumeBackupCode(ctx, accountID, hash)
	if err != nil {
		return "", fmt.Errorf("failed to consume backup code: %w", err)
	}
	if consumed {
		return MethodBackupCode, nil
	}

	return "", ErrInvalidCode
}

// RegenerateBackupCodes replaces the whole code set after a successful step-up
// verification. Old codes stop working the moment the transaction commits.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, accountID string, code string) ([]string, error) {
	if _, err := s.VerifyStepUp(ctx, accountID, code); err != nil {
		return nil, err
	}

	codes, err := s.generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete old backup codes: %w", err)
		}
		return s.storeBackupCodes(ctx, tx, accountID, codes)
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

func (s *TwoFactorService) generateBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range codes {
		code, err := cryptox.GenerateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes[i] = code
	}
	return codes, nil
}

func (s *TwoFactorService) storeBackupCodes(ctx context.Context, tx store.Tx, accountID string, codes []string) error {
	for _, code := range codes {
		hash := cryptox.FingerprintToken(cryptox.NormalizeBackupCode(code))
		err := tx.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
			ID:        idx.New().String(),
			AccountID: accountID,
			CodeHash:  hash,
		})
		if err != nil {
			return fmt.Errorf("failed to store backup code: %w", err)
		}
	}
	return nil
}
