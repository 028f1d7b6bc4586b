package store

import (
	"context"
	"errors"

	"github.com/handihub/trustgate/internal/access/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today,
// postgres later) implement this. Sub-repositories keep concerns tidy and
// testable.
type Store interface {
	Accounts() Accounts
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store. The
	// caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back if fn returns an
	// error and committing otherwise. This is the recommended way to run
	// multi-step operations that must be atomic (e.g., replacing the backup
	// code set).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. Same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// CreateAccount inserts a new account (id is provided by app via ULID).
	CreateAccount(ctx context.Context, a domain.Account) error

	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByEmail is used during login.
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, accountID string, newHash string) error

	// SetTOTPSecret stores a fresh encrypted pending secret and clears any
	// previous enabled timestamp (the account goes back to pending).
	SetTOTPSecret(ctx context.Context, accountID string, encryptedSecret string) error

	// EnableTOTP marks the pending secret confirmed (sets totp_enabled).
	EnableTOTP(ctx context.Context, accountID string) error

	// DisableTOTP clears both the secret and the enabled timestamp.
	DisableTOTP(ctx context.Context, accountID string) error

	// DeleteAccount cascades to backup_codes (per schema).
	DeleteAccount(ctx context.Context, accountID string) error
}

type BackupCodes interface {
	// CreateBackupCode stores one backup code fingerprint for an account.
	CreateBackupCode(ctx context.Context, code domain.BackupCode) error

	// ConsumeBackupCode deletes the matching code in a single statement and
	// reports whether a row was removed. Two concurrent consumers of the same
	// code cannot both see true.
	ConsumeBackupCode(ctx context.Context, accountID string, codeHash string) (bool, error)

	// DeleteAllBackupCodes removes every code for an account.
	DeleteAllBackupCodes(ctx context.Context, accountID string) error

	// CountBackupCodes returns the number of unused codes for an account.
	CountBackupCodes(ctx context.Context, accountID string) (int, error)
}
