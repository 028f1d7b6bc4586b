package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/handihub/trustgate/internal/access/domain"
)

type accountsRepo struct {
	db dbtx
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, string(a.Role), now, now,
	)
	return mapConstraint(err)
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, totp_secret, totp_enabled, created_at, updated_at
		FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, totp_secret, totp_enabled, created_at, updated_at
		FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, accountID string, newHash string) error {
	return r.exec(ctx, `
		UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), accountID)
}

func (r *accountsRepo) SetTOTPSecret(ctx context.Context, accountID string, encryptedSecret string) error {
	return r.exec(ctx, `
		UPDATE accounts SET totp_secret = ?, totp_enabled = NULL, updated_at = ? WHERE id = ?`,
		encryptedSecret, time.Now().UTC(), accountID)
}

func (r *accountsRepo) EnableTOTP(ctx context.Context, accountID string) error {
	now := time.Now().UTC()
	return r.exec(ctx, `
		UPDATE accounts SET totp_enabled = ?, updated_at = ? WHERE id = ?`,
		now, now, accountID)
}

func (r *accountsRepo) DisableTOTP(ctx context.Context, accountID string) error {
	return r.exec(ctx, `
		UPDATE accounts SET totp_secret = NULL, totp_enabled = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), accountID)
}

func (r *accountsRepo) DeleteAccount(ctx context.Context, accountID string) error {
	return r.exec(ctx, `DELETE FROM accounts WHERE id = ?`, accountID)
}

// exec runs a statement that must touch an existing account row.
func (r *accountsRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

func scanAccount(row *sql.Row) (domain.Account, error) {
	var (
		a           domain.Account
		role        string
		totpSecret  sql.NullString
		totpEnabled sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &role,
		&totpSecret, &totpEnabled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.Role = domain.Role(role)
	a.TOTPSecret = mapNullStringPtr(totpSecret)
	a.TOTPEnabled = mapNullTimePtr(totpEnabled)
	return a, nil
}
