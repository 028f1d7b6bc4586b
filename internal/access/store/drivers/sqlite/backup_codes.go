package sqlite

import (
	"context"
	"time"

	"github.com/handihub/trustgate/internal/access/domain"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, code domain.BackupCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO backup_codes (id, account_id, code_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		code.ID, code.AccountID, code.CodeHash, time.Now().UTC(),
	)
	return mapConstraint(err)
}

// ConsumeBackupCode deletes the matching code and reports whether a row went
// away. The single DELETE makes consumption atomic: with two concurrent
// callers only one sees RowsAffected == 1.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, accountID string, codeHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM backup_codes WHERE account_id = ? AND code_hash = ?`,
		accountID, codeHash,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM backup_codes WHERE account_id = ?`, accountID)
	return err
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM backup_codes WHERE account_id = ?`, accountID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
