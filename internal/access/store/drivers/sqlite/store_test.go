package sqlite_test

import (
	"context"
	"sync"
	"testing"

	"github.com/handihub/trustgate/internal/access/domain"
	"github.com/handihub/trustgate/internal/access/store"
	"github.com/handihub/trustgate/internal/access/store/drivers/sqlite"
	"github.com/handihub/trustgate/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore("file:" + t.Name() + "?mode=memory&cache=shared&_pragma=busy_timeout(10000)")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func newTestAccount(t *testing.T, s store.Store) domain.Account {
	t.Helper()

	a := domain.Account{
		ID:           idx.New().String(),
		Email:        idx.New().String() + "@example.com",
		PasswordHash: "$argon2id$fake",
		Role:         domain.RoleCustomer,
	}
	require.NoError(t, s.Accounts().CreateAccount(context.Background(), a))
	return a
}

func TestAccountsRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("create and fetch round trip", func(t *testing.T) {
		a := newTestAccount(t, s)

		got, err := s.Accounts().GetAccountByID(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, a.Email, got.Email)
		require.Equal(t, domain.RoleCustomer, got.Role)
		require.Equal(t, domain.EnrollmentDisabled, got.TwoFactorState())

		byEmail, err := s.Accounts().GetAccountByEmail(ctx, a.Email)
		require.NoError(t, err)
		require.Equal(t, a.ID, byEmail.ID)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		a := newTestAccount(t, s)

		dup := domain.Account{
			ID:           idx.New().String(),
			Email:        a.Email,
			PasswordHash: "$argon2id$fake",
			Role:         domain.RoleProvider,
		}
		err := s.Accounts().CreateAccount(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("unknown account maps to ErrNotFound", func(t *testing.T) {
		_, err := s.Accounts().GetAccountByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)

		err = s.Accounts().EnableTOTP(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("totp lifecycle disabled to pending to enabled to disabled", func(t *testing.T) {
		a := newTestAccount(t, s)

		require.NoError(t, s.Accounts().SetTOTPSecret(ctx, a.ID, "enc-secret"))
		got, err := s.Accounts().GetAccountByID(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, domain.EnrollmentPending, got.TwoFactorState())
		require.NotNil(t, got.TOTPSecret)

		require.NoError(t, s.Accounts().EnableTOTP(ctx, a.ID))
		got, err = s.Accounts().GetAccountByID(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, domain.EnrollmentEnabled, got.TwoFactorState())
		require.NotNil(t, got.TOTPEnabled)

		// re-enrolling returns to pending and drops the enabled mark
		require.NoError(t, s.Accounts().SetTOTPSecret(ctx, a.ID, "new-secret"))
		got, err = s.Accounts().GetAccountByID(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, domain.EnrollmentPending, got.TwoFactorState())

		require.NoError(t, s.Accounts().DisableTOTP(ctx, a.ID))
		got, err = s.Accounts().GetAccountByID(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, domain.EnrollmentDisabled, got.TwoFactorState())
		require.Nil(t, got.TOTPSecret)
	})
}

func TestBackupCodesRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addCode := func(t *testing.T, accountID, hash string) {
		t.Helper()
		require.NoError(t, s.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
			ID:        idx.New().String(),
			AccountID: accountID,
			CodeHash:  hash,
		}))
	}

	t.Run("consume removes exactly the matching code", func(t *testing.T) {
		a := newTestAccount(t, s)
		addCode(t, a.ID, "hash-1")
		addCode(t, a.ID, "hash-2")

		ok, err := s.BackupCodes().ConsumeBackupCode(ctx, a.ID, "hash-1")
		require.NoError(t, err)
		require.True(t, ok)

		// second attempt on the same code fails
		ok, err = s.BackupCodes().ConsumeBackupCode(ctx, a.ID, "hash-1")
		require.NoError(t, err)
		require.False(t, ok)

		count, err := s.BackupCodes().CountBackupCodes(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("codes are scoped per account", func(t *testing.T) {
		a := newTestAccount(t, s)
		b := newTestAccount(t, s)
		addCode(t, a.ID, "shared-hash")

		ok, err := s.BackupCodes().ConsumeBackupCode(ctx, b.ID, "shared-hash")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("concurrent consumers cannot both succeed", func(t *testing.T) {
		a := newTestAccount(t, s)
		addCode(t, a.ID, "contended")

		const callers = 8
		results := make(chan bool, callers)

		var wg sync.WaitGroup
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// retry transient lock errors; only the consume outcome matters
				for {
					ok, err := s.BackupCodes().ConsumeBackupCode(ctx, a.ID, "contended")
					if err == nil {
						results <- ok
						return
					}
				}
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for ok := range results {
			if ok {
				succeeded++
			}
		}
		require.Equal(t, 1, succeeded)
	})

	t.Run("delete all clears the set", func(t *testing.T) {
		a := newTestAccount(t, s)
		addCode(t, a.ID, "h1")
		addCode(t, a.ID, "h2")

		require.NoError(t, s.BackupCodes().DeleteAllBackupCodes(ctx, a.ID))
		count, err := s.BackupCodes().CountBackupCodes(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, 0, count)
	})

	t.Run("account delete cascades to codes", func(t *testing.T) {
		a := newTestAccount(t, s)
		addCode(t, a.ID, "h1")

		require.NoError(t, s.Accounts().DeleteAccount(ctx, a.ID))
		count, err := s.BackupCodes().CountBackupCodes(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, 0, count)
	})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAccount(t, s)

	errBoom := store.ErrAlreadyExists // any sentinel works as the fn error
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
			ID:        idx.New().String(),
			AccountID: a.ID,
			CodeHash:  "tx-hash",
		}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	count, err := s.BackupCodes().CountBackupCodes(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
