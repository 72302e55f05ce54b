package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/MrEthical07/goMFA/store"
)

const accountColumns = `id, email, password_hash, role, mfa_totp_enabled, mfa_email_enabled,
		mfa_required, totp_secret, totp_last_counter, created_at`

// CreateAccount inserts a new account row and returns it with the generated
// ID. A duplicate email yields store.ErrConflict.
func (s *Store) CreateAccount(ctx context.Context, acc store.Account) (store.Account, error) {
	query := `INSERT INTO accounts (email, password_hash, role, mfa_required)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	acc.Email = strings.ToLower(strings.TrimSpace(acc.Email))
	err := s.db.QueryRowContext(ctx, query, acc.Email, acc.PasswordHash, string(acc.Role), acc.MFARequired).
		Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		return store.Account{}, wrapErr(err)
	}
	return acc, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (store.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (store.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) EnableTOTP(ctx context.Context, userID string, sealedSecret []byte) error {
	query := `UPDATE accounts
		SET totp_secret = $2, mfa_totp_enabled = TRUE, totp_last_counter = 0
		WHERE id = $1`
	return execOne(ctx, s.db, query, userID, sealedSecret)
}

func (s *Store) EnableEmailMFA(ctx context.Context, userID string) error {
	query := `UPDATE accounts SET mfa_email_enabled = TRUE WHERE id = $1`
	return execOne(ctx, s.db, query, userID)
}

func (s *Store) AdvanceTOTPCounter(ctx context.Context, userID string, counter int64) (bool, error) {
	query := `UPDATE accounts SET totp_last_counter = $2
		WHERE id = $1 AND totp_last_counter < $2`

	res, err := s.db.ExecContext(ctx, query, userID, counter)
	if err != nil {
		return false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr(err)
	}
	return n == 1, nil
}

func scanAccount(row *sql.Row) (store.Account, error) {
	var (
		acc  store.Account
		role string
	)
	err := row.Scan(
		&acc.ID,
		&acc.Email,
		&acc.PasswordHash,
		&role,
		&acc.MFATOTPEnabled,
		&acc.MFAEmailEnabled,
		&acc.MFARequired,
		&acc.TOTPSecret,
		&acc.TOTPLastCounter,
		&acc.CreatedAt,
	)
	if err != nil {
		return store.Account{}, wrapErr(err)
	}
	acc.Role = store.Role(role)
	return acc, nil
}

func execOne(ctx context.Context, db DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
