package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goMFA/store"
)

func (s *Store) ReplaceEmailOTP(ctx context.Context, otp store.EmailOTP) error {
	if otp.ID == "" {
		otp.ID = uuid.NewString()
	}

	return s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		// Row locks taken here serialize with a concurrent ConsumeEmailOTP on
		// the superseded code.
		supersede := `UPDATE email_otps SET consumed = TRUE, consumed_at = $2
			WHERE user_id = $1 AND NOT consumed`
		if _, err := tx.ExecContext(ctx, supersede, otp.UserID, otp.IssuedAt); err != nil {
			return wrapErr(err)
		}

		insert := `INSERT INTO email_otps (id, user_id, code_hash, issued_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.ExecContext(ctx, insert, otp.ID, otp.UserID, otp.CodeHash, otp.IssuedAt, otp.ExpiresAt); err != nil {
			return wrapErr(err)
		}
		return nil
	})
}

func (s *Store) LatestEmailOTP(ctx context.Context, userID string) (store.EmailOTP, error) {
	query := `SELECT id, user_id, code_hash, issued_at, expires_at, consumed, consumed_at
		FROM email_otps
		WHERE user_id = $1
		ORDER BY issued_at DESC, id DESC
		LIMIT 1`

	var (
		otp        store.EmailOTP
		consumedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&otp.ID,
		&otp.UserID,
		&otp.CodeHash,
		&otp.IssuedAt,
		&otp.ExpiresAt,
		&otp.Consumed,
		&consumedAt,
	)
	if err != nil {
		return store.EmailOTP{}, wrapErr(err)
	}
	if consumedAt.Valid {
		otp.ConsumedAt = consumedAt.Time
	}
	return otp, nil
}

func (s *Store) ConsumeEmailOTP(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE email_otps SET consumed = TRUE, consumed_at = $2
		WHERE id = $1 AND NOT consumed`

	res, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr(err)
	}
	return n == 1, nil
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string, at time.Time) error {
	return s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		revoke := `UPDATE backup_codes SET revoked_at = $2
			WHERE user_id = $1 AND NOT used AND revoked_at IS NULL`
		if _, err := tx.ExecContext(ctx, revoke, userID, at); err != nil {
			return wrapErr(err)
		}

		insert := `INSERT INTO backup_codes (id, user_id, code_hash, created_at)
			VALUES ($1, $2, $3, $4)`
		for _, h := range hashes {
			if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), userID, h, at); err != nil {
				return wrapErr(err)
			}
		}
		return nil
	})
}

func (s *Store) ConsumeBackupCode(ctx context.Context, userID, hash string, at time.Time) (int, bool, error) {
	// A concurrent consumer blocks on the row lock and re-checks NOT used
	// after the winner commits, so it updates nothing.
	consume := `UPDATE backup_codes SET used = TRUE, used_at = $3
		WHERE user_id = $1 AND code_hash = $2 AND NOT used AND revoked_at IS NULL`

	res, err := s.db.ExecContext(ctx, consume, userID, hash, at)
	if err != nil {
		return 0, false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, wrapErr(err)
	}

	remaining, err := s.CountBackupCodes(ctx, userID)
	if err != nil {
		return 0, n == 1, err
	}
	return remaining, n == 1, nil
}

func (s *Store) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	query := `SELECT count(*) FROM backup_codes
		WHERE user_id = $1 AND NOT used AND revoked_at IS NULL`

	var n int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}
