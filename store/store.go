package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write collides with an existing unique row.
	ErrConflict = errors.New("record conflict")
)

// Role is the coarse account role used for authorization decisions.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleMerchant Role = "merchant"
)

// Account is the persisted identity row together with its MFA flags.
type Account struct {
	ID              string
	Email           string
	PasswordHash    string
	Role            Role
	MFATOTPEnabled  bool
	MFAEmailEnabled bool
	MFARequired     bool
	// TOTPSecret holds the sealed (encrypted) shared secret, never the raw key.
	TOTPSecret      []byte
	TOTPLastCounter int64
	CreatedAt       time.Time
}

// EmailOTP is a single issued email one-time code. Only the hash is kept.
type EmailOTP struct {
	ID         string
	UserID     string
	CodeHash   string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Consumed   bool
	ConsumedAt time.Time
}

// BackupCode is one hashed recovery code.
// Rows are never deleted: regeneration stamps RevokedAt on unused codes and
// leaves used ones as they were.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Used      bool
	UsedAt    time.Time
	RevokedAt time.Time
	CreatedAt time.Time
}

// Live reports whether the code can still be consumed.
func (c BackupCode) Live() bool {
	return !c.Used && c.RevokedAt.IsZero()
}

// Accounts persists account rows and their MFA enrollment flags.
type Accounts interface {
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	GetAccountByID(ctx context.Context, id string) (Account, error)
	// EnableTOTP stores the sealed secret and flips MFATOTPEnabled in one write.
	EnableTOTP(ctx context.Context, userID string, sealedSecret []byte) error
	EnableEmailMFA(ctx context.Context, userID string) error
	// AdvanceTOTPCounter records the last accepted TOTP step. It returns false
	// when counter is not greater than the stored value.
	AdvanceTOTPCounter(ctx context.Context, userID string, counter int64) (bool, error)
}

// EmailOTPs persists issued email codes.
type EmailOTPs interface {
	// ReplaceEmailOTP marks every live code of the user consumed and inserts
	// otp, atomically.
	ReplaceEmailOTP(ctx context.Context, otp EmailOTP) error
	LatestEmailOTP(ctx context.Context, userID string) (EmailOTP, error)
	// ConsumeEmailOTP flips Consumed on an unconsumed row. It returns false
	// when the row was already consumed.
	ConsumeEmailOTP(ctx context.Context, id string, at time.Time) (bool, error)
}

// BackupCodes persists hashed recovery codes.
type BackupCodes interface {
	// ReplaceBackupCodes revokes every unused code of the user and inserts the
	// new batch, atomically.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string, at time.Time) error
	// ConsumeBackupCode flips Used on the matching unused code. ok is false
	// when no unused code matches. remaining counts live codes afterwards.
	ConsumeBackupCode(ctx context.Context, userID, hash string, at time.Time) (remaining int, ok bool, err error)
	CountBackupCodes(ctx context.Context, userID string) (int, error)
}
