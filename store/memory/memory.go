// Package memory is a mutex-guarded, process-local implementation of the
// store interfaces. It is used by tests and by the server's dev mode.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goMFA/store"
	"github.com/google/uuid"
)

// Store implements store.Accounts, store.EmailOTPs and store.BackupCodes.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]store.Account
	byEmail  map[string]string
	otps     map[string][]store.EmailOTP
	backups  map[string][]store.BackupCode
}

func New() *Store {
	return &Store{
		accounts: make(map[string]store.Account),
		byEmail:  make(map[string]string),
		otps:     make(map[string][]store.EmailOTP),
		backups:  make(map[string][]store.BackupCode),
	}
}

// AddAccount inserts acc, assigning an ID when empty. Emails are unique
// case-insensitively.
func (s *Store) AddAccount(acc store.Account) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(acc.Email)
	if _, exists := s.byEmail[email]; exists {
		return store.Account{}, store.ErrConflict
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	acc.TOTPSecret = cloneBytes(acc.TOTPSecret)
	s.accounts[acc.ID] = acc
	s.byEmail[email] = acc.ID
	return acc, nil
}

// SetMFARequired toggles the forced-enrollment flag, for seeding and tests.
func (s *Store) SetMFARequired(userID string, required bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return store.ErrNotFound
	}
	acc.MFARequired = required
	s.accounts[userID] = acc
	return nil
}

// SetRole changes the role of userID.
func (s *Store) SetRole(userID string, role store.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return store.ErrNotFound
	}
	acc.Role = role
	s.accounts[userID] = acc
	return nil
}

// DeleteAccount removes userID with its codes. Unknown IDs are ignored.
func (s *Store) DeleteAccount(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil
	}
	delete(s.byEmail, normalizeEmail(acc.Email))
	delete(s.accounts, userID)
	delete(s.otps, userID)
	delete(s.backups, userID)
	return nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (store.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return copyAccount(s.accounts[id]), nil
}

func (s *Store) GetAccountByID(_ context.Context, id string) (store.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return copyAccount(acc), nil
}

func (s *Store) EnableTOTP(_ context.Context, userID string, sealedSecret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return store.ErrNotFound
	}
	acc.TOTPSecret = cloneBytes(sealedSecret)
	acc.MFATOTPEnabled = true
	acc.TOTPLastCounter = 0
	s.accounts[userID] = acc
	return nil
}

func (s *Store) EnableEmailMFA(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return store.ErrNotFound
	}
	acc.MFAEmailEnabled = true
	s.accounts[userID] = acc
	return nil
}

func (s *Store) AdvanceTOTPCounter(_ context.Context, userID string, counter int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return false, store.ErrNotFound
	}
	if counter <= acc.TOTPLastCounter {
		return false, nil
	}
	acc.TOTPLastCounter = counter
	s.accounts[userID] = acc
	return true, nil
}

func (s *Store) ReplaceEmailOTP(_ context.Context, otp store.EmailOTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if otp.ID == "" {
		otp.ID = uuid.NewString()
	}
	list := s.otps[otp.UserID]
	for i := range list {
		if !list[i].Consumed {
			list[i].Consumed = true
			list[i].ConsumedAt = otp.IssuedAt
		}
	}
	s.otps[otp.UserID] = append(list, otp)
	return nil
}

func (s *Store) LatestEmailOTP(_ context.Context, userID string) (store.EmailOTP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.otps[userID]
	if len(list) == 0 {
		return store.EmailOTP{}, store.ErrNotFound
	}
	return list[len(list)-1], nil
}

func (s *Store) ConsumeEmailOTP(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, list := range s.otps {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			if list[i].Consumed {
				return false, nil
			}
			list[i].Consumed = true
			list[i].ConsumedAt = at
			s.otps[userID] = list
			return true, nil
		}
	}
	return false, store.ErrNotFound
}

func (s *Store) ReplaceBackupCodes(_ context.Context, userID string, hashes []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[userID]; !ok {
		return store.ErrNotFound
	}

	codes := s.backups[userID]
	for i := range codes {
		if codes[i].Live() {
			codes[i].RevokedAt = at
		}
	}
	for _, h := range hashes {
		codes = append(codes, store.BackupCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  h,
			CreatedAt: at,
		})
	}
	s.backups[userID] = codes
	return nil
}

func (s *Store) ConsumeBackupCode(_ context.Context, userID, hash string, at time.Time) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.backups[userID]
	matched := false
	remaining := 0
	for i := range codes {
		if !codes[i].Live() {
			continue
		}
		if !matched && codes[i].CodeHash == hash {
			codes[i].Used = true
			codes[i].UsedAt = at
			matched = true
			continue
		}
		remaining++
	}
	return remaining, matched, nil
}

// BackupCodeHistory returns every code row of the user, revoked and used
// ones included, oldest first.
func (s *Store) BackupCodeHistory(userID string) []store.BackupCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.BackupCode(nil), s.backups[userID]...)
}

func (s *Store) CountBackupCodes(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.backups[userID] {
		if c.Live() {
			n++
		}
	}
	return n, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyAccount(acc store.Account) store.Account {
	acc.TOTPSecret = cloneBytes(acc.TOTPSecret)
	return acc
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
