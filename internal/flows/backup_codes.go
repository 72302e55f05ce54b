package flows

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/MrEthical07/goMFA/internal"
)

// BackupCodeAlphabet avoids look-alike characters (0/O, 1/I).
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const backupCodeRawLength = 8

type BackupCodeMetrics struct {
	BackupCodeUsed        int
	BackupCodeFailed      int
	BackupCodeRegenerated int
}

type BackupCodeEvents struct {
	BackupCodesGenerated string
	BackupCodeUsed       string
	BackupCodeFailed     string
}

type BackupCodeErrors struct {
	EngineNotReady        error
	BackupCodeInvalid     error
	BackupCodeUnavailable error
}

type BackupCodeDeps struct {
	Count int

	Now         func() time.Time
	RandomIndex func(int) (int, error)

	ReplaceBackupCodes func(context.Context, string, []string, time.Time) error
	ConsumeBackupCode  func(context.Context, string, string, time.Time) (int, bool, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics BackupCodeMetrics
	Events  BackupCodeEvents
	Errors  BackupCodeErrors
}

// RunGenerateBackupCodes mints a fresh batch, replaces every prior code of the
// user and returns the plaintext codes. They are never retrievable again.
func RunGenerateBackupCodes(ctx context.Context, userID string, deps BackupCodeDeps) ([]string, error) {
	normalizeBackupCodeDeps(&deps)

	if deps.ReplaceBackupCodes == nil || deps.Count <= 0 {
		return nil, deps.Errors.EngineNotReady
	}

	hashes := make([]string, 0, deps.Count)
	codes := make([]string, 0, deps.Count)
	for i := 0; i < deps.Count; i++ {
		raw, err := NewBackupCode(deps.RandomIndex)
		if err != nil {
			return nil, deps.Errors.BackupCodeUnavailable
		}
		hashes = append(hashes, BackupCodeHash(userID, raw))
		codes = append(codes, FormatBackupCode(raw))
	}

	if err := deps.ReplaceBackupCodes(ctx, userID, hashes, deps.Now()); err != nil {
		return nil, deps.Errors.BackupCodeUnavailable
	}

	deps.MetricInc(deps.Metrics.BackupCodeRegenerated)
	deps.EmitAudit(ctx, deps.Events.BackupCodesGenerated, true, userID, nil, func() map[string]string {
		return map[string]string{"count": itoa(deps.Count)}
	})
	return codes, nil
}

// RunConsumeBackupCode burns the matching unused code and returns how many
// live codes remain.
func RunConsumeBackupCode(ctx context.Context, userID, input string, deps BackupCodeDeps) (int, error) {
	normalizeBackupCodeDeps(&deps)

	if deps.ConsumeBackupCode == nil {
		return 0, deps.Errors.EngineNotReady
	}

	canonical := NormalizeBackupCode(input)
	if len(canonical) != backupCodeRawLength {
		deps.MetricInc(deps.Metrics.BackupCodeFailed)
		deps.EmitAudit(ctx, deps.Events.BackupCodeFailed, false, userID, deps.Errors.BackupCodeInvalid, nil)
		return 0, deps.Errors.BackupCodeInvalid
	}

	remaining, ok, err := deps.ConsumeBackupCode(ctx, userID, BackupCodeHash(userID, canonical), deps.Now())
	if err != nil {
		return 0, deps.Errors.BackupCodeUnavailable
	}
	if !ok {
		deps.MetricInc(deps.Metrics.BackupCodeFailed)
		deps.EmitAudit(ctx, deps.Events.BackupCodeFailed, false, userID, deps.Errors.BackupCodeInvalid, nil)
		return 0, deps.Errors.BackupCodeInvalid
	}

	deps.MetricInc(deps.Metrics.BackupCodeUsed)
	deps.EmitAudit(ctx, deps.Events.BackupCodeUsed, true, userID, nil, func() map[string]string {
		return map[string]string{"remaining": itoa(remaining)}
	})
	return remaining, nil
}

func NewBackupCode(randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = internal.RandomIndex
	}
	var b strings.Builder
	b.Grow(backupCodeRawLength)
	for i := 0; i < backupCodeRawLength; i++ {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n])
	}
	return b.String(), nil
}

// FormatBackupCode renders an 8-character code as XXXX-XXXX.
func FormatBackupCode(code string) string {
	if len(code) != backupCodeRawLength {
		return code
	}
	return code[:4] + "-" + code[4:]
}

// NormalizeBackupCode uppercases the input, drops every character outside
// [A-Z0-9-] and then the separators, yielding the hashed form.
func NormalizeBackupCode(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.ToUpper(input) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func BackupCodeHash(userID, canonicalCode string) string {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalizeBackupCodeDeps(deps *BackupCodeDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RandomIndex == nil {
		deps.RandomIndex = internal.RandomIndex
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
}
