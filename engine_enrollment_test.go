package goMFA

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/store"
)

func setupSession(t *testing.T, env *testEnv, email string) (*Session, Account) {
	t.Helper()
	acc := env.addAccount(email, RoleMerchant, func(a *store.Account) {
		a.MFARequired = true
	})
	res := env.login(email)
	if res.Outcome != OutcomeSetupRequired {
		t.Fatalf("expected OutcomeSetupRequired, got %d", res.Outcome)
	}
	return res.Session, acc
}

func TestEnrollTOTPEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, acc := setupSession(t, env, "enroll@example.com")

	setup, err := env.engine.SetupTOTP(ctx, sess)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	if !strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/") || !strings.Contains(setup.ProvisioningURI, "secret="+setup.Secret) {
		t.Fatalf("unexpected provisioning URI %q", setup.ProvisioningURI)
	}
	state, err := env.engine.EnrollmentState(ctx, acc.ID)
	if err != nil || state != SetupPending {
		t.Fatalf("setup must not change the account, got %v %v", state, err)
	}

	raw := decodeSecret(t, setup.Secret)
	_, err = env.engine.ConfirmTOTP(ctx, sess, "000000")
	if code := verificationCode(t, err); code != "totp_invalid" {
		t.Fatalf("expected totp_invalid, got %s", code)
	}

	code := env.totpCode(raw)
	codes, err := env.engine.ConfirmTOTP(ctx, sess, code)
	if err != nil {
		t.Fatalf("ConfirmTOTP failed: %v", err)
	}
	if len(codes) != env.engine.config.BackupCodes.Count {
		t.Fatalf("expected %d backup codes, got %d", env.engine.config.BackupCodes.Count, len(codes))
	}
	if !sess.MFAVerified || sess.SetupPending {
		t.Fatalf("session not upgraded in place: %+v", sess)
	}

	resolved, err := env.engine.ResolveSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if !resolved.MFAVerified || resolved.SetupPending {
		t.Fatalf("stored session not upgraded: %+v", resolved)
	}
	if state, _ := env.engine.EnrollmentState(ctx, acc.ID); state != Enrolled {
		t.Fatalf("expected Enrolled, got %v", state)
	}

	stored, _ := env.store.GetAccountByID(ctx, acc.ID)
	if string(stored.TOTPSecret) == string(raw) {
		t.Fatal("TOTP secret stored unsealed")
	}

	ch := env.challenge("enroll@example.com")
	if _, err := env.engine.Verify(ctx, ch.Token, TOTPAttempt{Code: code}); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("confirming code must not be replayable at login, got %v", err)
	}
	if _, err := env.engine.Verify(ctx, ch.Token, BackupAttempt{Code: codes[0]}); err != nil {
		t.Fatalf("backup code from enrollment failed: %v", err)
	}
}

func TestConfirmTOTPWithoutSetup(t *testing.T) {
	env := newTestEnv(t)
	sess, _ := setupSession(t, env, "nosetup@example.com")

	if _, err := env.engine.ConfirmTOTP(context.Background(), sess, "123456"); !errors.Is(err, ErrSetupIncomplete) {
		t.Fatalf("expected ErrSetupIncomplete, got %v", err)
	}
}

func TestSetupTOTPReplacesPendingSecret(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _ := setupSession(t, env, "twice@example.com")

	first, err := env.engine.SetupTOTP(ctx, sess)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	second, err := env.engine.SetupTOTP(ctx, sess)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatal("expected a new secret")
	}

	stale := env.totpCode(decodeSecret(t, first.Secret))
	if stale != env.totpCode(decodeSecret(t, second.Secret)) {
		if _, err := env.engine.ConfirmTOTP(ctx, sess, stale); !errors.Is(err, ErrTOTPInvalid) {
			t.Fatalf("code of the replaced secret must fail, got %v", err)
		}
	}
	if _, err := env.engine.ConfirmTOTP(ctx, sess, env.totpCode(decodeSecret(t, second.Secret))); err != nil {
		t.Fatalf("ConfirmTOTP failed: %v", err)
	}
}

func TestPendingSecretExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _ := setupSession(t, env, "slow@example.com")

	setup, err := env.engine.SetupTOTP(ctx, sess)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	env.mr.FastForward(env.engine.config.TOTP.SetupTTL + time.Second)

	if _, err := env.engine.ConfirmTOTP(ctx, sess, env.totpCode(decodeSecret(t, setup.Secret))); !errors.Is(err, ErrSetupIncomplete) {
		t.Fatalf("expected ErrSetupIncomplete, got %v", err)
	}
}

func TestSetupEmailIssuesNoBackupCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, acc := setupSession(t, env, "emailsetup@example.com")

	if err := env.engine.SetupEmail(ctx, sess); err != nil {
		t.Fatalf("SetupEmail failed: %v", err)
	}
	if !sess.MFAVerified {
		t.Fatal("expected upgraded session")
	}
	n, err := env.engine.CountBackupCodes(ctx, acc.ID)
	if err != nil {
		t.Fatalf("CountBackupCodes failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("email enrollment must not issue backup codes, got %d", n)
	}

	ch := env.challenge("emailsetup@example.com")
	if !ch.Methods.Email || ch.Methods.TOTP || ch.Methods.Allows(MethodBackup) {
		t.Fatalf("unexpected methods %+v", ch.Methods)
	}
}

func TestSetupOperationsRequireSetupSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addAccount("free@example.com", RoleMerchant, nil)
	verified := env.login("free@example.com").Session

	if _, err := env.engine.SetupTOTP(ctx, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nil session: expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.engine.SetupTOTP(ctx, verified); !errors.Is(err, ErrForbidden) {
		t.Fatalf("verified session of an unenrolled account: expected ErrForbidden, got %v", err)
	}
	if err := env.engine.SetupEmail(ctx, verified); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	sess, _ := setupSession(t, env, "again@example.com")
	if err := env.engine.SetupEmail(ctx, sess); err != nil {
		t.Fatalf("SetupEmail failed: %v", err)
	}
	if err := env.engine.SetupEmail(ctx, sess); !errors.Is(err, ErrForbidden) {
		t.Fatalf("second enrollment: expected ErrForbidden, got %v", err)
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.addAccount("regen@example.com", RoleMerchant, nil)
	raw := env.enrollTOTP(acc.ID)

	old, err := env.engine.GenerateBackupCodes(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GenerateBackupCodes failed: %v", err)
	}
	ch := env.challenge("regen@example.com")
	res, err := env.engine.Verify(ctx, ch.Token, TOTPAttempt{Code: env.totpCode(raw)})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	env.clock.Advance(30 * time.Second)
	fresh, err := env.engine.RegenerateBackupCodes(ctx, res.Session, env.totpCode(raw))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(fresh) != len(old) {
		t.Fatalf("expected %d codes, got %d", len(old), len(fresh))
	}
	if _, err := env.engine.ConsumeBackupCode(ctx, acc.ID, old[0]); !errors.Is(err, ErrBackupCodeInvalid) {
		t.Fatalf("old code must be revoked, got %v", err)
	}

	if _, err := env.engine.RegenerateBackupCodes(ctx, res.Session, "000000"); !errors.Is(err, ErrTOTPInvalid) {
		t.Fatalf("expected ErrTOTPInvalid, got %v", err)
	}
}

func TestRegenerateBackupCodesRequiresTOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.addAccount("mailer@example.com", RoleMerchant, nil)
	env.enableEmail(acc.ID)

	ch := env.challenge("mailer@example.com")
	if _, err := env.engine.SelectMethod(ctx, ch.Token, MethodEmail); err != nil {
		t.Fatalf("SelectMethod failed: %v", err)
	}
	res, err := env.engine.Verify(ctx, ch.Token, EmailAttempt{OTP: env.mailer.lastCode(t)})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if _, err := env.engine.RegenerateBackupCodes(ctx, res.Session, "123456"); !errors.Is(err, ErrMethodUnavailable) {
		t.Fatalf("expected ErrMethodUnavailable, got %v", err)
	}
}

func TestResolveSessionDemotesWhenEnrollmentRequired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.addAccount("drift@example.com", RoleMerchant, nil)
	sess := env.login("drift@example.com").Session

	if err := env.store.SetMFARequired(acc.ID, true); err != nil {
		t.Fatalf("SetMFARequired failed: %v", err)
	}
	resolved, err := env.engine.ResolveSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if !resolved.SetupPending || resolved.MFAVerified {
		t.Fatalf("expected demoted session, got %+v", resolved)
	}
	if _, err := env.engine.SetupTOTP(ctx, resolved); err != nil {
		t.Fatalf("demoted session must reach setup, got %v", err)
	}
}

type failingBackupCodes struct {
	store.BackupCodes
}

func (failingBackupCodes) ReplaceBackupCodes(context.Context, string, []string, time.Time) error {
	return errors.New("write failed")
}

func TestConfirmTOTPLeavesAccountUnchangedWhenCodesFail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, acc := setupSession(t, env, "flaky@example.com")

	setup, err := env.engine.SetupTOTP(ctx, sess)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	raw := decodeSecret(t, setup.Secret)

	env.engine.backupCodes = failingBackupCodes{env.store}
	if _, err := env.engine.ConfirmTOTP(ctx, sess, env.totpCode(raw)); err == nil {
		t.Fatal("expected ConfirmTOTP to fail")
	}
	if state, _ := env.engine.EnrollmentState(ctx, acc.ID); state != SetupPending {
		t.Fatalf("TOTP must stay disabled, got %v", state)
	}
	if sess.MFAVerified || !sess.SetupPending {
		t.Fatalf("session upgraded despite failure: %+v", sess)
	}

	env.engine.backupCodes = env.store
	env.clock.Advance(time.Duration(env.engine.config.TOTP.Period) * time.Second)
	codes, err := env.engine.ConfirmTOTP(ctx, sess, env.totpCode(raw))
	if err != nil {
		t.Fatalf("retry with the same pending secret failed: %v", err)
	}
	if n, _ := env.engine.CountBackupCodes(ctx, acc.ID); n != len(codes) {
		t.Fatalf("expected %d live codes, got %d", len(codes), n)
	}
}

func TestConcurrentConfirmTOTPSingleBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, acc := setupSession(t, env, "racer@example.com")

	setup, err := env.engine.SetupTOTP(ctx, sess)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	code := env.totpCode(decodeSecret(t, setup.Secret))

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		batches [][]string
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		own := *sess
		go func(s *Session) {
			defer wg.Done()
			codes, err := env.engine.ConfirmTOTP(ctx, s, code)
			if err != nil {
				if !errors.Is(err, ErrSetupIncomplete) && !errors.Is(err, ErrForbidden) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			batches = append(batches, codes)
			mu.Unlock()
		}(&own)
	}
	wg.Wait()

	if len(batches) != 1 {
		t.Fatalf("expected exactly one confirmation to win, got %d", len(batches))
	}
	if n, _ := env.engine.CountBackupCodes(ctx, acc.ID); n != len(batches[0]) {
		t.Fatalf("expected %d live codes, got %d", len(batches[0]), n)
	}
	if _, err := env.engine.ConsumeBackupCode(ctx, acc.ID, batches[0][0]); err != nil {
		t.Fatalf("returned batch is not the live one: %v", err)
	}
}
