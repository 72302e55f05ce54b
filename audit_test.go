package goMFA

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *captureSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *captureSink) snapshot() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) byType(eventType string) []AuditEvent {
	var out []AuditEvent
	for _, e := range s.snapshot() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestAuditLoginAndChallengeEvents(t *testing.T) {
	sink := &captureSink{}
	env := newTestEnvWithSink(t, sink, func(c *Config) {
		c.Audit.DropIfFull = false
	})
	acc := env.addAccount("audited@example.com", RoleMerchant, nil)
	raw := env.enrollTOTP(acc.ID)

	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.9"), "test-agent")
	_, _ = env.engine.Authenticate(ctx, "audited@example.com", "wrong")
	res, err := env.engine.Authenticate(ctx, "audited@example.com", testPassword)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	_, _ = env.engine.Verify(ctx, res.Challenge.Token, TOTPAttempt{Code: "000000"})
	if _, err := env.engine.Verify(ctx, res.Challenge.Token, TOTPAttempt{Code: env.totpCode(raw)}); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	env.engine.Close()

	failures := sink.byType(auditEventLoginFailure)
	if len(failures) != 1 || failures[0].Error != string(auditErrInvalidCredentials) {
		t.Fatalf("unexpected login failures %+v", failures)
	}
	if failures[0].IP != "203.0.113.9" || failures[0].UserAgent != "test-agent" {
		t.Fatalf("client metadata missing: %+v", failures[0])
	}

	mfaFail := sink.byType(auditEventMFAFailure)
	if len(mfaFail) != 1 || mfaFail[0].Error != string(auditErrTOTPInvalid) || mfaFail[0].Method != string(MethodTOTP) {
		t.Fatalf("unexpected mfa failures %+v", mfaFail)
	}
	if len(sink.byType(auditEventChallengeIssued)) != 1 {
		t.Fatal("expected one challenge_issued event")
	}
	ok := sink.byType(auditEventMFASuccess)
	if len(ok) != 1 || ok[0].SessionID == "" || ok[0].ActorID != acc.ID {
		t.Fatalf("unexpected mfa success %+v", ok)
	}
}

func TestAuditNeverCarriesPlaintextCodes(t *testing.T) {
	sink := &captureSink{}
	env := newTestEnvWithSink(t, sink, func(c *Config) {
		c.Audit.DropIfFull = false
	})
	acc := env.addAccount("secret@example.com", RoleMerchant, nil)
	ctx := context.Background()

	codes, err := env.engine.GenerateBackupCodes(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GenerateBackupCodes failed: %v", err)
	}
	if _, err := env.engine.IssueEmailOTP(ctx, acc.ID); err != nil {
		t.Fatalf("IssueEmailOTP failed: %v", err)
	}
	otp := env.mailer.lastCode(t)
	env.engine.Close()

	secrets := append([]string{otp}, codes...)
	for _, e := range sink.snapshot() {
		for _, v := range e.Metadata {
			for _, s := range secrets {
				if strings.Contains(v, s) {
					t.Fatalf("event %s leaks a code in metadata", e.EventType)
				}
			}
		}
	}
}

func TestAuditImpersonatedAccessAttributesBoth(t *testing.T) {
	sink := &captureSink{}
	env := newTestEnvWithSink(t, sink, func(c *Config) {
		c.Audit.DropIfFull = false
	})
	ctx := context.Background()
	sess, admin := adminSession(t, env)
	target := env.addAccount("watched@example.com", RoleMerchant, nil)

	imp, err := env.engine.Impersonate(ctx, sess.ID, target.ID)
	if err != nil {
		t.Fatalf("Impersonate failed: %v", err)
	}
	env.engine.RecordAccess(ctx, imp, "orders")
	env.engine.Close()

	access := sink.byType(auditEventResourceAccess)
	if len(access) != 1 {
		t.Fatalf("expected one access event, got %d", len(access))
	}
	ev := access[0]
	if ev.ActorID != admin.ID || ev.SubjectID != target.ID || !ev.Impersonated() {
		t.Fatalf("unexpected attribution %+v", ev)
	}
	if ev.Metadata["resource"] != "orders" {
		t.Fatalf("unexpected metadata %v", ev.Metadata)
	}
}

func TestAuditDropsWhenBufferFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	env := newTestEnvWithSink(t, sink, func(c *Config) {
		c.Audit.BufferSize = 1
		c.Audit.DropIfFull = true
	})
	sess := &Session{ID: "s1", AccountID: "u1"}

	for i := 0; i < 10; i++ {
		env.engine.RecordAccess(context.Background(), sess, "r")
	}
	if env.engine.AuditDropped() == 0 {
		t.Fatal("expected dropped events")
	}
	close(sink.gate)
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrInvalidCredentials, auditErrInvalidCredentials},
		{ErrLoginRateLimited, auditErrRateLimited},
		{errors.Join(ErrTOTPInvalid, ErrVerificationLocked), auditErrLocked},
		{errors.Join(ErrOTPInvalid, ErrAttemptsExceeded), auditErrAttemptsExceeded},
		{ErrOTPExpired, auditErrOTPExpired},
		{ErrBackupCodeInvalid, auditErrBackupCodeInvalid},
		{ErrForbidden, auditErrForbidden},
		{ErrBackendUnavailable, auditErrUnavailable},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
