package goMFA

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goMFA/store"
)

func TestAuthenticateUnenrolledGetsVerifiedSession(t *testing.T) {
	env := newTestEnv(t)
	acc := env.addAccount("plain@example.com", RoleMerchant, nil)

	res := env.login("plain@example.com")
	if res.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected OutcomeAuthenticated, got %d", res.Outcome)
	}
	if res.Challenge != nil {
		t.Fatal("direct login must not issue a challenge")
	}
	if res.Session == nil || res.Session.AccountID != acc.ID {
		t.Fatalf("expected session for %s, got %+v", acc.ID, res.Session)
	}
	if !res.Session.MFAVerified || res.Session.SetupPending {
		t.Fatalf("expected verified non-setup session, got %+v", res.Session)
	}

	resolved, err := env.engine.ResolveSession(context.Background(), res.Session.ID)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if resolved.AccountID != acc.ID {
		t.Fatalf("resolved wrong account %s", resolved.AccountID)
	}
}

func TestAuthenticateEnrolledGetsChallenge(t *testing.T) {
	env := newTestEnv(t)
	acc := env.addAccount("totp@example.com", RoleMerchant, nil)
	env.enrollTOTP(acc.ID)

	res := env.login("TOTP@Example.com ")
	if res.Outcome != OutcomeChallengeIssued {
		t.Fatalf("expected OutcomeChallengeIssued, got %d", res.Outcome)
	}
	if res.Session != nil {
		t.Fatal("a challenge outcome must not carry a session")
	}
	ch := res.Challenge
	if ch.Token == "" || ch.UserID != acc.ID || ch.Email != acc.Email {
		t.Fatalf("unexpected challenge %+v", ch)
	}
	if !ch.Methods.TOTP || ch.Methods.Email {
		t.Fatalf("unexpected methods %+v", ch.Methods)
	}
	if !ch.Methods.Allows(MethodBackup) {
		t.Fatal("backup must be offered alongside TOTP")
	}
	if want := env.clock.Now().Add(env.engine.config.Challenge.TTL); ch.ExpiresAt.After(want) {
		t.Fatalf("challenge expires %v, after %v", ch.ExpiresAt, want)
	}
}

func TestAuthenticateRequiredAccountGetsSetupSession(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("setup@example.com", RoleMerchant, func(a *store.Account) {
		a.MFARequired = true
	})

	res := env.login("setup@example.com")
	if res.Outcome != OutcomeSetupRequired {
		t.Fatalf("expected OutcomeSetupRequired, got %d", res.Outcome)
	}
	if res.Session == nil || !res.Session.SetupPending || res.Session.MFAVerified {
		t.Fatalf("expected setup-only session, got %+v", res.Session)
	}
	lifetime := res.Session.ExpiresAt - res.Session.CreatedAt
	if lifetime != int64(env.engine.config.Session.SetupLifetime.Seconds()) {
		t.Fatalf("setup session lifetime %ds", lifetime)
	}
}

func TestAuthenticateRejectsWithoutDisclosure(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("known@example.com", RoleMerchant, nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", testPassword},
		{"wrong password", "known@example.com", "wrong-password"},
		{"empty email", "", testPassword},
		{"empty password", "known@example.com", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := env.engine.Authenticate(ctx, tc.email, tc.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if res != nil {
				t.Fatalf("expected nil result, got %+v", res)
			}
		})
	}
}

func TestAuthenticateRateLimitedAfterFailures(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Login.MaxAttempts = 3
	})
	env.addAccount("victim@example.com", RoleMerchant, nil)
	ctx := WithClientIP(context.Background(), "198.51.100.7")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Authenticate(ctx, "victim@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	if _, err := env.engine.Authenticate(ctx, "victim@example.com", testPassword); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited even with the right password, got %v", err)
	}
	if got := env.engine.metrics.Value(MetricLoginRateLimited); got != 1 {
		t.Fatalf("expected MetricLoginRateLimited=1, got %d", got)
	}
}

func TestAuthenticateSuccessResetsEmailCounter(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Login.MaxAttempts = 3
		c.Login.EnableIPThrottle = false
	})
	env.addAccount("reset@example.com", RoleMerchant, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Authenticate(ctx, "reset@example.com", "nope")
	}
	env.login("reset@example.com")
	for i := 0; i < 2; i++ {
		_, _ = env.engine.Authenticate(ctx, "reset@example.com", "nope")
	}
	env.login("reset@example.com")
}

func TestAuthenticateBackendOutage(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("down@example.com", RoleMerchant, nil)
	env.mr.Close()

	if _, err := env.engine.Authenticate(context.Background(), "down@example.com", testPassword); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
