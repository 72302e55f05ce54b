package goMFA

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goMFA/password"
	"github.com/MrEthical07/goMFA/store"
	"github.com/MrEthical07/goMFA/store/memory"
)

const testPassword = "correct-horse-battery-staple"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

// newTestClock starts at wall time so Redis TTLs and session lifetimes stay
// consistent with the engine clock.
func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureMailer struct {
	mu   sync.Mutex
	sent []OTPMessage
	err  error
}

func (m *captureMailer) SendOTP(_ context.Context, msg OTPMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no email code was sent")
	}
	return m.sent[len(m.sent)-1].Code
}

func (m *captureMailer) failWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testHasherConfig() password.Config {
	return password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ChallengeToken.SigningMethod = "hs256"
	cfg.ChallengeToken.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.ChallengeToken.PublicKey = nil
	cfg.Secrets.MasterKey = []byte(strings.Repeat("m", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

type testEnv struct {
	t      *testing.T
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	store  *memory.Store
	mailer *captureMailer
	clock  *testClock
	hasher *password.Hasher
	sink   AuditSink
}

type envOption func(*Config)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	return newTestEnvWithSink(t, nil, opts...)
}

func newTestEnvWithSink(t *testing.T, sink AuditSink, opts ...envOption) *testEnv {
	t.Helper()

	cfg := testConfig()
	if sink != nil {
		cfg.Audit.Enabled = true
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mr, rdb := newTestRedis(t)
	st := memory.New()
	mailer := &captureMailer{}
	clock := newTestClock()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(st).
		WithMailer(mailer).
		WithClock(clock.Now)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	hasher, err := password.NewHasher(testHasherConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	env := &testEnv{
		t:      t,
		engine: engine,
		mr:     mr,
		rdb:    rdb,
		store:  st,
		mailer: mailer,
		clock:  clock,
		hasher: hasher,
		sink:   sink,
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// addAccount seeds an account with testPassword. mutate may set flags before
// the insert.
func (env *testEnv) addAccount(email string, role Role, mutate func(*store.Account)) Account {
	env.t.Helper()

	hash, err := env.hasher.Hash(testPassword)
	if err != nil {
		env.t.Fatalf("Hash failed: %v", err)
	}
	acc := store.Account{Email: email, PasswordHash: hash, Role: role}
	if mutate != nil {
		mutate(&acc)
	}
	acc, err = env.store.AddAccount(acc)
	if err != nil {
		env.t.Fatalf("AddAccount failed: %v", err)
	}
	return acc
}

// enrollTOTP enables TOTP for userID with a fixed secret and returns the raw
// key for computing codes.
func (env *testEnv) enrollTOTP(userID string) []byte {
	env.t.Helper()

	raw := []byte("12345678901234567890")
	sealed, err := env.engine.totpBox.Seal(raw, userID)
	if err != nil {
		env.t.Fatalf("Seal failed: %v", err)
	}
	if err := env.store.EnableTOTP(context.Background(), userID, sealed); err != nil {
		env.t.Fatalf("EnableTOTP failed: %v", err)
	}
	return raw
}

func (env *testEnv) enableEmail(userID string) {
	env.t.Helper()
	if err := env.store.EnableEmailMFA(context.Background(), userID); err != nil {
		env.t.Fatalf("EnableEmailMFA failed: %v", err)
	}
}

// totpCode computes the code for the current step of the engine clock.
func (env *testEnv) totpCode(raw []byte) string {
	env.t.Helper()
	return totpCodeAt(env.t, raw, env.clock.Now(), env.engine.config.TOTP)
}

func totpCodeAt(t *testing.T, raw []byte, at time.Time, cfg TOTPConfig) string {
	t.Helper()
	v, err := newTOTPValidator(cfg)
	if err != nil {
		t.Fatalf("newTOTPValidator failed: %v", err)
	}
	return v.CodeAt(raw, v.Step(at))
}

func decodeSecret(t *testing.T, encoded string) []byte {
	t.Helper()
	raw, err := totpEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	return raw
}

// login authenticates with testPassword and fails the test on error.
func (env *testEnv) login(email string) *AuthResult {
	env.t.Helper()
	res, err := env.engine.Authenticate(context.Background(), email, testPassword)
	if err != nil {
		env.t.Fatalf("Authenticate(%s) failed: %v", email, err)
	}
	return res
}

func (env *testEnv) challenge(email string) *Challenge {
	env.t.Helper()
	res := env.login(email)
	if res.Outcome != OutcomeChallengeIssued || res.Challenge == nil {
		env.t.Fatalf("expected challenge for %s, got outcome %d", email, res.Outcome)
	}
	return res.Challenge
}

func verificationCode(t *testing.T, err error) string {
	t.Helper()
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerificationError, got %T: %v", err, err)
	}
	return verr.Code()
}
