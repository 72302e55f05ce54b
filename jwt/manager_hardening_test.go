package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newTestManager(t *testing.T) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "gomfa",
		Audience:      "login",
		Leeway:        5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv
}

func TestIssueAndParseChallenge(t *testing.T) {
	m, _ := newTestManager(t)

	token, err := m.IssueChallenge("c-1", "u-1", time.Now().Add(5*time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.ParseChallenge(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ChallengeID() != "c-1" || claims.UserID() != "u-1" || claims.Type != ChallengeTokenType {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseChallengeRejectsWrongAlgorithm(t *testing.T) {
	m, _ := newTestManager(t)

	claims := ChallengeClaims{Type: ChallengeTokenType, RegisteredClaims: gjwt.RegisteredClaims{
		ID: "c-1", Subject: "u-1", Issuer: "gomfa", Audience: gjwt.ClaimStrings{"login"},
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret-1234"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseChallenge(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseChallengeRejectsOtherTokenTypes(t *testing.T) {
	m, priv := newTestManager(t)

	claims := ChallengeClaims{Type: "access", RegisteredClaims: gjwt.RegisteredClaims{
		ID: "c-1", Subject: "u-1", Issuer: "gomfa", Audience: gjwt.ClaimStrings{"login"},
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if _, err := m.ParseChallenge(token); !errors.Is(err, ErrTokenWrongType) {
		t.Fatalf("expected ErrTokenWrongType, got %v", err)
	}
}

func TestParseChallengeExpiryAndLeeway(t *testing.T) {
	m, _ := newTestManager(t)
	base := time.Now()
	m.now = func() time.Time { return base }

	token, err := m.IssueChallenge("c-1", "u-1", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	m.now = func() time.Time { return base.Add(time.Minute + 3*time.Second) }
	if _, err := m.ParseChallenge(token); err != nil {
		t.Fatalf("expected token within leeway to parse: %v", err)
	}

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := m.ParseChallenge(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseChallengeWrongIssuer(t *testing.T) {
	m, priv := newTestManager(t)
	claims := ChallengeClaims{Type: ChallengeTokenType, RegisteredClaims: gjwt.RegisteredClaims{
		ID: "c-1", Subject: "u-1", Issuer: "someone-else", Audience: gjwt.ClaimStrings{"login"},
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if _, err := m.ParseChallenge(token); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
}

func TestParseChallengeUnknownKid(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	good, err := m.IssueChallenge("c-1", "u-1", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.ParseChallenge(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	claims := ChallengeClaims{Type: ChallengeTokenType, RegisteredClaims: gjwt.RegisteredClaims{
		ID: "c-1", Subject: "u-1",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	bad, _ := tok.SignedString(priv1)
	if _, err := m.ParseChallenge(bad); err == nil {
		t.Fatal("expected unknown kid failure")
	}
}

func TestNewManagerRejectsShortHMACKey(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
}
