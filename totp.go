package goMFA

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// totpKeySize is the RFC 4226 recommended shared secret length.
const totpKeySize = 20

var (
	totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

	errTOTPEmptyKey  = errors.New("totp: empty shared secret")
	errTOTPAlgorithm = errors.New("totp: unsupported algorithm")
)

// totpKey is a freshly generated shared secret in both raw and
// authenticator-app (unpadded base32) form.
type totpKey struct {
	Raw     []byte
	Encoded string
}

// totpValidator computes and checks RFC 6238 codes for one configuration.
type totpValidator struct {
	issuer    string
	algorithm string
	digits    int
	modulus   uint32
	period    int64
	skew      int64
	newHash   func() hash.Hash
}

func newTOTPValidator(cfg TOTPConfig) (*totpValidator, error) {
	algorithm := strings.ToUpper(cfg.Algorithm)
	if algorithm == "" {
		algorithm = "SHA1"
	}
	newHash, err := totpHash(algorithm)
	if err != nil {
		return nil, err
	}
	if cfg.Period <= 0 || cfg.Digits <= 0 || cfg.Digits > 9 {
		return nil, errors.New("totp: invalid period or digits")
	}

	modulus := uint32(1)
	for i := 0; i < cfg.Digits; i++ {
		modulus *= 10
	}
	return &totpValidator{
		issuer:    cfg.Issuer,
		algorithm: algorithm,
		digits:    cfg.Digits,
		modulus:   modulus,
		period:    int64(cfg.Period),
		skew:      int64(cfg.Skew),
		newHash:   newHash,
	}, nil
}

func totpHash(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	}
	return nil, errTOTPAlgorithm
}

// NewKey draws a new shared secret from crypto/rand.
func (v *totpValidator) NewKey() (totpKey, error) {
	if v == nil {
		return totpKey{}, ErrEngineNotReady
	}
	raw := make([]byte, totpKeySize)
	if _, err := rand.Read(raw); err != nil {
		return totpKey{}, err
	}
	return totpKey{Raw: raw, Encoded: totpEncoding.EncodeToString(raw)}, nil
}

// ProvisioningURI renders the otpauth:// URI understood by authenticator
// apps, labelled "issuer:account".
func (v *totpValidator) ProvisioningURI(account, encodedKey string) string {
	q := url.Values{}
	q.Set("secret", encodedKey)
	q.Set("issuer", v.issuer)
	q.Set("algorithm", v.algorithm)
	q.Set("digits", strconv.Itoa(v.digits))
	q.Set("period", strconv.FormatInt(v.period, 10))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + v.issuer + ":" + account,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Step returns the time-step counter containing at.
func (v *totpValidator) Step(at time.Time) int64 {
	return at.Unix() / v.period
}

// CodeAt computes the code for a single counter value (RFC 4226 dynamic
// truncation, zero padded).
func (v *totpValidator) CodeAt(key []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(v.newHash, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := strconv.FormatUint(uint64(truncated%v.modulus), 10)
	if pad := v.digits - len(code); pad > 0 {
		code = strings.Repeat("0", pad) + code
	}
	return code
}

// Verify checks code against the current step and up to skew steps either
// side, nearest step first. It reports the matched counter so callers can
// refuse to accept the same step twice. Malformed codes are a plain
// mismatch, not an error.
func (v *totpValidator) Verify(key []byte, code string, at time.Time) (bool, int64, error) {
	if v == nil {
		return false, 0, ErrEngineNotReady
	}
	if len(key) == 0 {
		return false, 0, errTOTPEmptyKey
	}
	code = strings.TrimSpace(code)
	if len(code) != v.digits || !allDigits(code) {
		return false, 0, nil
	}

	current := v.Step(at)
	for _, delta := range skewOrder(v.skew) {
		counter := current + delta
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(v.CodeAt(key, counter)), []byte(code)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

// skewOrder yields 0, -1, +1, -2, +2 ... up to skew.
func skewOrder(skew int64) []int64 {
	out := make([]int64, 0, 2*skew+1)
	out = append(out, 0)
	for d := int64(1); d <= skew; d++ {
		out = append(out, -d, d)
	}
	return out
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
