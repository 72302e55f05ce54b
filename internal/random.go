package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// OpaqueID is a 128-bit random identifier rendered as base64url.
type OpaqueID [16]byte

func NewOpaqueID() (OpaqueID, error) {
	var id OpaqueID
	_, err := rand.Read(id[:])
	return id, err
}

func (o OpaqueID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(o[:])
}

func ParseOpaqueID(s string) (OpaqueID, error) {
	var id OpaqueID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid opaque id size")
	}

	copy(id[:], raw)
	return id, nil
}

// NewNumericCode returns a uniformly random decimal string of the given length.
func NewNumericCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// RandomIndex returns a uniform index in [0, max).
func RandomIndex(max int) (int, error) {
	if max <= 0 {
		return 0, errors.New("invalid random range")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
