// Package secret seals small secrets (TOTP shared keys) for storage at rest.
//
// A Box derives a purpose-bound AES-256 key from a master key with HKDF-SHA256
// and seals values with AES-GCM. The sealed layout is version || nonce ||
// ciphertext. The account ID is bound as additional data so a sealed secret
// cannot be moved to another account row.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	sealVersion1 = 1
	keySize      = 32
	minMasterKey = 32
)

var (
	ErrMasterKeyTooShort = errors.New("secret: master key must be at least 32 bytes")
	ErrSealedInvalid     = errors.New("secret: sealed value invalid")
)

type Box struct {
	aead cipher.AEAD
}

// NewBox derives the sealing key for purpose from masterKey.
func NewBox(masterKey []byte, purpose string) (*Box, error) {
	if len(masterKey) < minMasterKey {
		return nil, ErrMasterKeyTooShort
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

func (b *Box) Seal(plaintext []byte, boundTo string) ([]byte, error) {
	nonceSize := b.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+b.aead.Overhead())
	out[0] = sealVersion1
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}
	return b.aead.Seal(out, out[1:], plaintext, []byte(boundTo)), nil
}

func (b *Box) Open(sealed []byte, boundTo string) ([]byte, error) {
	nonceSize := b.aead.NonceSize()
	if len(sealed) < 1+nonceSize+b.aead.Overhead() || sealed[0] != sealVersion1 {
		return nil, ErrSealedInvalid
	}
	nonce := sealed[1 : 1+nonceSize]
	plaintext, err := b.aead.Open(nil, nonce, sealed[1+nonceSize:], []byte(boundTo))
	if err != nil {
		return nil, ErrSealedInvalid
	}
	return plaintext, nil
}

// DeriveKey expands masterKey into n bytes bound to purpose. It is used for
// keys that are not AEAD keys, such as the email code pepper.
func DeriveKey(masterKey []byte, purpose string, n int) ([]byte, error) {
	if len(masterKey) < minMasterKey {
		return nil, ErrMasterKeyTooShort
	}
	out := make([]byte, n)
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(purpose))
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, err
	}
	return out, nil
}
