package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const envelopeVersionPrefix = "v1:"

// scrypt cost parameters. N=2^15 keeps a single unwrap under ~100ms on
// commodity hardware while remaining expensive for an offline attacker.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// WrappedKey is a private key encrypted at rest under a passphrase, with
// its own random salt. Shared or static salts are forbidden; Wrap always
// draws a fresh one.
type WrappedKey struct {
	Salt       []byte
	Ciphertext []byte // "v1:" + base64url(nonce || sealed)
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

func envelopeAAD(subject []byte) []byte {
	aad := make([]byte, 0, len(subject)+len("agent-private-key")+1)
	aad = append(aad, []byte("agent-private-key")...)
	aad = append(aad, 0)
	aad = append(aad, subject...)
	return aad
}

// WrapPrivateKey encrypts plaintext (the raw ed25519 private key) under a
// key derived from passphrase and a freshly generated salt. subject
// (typically the agent ID) is bound as additional authenticated data so
// a wrapped key cannot be silently reattached to a different agent.
func WrapPrivateKey(passphrase string, subject []byte, plaintext []byte) (*WrappedKey, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, envelopeAAD(subject))

	buf := make([]byte, 0, len(nonce)+len(sealed))
	buf = append(buf, nonce...)
	buf = append(buf, sealed...)

	return &WrappedKey{
		Salt:       salt,
		Ciphertext: []byte(envelopeVersionPrefix + base64.RawURLEncoding.EncodeToString(buf)),
	}, nil
}

// UnwrapPrivateKey reverses WrapPrivateKey. A wrong passphrase or a
// subject mismatch both surface as a generic decrypt failure (AEAD
// authentication failure), never distinguishing the two to an attacker.
func UnwrapPrivateKey(passphrase string, subject []byte, wrapped *WrappedKey) ([]byte, error) {
	encoded := strings.TrimPrefix(string(wrapped.Ciphertext), envelopeVersionPrefix)
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	key, err := deriveKey(passphrase, wrapped.Salt)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce := raw[:aead.NonceSize()]
	body := raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, envelopeAAD(subject))
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// MinPassphraseEntropyBits is the configured entropy floor; passphrases
// shorter than this many estimated bits (assuming ~4 bits/char for a
// mixed-character secret) are rejected.
const MinPassphraseEntropyBits = 48

// entropyBits is a conservative estimate, not a real entropy calculation:
// it assumes 4 bits per character, enough to reject trivially short or
// empty passphrases without pretending to analyze actual randomness.
func entropyBits(passphrase string) float64 {
	return float64(len(passphrase)) * 4
}
