// Package crypto provides the cryptographic primitives for keyp vaults.
//
// This package implements AES-256-GCM authenticated encryption under a key
// stretched from the master password with PBKDF2-HMAC-SHA256.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption (128-bit tag, verified on decrypt)
//   - PBKDF2-SHA256 key derivation with a 100,000 iteration floor
//   - Fresh 32-byte salt and 12-byte IV on every Encrypt call
//   - A single opaque error for every decryption failure
//   - Secure memory wiping for derived keys
//
// # Example Usage
//
//	// Encrypt data under a password
//	payload, err := crypto.Encrypt(plaintext, []byte("password"), crypto.DefaultIterations)
//
//	// Decrypt data
//	plaintext, err := crypto.Decrypt(payload, []byte("password"), crypto.DefaultIterations)
//
//	// Check a password without keeping the plaintext
//	ok := crypto.VerifyPassword(payload, []byte("password"), crypto.DefaultIterations)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm identifiers recorded alongside every payload.
const (
	// Algorithm is the AEAD cipher used for payloads.
	Algorithm = "aes-256-gcm"

	// KDF is the key-derivation function used to stretch passwords.
	KDF = "pbkdf2"
)

// Cipher and KDF parameters.
const (
	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM IVs in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of KDF salts in bytes.
	SaltLength = 32

	// TagLength is the length of the GCM authentication tag in bytes (128 bits).
	TagLength = 16

	// MinIterations is the lowest PBKDF2 iteration count accepted.
	MinIterations = 100000

	// DefaultIterations is used when no override is configured.
	DefaultIterations = MinIterations
)

// Sentinel errors returned by crypto functions.
var (
	// ErrWeakParameters indicates the iteration count is below MinIterations.
	ErrWeakParameters = errors.New("crypto: iterations must be at least 100000")

	// ErrInvalidSaltLength indicates a caller-supplied salt is not 32 bytes.
	ErrInvalidSaltLength = errors.New("crypto: invalid salt length, must be 32 bytes")

	// ErrDecryptionFailed covers wrong passwords, tampering and corruption alike.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, invalid password or corrupted data")
)

// Payload is one encrypted unit. All four fields are required to decrypt.
type Payload struct {
	Ciphertext []byte
	Tag        []byte
	IV         []byte
	Salt       []byte
}

// DeriveKey stretches password into a 256-bit key with PBKDF2-HMAC-SHA256.
//
// If salt is empty, 32 cryptographically random bytes are generated and
// returned. The same password, salt and iteration count always yield the
// same key.
//
// Returns ErrWeakParameters when iterations < MinIterations and
// ErrInvalidSaltLength when a non-empty salt is not SaltLength bytes.
func DeriveKey(password, salt []byte, iterations int) (key []byte, usedSalt []byte, err error) {
	if iterations < MinIterations {
		return nil, nil, ErrWeakParameters
	}

	if len(salt) == 0 {
		salt = make([]byte, SaltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
		}
	} else if len(salt) != SaltLength {
		return nil, nil, ErrInvalidSaltLength
	}

	key = pbkdf2.Key(password, salt, iterations, KeyLength, sha256.New)
	return key, salt, nil
}

// Encrypt encrypts plaintext under password using AES-256-GCM.
//
// Every call draws a new salt and a new IV, so encrypting the same plaintext
// twice with the same password never produces the same ciphertext. The GCM
// tag is returned separately from the ciphertext.
func Encrypt(plaintext, password []byte, iterations int) (*Payload, error) {
	key, salt, err := DeriveKey(password, nil, iterations)
	if err != nil {
		return nil, err
	}
	defer SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// Generate cryptographically secure random IV
	iv := make([]byte, NonceLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate iv: %w", err)
	}

	// GCM appends the tag; split it off for storage
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()

	return &Payload{
		Ciphertext: sealed[:tagStart],
		Tag:        sealed[tagStart:],
		IV:         iv,
		Salt:       salt,
	}, nil
}

// Decrypt re-derives the key from p.Salt and opens the payload.
//
// The authentication tag is verified before any plaintext is returned. All
// failures other than a below-floor iteration count collapse into
// ErrDecryptionFailed so callers cannot tell a wrong password from a
// corrupted payload.
func Decrypt(p *Payload, password []byte, iterations int) ([]byte, error) {
	if iterations < MinIterations {
		return nil, ErrWeakParameters
	}
	if p == nil || len(p.IV) != NonceLength || len(p.Tag) != TagLength || len(p.Salt) != SaltLength {
		return nil, ErrDecryptionFailed
	}

	key, _, err := DeriveKey(password, p.Salt, iterations)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	defer SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	sealed := make([]byte, 0, len(p.Ciphertext)+len(p.Tag))
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.Tag...)

	plaintext, err := gcm.Open(nil, p.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if plaintext == nil {
		plaintext = []byte{}
	}

	return plaintext, nil
}

// VerifyPassword reports whether password opens p. The plaintext is wiped
// immediately and never returned.
func VerifyPassword(p *Payload, password []byte, iterations int) bool {
	plaintext, err := Decrypt(p, password, iterations)
	if err != nil {
		return false
	}
	SecureWipe(plaintext)
	return true
}

// SecureWipe overwrites a byte slice with zeros in a way the compiler
// cannot optimise away. Used for derived keys and decrypted buffers.
func SecureWipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("crypto: invalid key length %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}
