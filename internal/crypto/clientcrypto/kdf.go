// Package clientcrypto contains client-side primitives for vault key derivation and AEAD.
//
// The vault key is derived from the master password and a per-account salt
// and never leaves process memory. Vault contents are sealed with
// AES-256-GCM under a fresh 96-bit random nonce per encryption.
package clientcrypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// Params
const (
	KeyLen  = 32 // AES-256
	SaltLen = 16

	AlgPBKDF2SHA256 = "pbkdf2-sha256"
	AlgArgon2id     = "argon2id"

	// MinPBKDF2Iterations is also the default, so vaults written by the web client stay readable.
	MinPBKDF2Iterations = 100_000

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

var (
	ErrInvalidSalt   = errors.New("invalid salt")
	ErrEmptyPassword = errors.New("empty password")
	ErrWeakParams    = errors.New("weak or unknown kdf parameters")
)

// KDFParams selects the password hardening function.
type KDFParams struct {
	Algorithm  string
	Iterations int // PBKDF2 only

	ArgonTime    uint32
	ArgonMemory  uint32 // KiB
	ArgonThreads uint8
}

// DefaultKDF returns PBKDF2-HMAC-SHA256 with 100k iterations.
func DefaultKDF() KDFParams {
	return KDFParams{Algorithm: AlgPBKDF2SHA256, Iterations: MinPBKDF2Iterations}
}

// Argon2idKDF returns Argon2id with the same cost as the server-side password hash.
func Argon2idKDF() KDFParams {
	return KDFParams{
		Algorithm:    AlgArgon2id,
		ArgonTime:    argonTime,
		ArgonMemory:  argonMemory,
		ArgonThreads: argonThreads,
	}
}

// Validate rejects parameter sets that would yield a weaker key.
func (p KDFParams) Validate() error {
	switch p.Algorithm {
	case AlgPBKDF2SHA256:
		if p.Iterations < MinPBKDF2Iterations {
			return fmt.Errorf("%w: %d iterations", ErrWeakParams, p.Iterations)
		}
	case AlgArgon2id:
		if p.ArgonTime == 0 || p.ArgonMemory < 8*1024 || p.ArgonThreads == 0 {
			return fmt.Errorf("%w: argon2id t=%d m=%d p=%d", ErrWeakParams, p.ArgonTime, p.ArgonMemory, p.ArgonThreads)
		}
	default:
		return fmt.Errorf("%w: algorithm %q", ErrWeakParams, p.Algorithm)
	}
	return nil
}

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// GenerateSalt returns a fresh vault salt.
func GenerateSalt() ([]byte, error) {
	return Rand(SaltLen)
}

// DeriveKey derives the vault master key from password and salt.
// Same inputs always give the same key. The intermediate buffer is wiped.
func DeriveKey(ctx context.Context, password string, salt []byte, p KDFParams) (*MasterKey, error) {
	if len(salt) < SaltLen {
		return nil, ErrInvalidSalt
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw := []byte(password)
	defer memguard.WipeBytes(pw)

	var raw []byte
	switch p.Algorithm {
	case AlgArgon2id:
		raw = argon2.IDKey(pw, salt, p.ArgonTime, p.ArgonMemory, p.ArgonThreads, KeyLen)
	default:
		raw = pbkdf2.Key(pw, salt, p.Iterations, KeyLen, sha256.New)
	}

	if err := ctx.Err(); err != nil {
		memguard.WipeBytes(raw)
		return nil, err
	}
	return NewMasterKey(raw)
}
