package clientcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/lycheelock/lycheelock/internal/errs"
)

const (
	NonceLen = 12 // GCM standard nonce
	TagLen   = 16
)

// VaultBlob is the sealed vault: ciphertext with its tag, and the nonce used.
type VaultBlob struct {
	Ciphertext []byte
	Nonce      []byte
}

// Encode returns base64 ciphertext and nonce for the persistence layer.
func (b VaultBlob) Encode() (ciphertext, nonce string) {
	return base64.StdEncoding.EncodeToString(b.Ciphertext), base64.StdEncoding.EncodeToString(b.Nonce)
}

// DecodeBlob parses base64 ciphertext and nonce. Malformed input is reported
// as a decryption failure.
func DecodeBlob(ciphertext, nonce string) (VaultBlob, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return VaultBlob{}, errs.ErrDecryptionFailed
	}
	iv, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return VaultBlob{}, errs.ErrDecryptionFailed
	}
	return VaultBlob{Ciphertext: ct, Nonce: iv}, nil
}

// Encrypt JSON-encodes payload and seals it with AES-256-GCM under a fresh random nonce.
func Encrypt(payload any, key *MasterKey) (VaultBlob, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return VaultBlob{}, fmt.Errorf("encode payload: %w", err)
	}
	defer memguard.WipeBytes(plain)

	nonce, err := Rand(NonceLen)
	if err != nil {
		return VaultBlob{}, fmt.Errorf("generate nonce: %w", err)
	}

	var ct []byte
	err = key.use(func(k []byte) error {
		aead, err := newGCM(k)
		if err != nil {
			return err
		}
		ct = aead.Seal(nil, nonce, plain, nil)
		return nil
	})
	if err != nil {
		return VaultBlob{}, err
	}
	return VaultBlob{Ciphertext: ct, Nonce: nonce}, nil
}

// Decrypt authenticates and opens blob, then decodes the JSON payload into out.
// Any failure other than a destroyed key is ErrDecryptionFailed. out is not
// touched when authentication fails. A payload that authenticates but does not
// fit out may leave it partially filled, so callers decode into a fresh value.
func Decrypt(blob VaultBlob, key *MasterKey, out any) error {
	if len(blob.Nonce) != NonceLen || len(blob.Ciphertext) < TagLen {
		return errs.ErrDecryptionFailed
	}

	var plain []byte
	err := key.use(func(k []byte) error {
		aead, err := newGCM(k)
		if err != nil {
			return errs.ErrDecryptionFailed
		}
		plain, err = aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
		if err != nil {
			return errs.ErrDecryptionFailed
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(plain)

	if err := json.Unmarshal(plain, out); err != nil {
		return errs.ErrDecryptionFailed
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
