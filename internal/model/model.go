// Package model defines domain entities used by the vault, services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// PasswordEntry is a single credential kept inside the encrypted vault.
// JSON names match the payload written by the web client.
type PasswordEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	URL       string    `json:"url"`
	Notes     string    `json:"notes"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EntryDraft is a new entry before id and timestamps are assigned.
type EntryDraft struct {
	Name     string
	Username string
	Password string
	URL      string
	Notes    string
	Category string
}

// EntryPatch lists fields to change; nil means keep.
type EntryPatch struct {
	Name     *string
	Username *string
	Password *string
	URL      *string
	Notes    *string
	Category *string
}

// Empty reports whether the patch changes nothing.
func (p EntryPatch) Empty() bool {
	return p.Name == nil && p.Username == nil && p.Password == nil &&
		p.URL == nil && p.Notes == nil && p.Category == nil
}

// Apply merges set fields into e. Timestamps are the caller's concern.
func (p EntryPatch) Apply(e *PasswordEntry) {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Username != nil {
		e.Username = *p.Username
	}
	if p.Password != nil {
		e.Password = *p.Password
	}
	if p.URL != nil {
		e.URL = *p.URL
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
}

// VaultRecord is the single remote row per account.
type VaultRecord struct {
	UserID        uuid.UUID `json:"user_id"`
	EncryptedData string    `json:"encrypted_data"` // base64 ciphertext
	IV            string    `json:"iv"`             // base64 nonce
	UpdatedAt     time.Time `json:"updated_at"`
}

// Empty reports whether the record carries no vault data yet.
func (r *VaultRecord) Empty() bool {
	return r == nil || r.EncryptedData == "" || r.IV == ""
}

// User represents an account. The vault key is never stored; only its salt.
type User struct {
	ID          uuid.UUID // PK
	Username    string    // unique
	PwdHash     []byte    // Argon2id(password, SaltAuth)
	SaltAuth    []byte    // per-user auth salt
	VaultSalt   []byte    // per-user salt for vault key derivation
	TotpSecret  string    // base32, empty until enrollment starts
	TotpEnabled bool      // set once enrollment is confirmed
	CreatedAt   time.Time
}

// Challenge proves a password check passed and a second factor is pending.
type Challenge struct {
	Token     string
	ExpiresAt time.Time
}
