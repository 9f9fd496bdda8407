// Package keyring remembers account passwords in the OS keyring.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "lycheelock"

// ErrNotFound is returned when nothing is stored for the account.
var ErrNotFound = keyring.ErrNotFound

// SavePassword stores a password for username.
func SavePassword(username, password string) error {
	return keyring.Set(serviceName, username, password)
}

// GetPassword retrieves the stored password for username.
func GetPassword(username string) (string, error) {
	return keyring.Get(serviceName, username)
}

// DeletePassword forgets the stored password. Missing entries are not an error.
func DeletePassword(username string) error {
	err := keyring.Delete(serviceName, username)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasPassword reports whether a password is stored for username.
func HasPassword(username string) bool {
	_, err := keyring.Get(serviceName, username)
	return err == nil
}
