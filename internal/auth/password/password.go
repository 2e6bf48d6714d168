// Package password hashes and verifies local-provider passwords.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the fixed bcrypt cost factor for all stored hashes.
const Cost = 10

// ErrNoPasswordSet means a password-provider user record has no stored hash.
// That is a corrupted record, not a failed login; callers map it to an
// internal error rather than unauthorized.
var ErrNoPasswordSet = errors.New("user record has no password hash")

// Hash derives a bcrypt hash from a plaintext password.
func Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("password too long: %w", err)
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether supplied matches the stored hash. A mismatch
// returns (false, nil); only integrity problems return an error.
func Verify(storedHash *string, supplied string) (bool, error) {
	if storedHash == nil || *storedHash == "" {
		return false, ErrNoPasswordSet
	}
	err := bcrypt.CompareHashAndPassword([]byte(*storedHash), []byte(supplied))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		// Not a valid bcrypt hash at all: corrupted record.
		return false, fmt.Errorf("stored hash unreadable: %w", err)
	}
	return true, nil
}
