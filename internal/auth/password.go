package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"examboard/pkg/interfaces"
)

// HashPassword produces a bcrypt hash suitable for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a candidate password against a stored hash.
// Mismatches return interfaces.ErrUnauthorized.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return interfaces.ErrUnauthorized
	}
	return nil
}
