package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor for stored credentials.
const Cost = bcrypt.DefaultCost

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

var (
	ErrPasswordEmpty   = errors.New("password is required")
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// ValidatePassword checks the shape constraints bcrypt imposes.
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrPasswordEmpty
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
// An empty stored hash never matches.
func CheckPassword(password, stored string) bool {
	if stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}
