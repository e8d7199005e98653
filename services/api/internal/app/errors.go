package app

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input. Prefer returning a *ValidationError so the
	// caller gets a user-facing message.
	ErrValidation = errors.New("invalid request")

	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")

	ErrDuplicateIdentity = errors.New("Email already exists")

	// ErrInvalidCredentials is the single answer for unknown email, missing
	// password hash and wrong password, so accounts cannot be enumerated.
	ErrInvalidCredentials = errors.New("Invalid credentials")

	// ErrStorageUnavailable wraps persistence failures. Its details never
	// reach clients.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrPhotosDisabled = errors.New("photo storage is not configured")
)

// ValidationError carries a message safe to show to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
