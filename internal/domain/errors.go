package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores, services and delivery.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidation         = errors.New("validation failed")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrInvalidToken       = errors.New("invalid invite token")
	ErrRevoked            = errors.New("invite revoked")
	ErrAlreadyClaimed     = errors.New("invite already claimed")
	ErrNotOwner           = errors.New("invite owned by another principal")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("email already in use")
	// ErrSignUpRejected wraps account creation failures on the guest path. Guests see one
	// message for all of them, taken emails included.
	ErrSignUpRejected = errors.New("sign up rejected")
)

// ValidationError describes a malformed field. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid returns a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
