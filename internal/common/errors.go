// Package common defines shared constants and sentinel errors used across
// the onePass server layers. Callers should use errors.Is to match these
// values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("account with this email already exists")

	// Service-level errors (generic/internal flow control).
	ErrInternal           = errors.New("internal error")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")

	// Validation errors.
	ErrValidation = errors.New("validation error")
	ErrHashFormat = errors.New("malformed password hash")

	// Credential errors.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnverifiedAccount  = errors.New("email has not been verified yet")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken refines ErrInvalidToken, so errors.Is matches both.
	ErrExpiredToken = fmt.Errorf("%w: signature has expired", ErrInvalidToken)
)
