package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeAuthentication = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization  = "AUTHORIZATION_ERROR"
	ErrCodeIntegrity      = "INTEGRITY_ERROR"
	ErrCodeStorage        = "STORAGE_ERROR"
)

// Sentinel errors
var (
	ErrValidation     = errors.New("invalid input")
	ErrNotFound       = errors.New("record not found")
	ErrAuthentication = errors.New("wrong password or corrupted data")
	ErrAuthorization  = errors.New("insufficient role")
	ErrIntegrity      = errors.New("ciphertext integrity check failed")
)

// ValidationError describes rejected caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// Is reports ErrValidation as the category.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IntegrityError reports ciphertext that cannot be decrypted cleanly:
// a bad length or broken padding. Never surfaced to callers directly.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: %s", e.Reason)
}

// Is reports ErrIntegrity as the category.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// AccessError wraps a caller-facing failure of a vault operation.
type AccessError struct {
	Op       string
	RecordID string
	Err      error
}

func (e *AccessError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// Code maps an error to its structured error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return ErrCodeValidation
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrAuthentication):
		return ErrCodeAuthentication
	case errors.Is(err, ErrAuthorization):
		return ErrCodeAuthorization
	case errors.Is(err, ErrIntegrity):
		return ErrCodeIntegrity
	default:
		return ErrCodeStorage
	}
}
