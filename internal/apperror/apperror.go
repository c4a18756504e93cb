package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")

	// Password hashing policy: strict mode refuses to hash a value that is
	// already a bcrypt hash.
	ErrRehashAttempt = errors.New("bcrypt tried to hash another bcrypt hash")

	ErrMissingIdentity   = errors.New("id and email are required to issue a token")
	ErrMissingSigningKey = errors.New("signing key is required")
	ErrRandomness        = errors.New("random source failure")

	ErrTokenExpired     = errors.New("token expired")
	ErrMalformedToken   = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")

	ErrInvalidResetToken = errors.New("invalid reset token")
	ErrResetTokenExpired = errors.New("reset token expired")

	ErrPersistence = errors.New("persistence failure")
)

type AppError struct {
	Err     error  // kind sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying library error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause, so errors.Is matches either
// apperror.ErrTokenExpired or jwt.ErrTokenExpired on the same value.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Unauthorized returns an AppError for failed credential or token checks.
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func RehashAttempt(field string) *AppError {
	return &AppError{
		Err:     ErrRehashAttempt,
		Message: ErrRehashAttempt.Error(),
		Field:   field,
	}
}

func MissingIdentity(field string) *AppError {
	return &AppError{
		Err:     ErrMissingIdentity,
		Message: fmt.Sprintf("the %s column is required to issue a token", field),
		Field:   field,
	}
}

func Randomness(cause error) *AppError {
	return &AppError{
		Err:     ErrRandomness,
		Message: "reading random bytes",
		Cause:   cause,
	}
}

// Token wraps a verification failure from the signing library under one of
// ErrTokenExpired, ErrMalformedToken or ErrSignatureInvalid.
func Token(kind, cause error) *AppError {
	return &AppError{
		Err:     kind,
		Message: kind.Error(),
		Cause:   cause,
	}
}

func Persistence(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: op,
		Cause:   cause,
	}
}
