// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values that wrap one of the sentinels below.
// Handlers map the sentinel to an HTTP status with errors.Is, so the service
// layer never needs to know about status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCapacityExhausted means the identifier generator could not find a free
	// number within its attempt budget. Callers may retry later.
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrNumberCollision means storage rejected an identifier that passed the
	// generator's pre-check (another writer took it first).
	ErrNumberCollision = errors.New("number collision")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
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

// AlreadyRegistered is a Conflict with a message fit for signup screens.
func AlreadyRegistered(field, value string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s %s is already registered, please log in", field, value),
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for bad credentials. The message stays generic so
// callers can't tell which half of the credential pair was wrong.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func CapacityExhausted(what string, attempts int) *AppError {
	return &AppError{
		Err:     ErrCapacityExhausted,
		Message: fmt.Sprintf("could not generate a unique %s after %d attempts, please retry", what, attempts),
	}
}

func NumberCollision(kind string, number int64) *AppError {
	return &AppError{
		Err:     ErrNumberCollision,
		Message: fmt.Sprintf("%s %d was taken concurrently, please retry", kind, number),
	}
}
