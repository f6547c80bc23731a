package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate limited")
	ErrDelivery     = errors.New("delivery failed")
	ErrUnavailable  = errors.New("unavailable")
)

// AppError carries a sentinel kind plus the message shown to API clients.
type AppError struct {
	Err     error  // sentinel kind
	Message string // client-facing message
	Field   string // optional request field that failed
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-supplied message.
func NotFoundMessage(message string) *AppError {
	return &AppError{Err: ErrNotFound, Message: message}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{Err: ErrConflict, Message: message}
}

func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message}
}

// Forbidden returns an AppError indicating the caller lacks permission.
func Forbidden(message string) *AppError {
	return &AppError{Err: ErrForbidden, Message: message}
}

func RateLimited(message string) *AppError {
	return &AppError{Err: ErrRateLimited, Message: message}
}

// Delivery wraps an outbound delivery failure. The cause stays reachable
// through errors.Unwrap chains for logging but is never shown to clients.
func Delivery(message string, cause error) error {
	return fmt.Errorf("%w: %w", &AppError{Err: ErrDelivery, Message: message}, cause)
}

func Unavailable(message string) *AppError {
	return &AppError{Err: ErrUnavailable, Message: message}
}
