package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrorCode classifies a ServiceError for transport-level mapping.
type ErrorCode string

const (
	ErrorInvalid         ErrorCode = "invalid"
	ErrorForbidden       ErrorCode = "forbidden"
	ErrorNotFound        ErrorCode = "not_found"
	ErrorConflict        ErrorCode = "conflict"
	ErrorUnauthorized    ErrorCode = "unauthorized"
	ErrorTooManyRequests ErrorCode = "too_many_requests"
)

// ServiceError is a user-facing failure with a stable code. Anything else
// returned from a service is an internal error.
type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewTooManyRequestsError(msg string) error {
	return &ServiceError{Code: ErrorTooManyRequests, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Store-level sentinels. Store implementations return these so services can
// translate constraint violations without knowing the backend.
var (
	// ErrDuplicateResponse signals the unique (user, schedule, occurrence)
	// response constraint.
	ErrDuplicateResponse = errors.New("duplicate response record")
	// ErrDuplicateReminder signals the unique reminder idempotency key.
	ErrDuplicateReminder = errors.New("duplicate reminder log")
	// ErrDuplicateEnrollment signals the unique (user, cohort) enrollment
	// constraint.
	ErrDuplicateEnrollment = errors.New("duplicate enrollment")
	// ErrEmailTaken signals the unique user email constraint.
	ErrEmailTaken = errors.New("email already registered")
)

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
