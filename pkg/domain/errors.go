package domain

import (
	"context"
	"errors"
	"fmt"
)

// Local identity errors
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrUserAlreadyExists      = errors.New("user already exists")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountLocked          = errors.New("account locked due to too many failed login attempts")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionExpired         = errors.New("session expired")
	ErrSessionRevoked         = errors.New("session revoked")
	ErrInvalidToken           = errors.New("invalid token")
	ErrResetTokenNotFound     = errors.New("reset token not found")
	ErrResetTokenExpired      = errors.New("reset token expired")
	ErrResetTokenConsumed     = errors.New("reset token already used")
	ErrResetTokenInvalid      = errors.New("invalid reset token")
	ErrPendingProfileNotFound = errors.New("pending profile not found")
	ErrMailerNotConfigured    = errors.New("email service not configured")
)

// Validation errors
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrWeakPassword = errors.New("password does not meet requirements")
)

// ErrorKind is the machine-readable category of a provisioning failure.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindAlreadyExists      ErrorKind = "already_exists"
	KindWeakPassword       ErrorKind = "weak_password"
	KindUnauthenticated    ErrorKind = "unauthenticated"
	KindNotFound           ErrorKind = "not_found"
	KindRateLimited        ErrorKind = "rate_limited"
	KindRejected           ErrorKind = "rejected"
	KindUnavailable        ErrorKind = "unavailable"
	KindInternal           ErrorKind = "internal"
)

// CodeProfileConflict marks a profile write that hit a unique constraint
// other than the primary key. Retrying it cannot succeed.
const CodeProfileConflict = "profile_conflict"

// IsProfileConflict reports whether err is a CodeProfileConflict error.
func IsProfileConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeProfileConflict
}

// Error is the uniform error carried by provisioning results.
// Message is what callers show to users; Kind and Code are for branching.
type Error struct {
	Kind    ErrorKind
	Code    string // provider-specific code, if any
	Message string
	Status  int // upstream HTTP status, if any
	Err     error
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates an Error of the given kind that wraps cause.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// String renders the error with its kind for logs.
func (e *Error) String() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s/%s)", e.Error(), e.Kind, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Error(), e.Kind)
}

// AsError converts any error into an *Error. Errors that are not already
// classified are treated as transport failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(KindUnavailable, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return WrapError(KindUnavailable, "request cancelled", err)
	}
	return WrapError(KindUnavailable, err.Error(), err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsError(err).Kind
}
