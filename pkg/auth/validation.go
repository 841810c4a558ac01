package auth

import (
	"fmt"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// ValidationError carries a user-facing message and wraps the domain
// sentinel it belongs to (ErrInvalidEmail or ErrWeakPassword).
type ValidationError struct {
	Err error
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalidEmail(format string, args ...any) error {
	return &ValidationError{Err: domain.ErrInvalidEmail, Msg: fmt.Sprintf(format, args...)}
}

func weakPassword(format string, args ...any) error {
	return &ValidationError{Err: domain.ErrWeakPassword, Msg: fmt.Sprintf(format, args...)}
}
