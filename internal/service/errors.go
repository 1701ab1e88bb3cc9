package service

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrWeakSecret            = fmt.Errorf("%w: password too weak", ErrValidation)
	ErrDuplicateIdentifier   = errors.New("username or email already registered")
	ErrNoMatch               = errors.New("invalid username or password")
	ErrAccountLocked         = errors.New("account is locked")
	ErrAccountInactive       = errors.New("account is inactive")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrNotFound              = errors.New("not found")
	ErrMisconfigured         = errors.New("auth config invalid")
)

func validationError(code, reason string) error {
	return oops.Code(code).With("reason", reason).Wrap(ErrValidation)
}

// Reason returns the caller-facing explanation attached to a validation or
// duplicate-identifier error, or "" when none was recorded.
func Reason(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if reason, ok := oopsErr.Context()["reason"].(string); ok {
		return reason
	}
	return ""
}
