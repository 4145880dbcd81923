package entity

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrSoldOut           = errors.New("not enough tickets available")
	ErrDuplicateBooking  = errors.New("user already has an active booking for this show")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRemoteUnavailable = errors.New("remote service unavailable")
	ErrNotFound          = errors.New("not found")
)

// InvalidRequestf returns an error matching ErrInvalidRequest with a human readable reason.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
