package service

import (
	"errors"
	"fmt"
	"time"
)

// Caller-recoverable error taxonomy. Handlers map these to stable HTTP
// codes; anything else is a generic internal error.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid or reused token")
	ErrAccountLocked   = errors.New("account locked")
	ErrAccountInactive = errors.New("account inactive")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
)

// AccountLockedError carries remaining lockout time for the caller.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// QuotaExceededError carries the context used by callers to drive upgrade
// prompts.
type QuotaExceededError struct {
	Limit     int64
	Remaining int64
	Shortfall int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: remaining %d of %d, short %d", e.Remaining, e.Limit, e.Shortfall)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }
