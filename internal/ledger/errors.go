package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Error is a ledger failure with a stable machine-readable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidAmount     = &Error{Code: "INVALID_AMOUNT", Message: "amount must be a positive decimal"}
	ErrAccountNotFound   = &Error{Code: "ACCOUNT_NOT_FOUND", Message: "account not found"}
	ErrUserNotFound      = &Error{Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrInsufficientFunds = &Error{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}
	ErrLimitExceeded     = &Error{Code: "LIMIT_EXCEEDED", Message: "exceeded daily withdrawal limit"}
	ErrInvalidTransfer   = &Error{Code: "INVALID_TRANSFER", Message: "invalid transfer"}
	ErrTransientConflict = &Error{Code: "TRANSIENT_CONFLICT", Message: "concurrent update conflict, retry the operation"}
	ErrStoreUnavailable  = &Error{Code: "STORE_UNAVAILABLE", Message: "ledger store unavailable"}
)

// ErrConflict is returned by stores when a conditional balance update loses
// a race. The engine retries on it and never surfaces it to callers.
var ErrConflict = errors.New("ledger: conditional update conflict")

// Code returns the machine-readable code carried by err, or "" if err is not
// a ledger error.
func Code(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// classify keeps ledger errors and context errors as they are and turns
// anything else coming out of a store into ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
