package errors

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

var (
	ErrConfigLoad         = "CONFIG_LOAD_ERROR"
	ErrDatabaseConnect    = "DATABASE_CONNECT_ERROR"
	ErrNotFound           = "NOT_FOUND"
	ErrUnsupportedNetwork = "UNSUPPORTED_NETWORK"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrChainUnavailable   = "CHAIN_UNAVAILABLE"
	ErrDepositReconcile   = "DEPOSIT_RECONCILE_ERROR"
	ErrAddressIssue       = "ADDRESS_ISSUE_ERROR"
	ErrInvalidState       = "DEPOSIT_STATE_ERROR"
	ErrPaymentFailed      = "PAYMENT_FAILED"
)

// CodeOf returns the error code of err, or empty string for non-AppError values.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRetryable reports whether err is a transient upstream failure worth
// retrying on the next scheduler tick or webhook delivery.
func IsRetryable(err error) bool {
	return CodeOf(err) == ErrChainUnavailable
}
