// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Ownership errors.
	ErrAccessDenied = errors.New("access denied")

	// Bank provider errors.
	ErrBankConnection = errors.New("bank provider connection failed")
	ErrBankRateLimit  = errors.New("bank provider rate limit exceeded")

	// Categorization errors.
	ErrNoTransactions       = errors.New("no transactions to categorize")
	ErrCategorizationFailed = errors.New("categorization failed")
	ErrCandidateResolved    = errors.New("candidate already resolved")

	// Reconciliation errors.
	ErrReconciliationFinalized = errors.New("reconciliation already finalized")
	ErrItemNotMatched          = errors.New("reconciliation item is not matched")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error whose message is safe to show to API clients.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-facing error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrBankRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
