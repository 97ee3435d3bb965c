package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors for cross-layer signaling.
var (
	// ErrValidation marks bad or missing input. It never follows a state change.
	ErrValidation = errors.New("validation_error")
	// ErrInvalid is kept as the short name used by request-shape checks.
	ErrInvalid   = ErrValidation
	ErrNotFound  = errors.New("not_found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	// ErrInvariantViolation is returned when an operation would break a
	// ledger invariant (limit bounds, installment sums).
	ErrInvariantViolation = errors.New("invariant_violation")
	// ErrOperationFailed hides infrastructure failures that happened after a
	// ledger mutation began; the cause is logged, not returned.
	ErrOperationFailed = errors.New("operation_failed")
)

// Specific errors wrap one of the sentinels above so callers can match either.
var (
	ErrInvalidMonthFormat      = fmt.Errorf("invalid month format: %w", ErrValidation)
	ErrInvalidInstallmentCount = fmt.Errorf("invalid installment count: %w", ErrValidation)
	ErrInvalidAmount           = fmt.Errorf("invalid amount: %w", ErrValidation)

	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrCardNotFound        = fmt.Errorf("card %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrInvoiceNotFound     = fmt.Errorf("invoice %w", ErrNotFound)
	ErrGoalNotFound        = fmt.Errorf("goal %w", ErrNotFound)
)

// Validation returns a validation error carrying msg.
func Validation(msg string) error { return fmt.Errorf("%s: %w", msg, ErrValidation) }

// IsDomain reports whether err belongs to the taxonomy above and can be shown
// to callers as-is.
func IsDomain(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrOperationFailed)
}
