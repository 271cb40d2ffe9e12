/**
 * @description
 * Error taxonomy for the billing engine. Callers branch on the sentinel values with
 * errors.Is; the typed errors carry the human-readable rejection message that the
 * API layer surfaces to clients.
 */

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: unknown contract, payment, client or software system.
	ErrNotFound = errors.New("record not found")

	// ErrValidation: malformed input (non-positive amount, out-of-range duration
	// or support years, unknown client type).
	ErrValidation = errors.New("validation failed")

	// ErrConflict: the request is well-formed but violates a business rule
	// (duplicate active contract, overpayment, settling a non-pending payment,
	// paying an expired or cancelled contract).
	ErrConflict = errors.New("conflict with current state")

	// ErrConfiguration: the software system is priced incompatibly with the
	// request (no upfront price, subscription-only pricing).
	ErrConfiguration = errors.New("incompatible configuration")

	// ErrUnsupportedCurrency: the currency code is known to neither the provider,
	// the cache, nor the static fallback table.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrUpstreamUnavailable: the rate provider could not be reached. Recovered
	// internally via cache/fallback and only surfaced when both are exhausted.
	ErrUpstreamUnavailable = errors.New("rate provider unavailable")
)

// RuleError wraps a sentinel with a descriptive rejection message.
type RuleError struct {
	Sentinel error
	Message  string
}

func (e *RuleError) Error() string { return e.Message }

func (e *RuleError) Is(target error) bool { return target == e.Sentinel }

// NewValidationError builds an ErrValidation with a message.
func NewValidationError(msg string) error {
	return &RuleError{Sentinel: ErrValidation, Message: msg}
}

// NewValidationErrorf builds an ErrValidation with a formatted message.
func NewValidationErrorf(format string, args ...any) error {
	return &RuleError{Sentinel: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError builds an ErrConflict with a message.
func NewConflictError(msg string) error {
	return &RuleError{Sentinel: ErrConflict, Message: msg}
}

// NewConflictErrorf builds an ErrConflict with a formatted message.
func NewConflictErrorf(format string, args ...any) error {
	return &RuleError{Sentinel: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError builds an ErrNotFound naming the missing entity.
func NewNotFoundError(entity string, id any) error {
	return &RuleError{Sentinel: ErrNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// NewConfigurationError builds an ErrConfiguration with a message.
func NewConfigurationError(msg string) error {
	return &RuleError{Sentinel: ErrConfiguration, Message: msg}
}
