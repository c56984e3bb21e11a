package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrLineIndex             = errors.New("cart line index out of range")
	ErrNotAvailable          = errors.New("not enough stock available")
	ErrInvalidTender         = errors.New("amount tendered must be positive")
	ErrAmountPrecision       = errors.New("amounts carry at most two decimal places")
	ErrTenderExceedsTotal    = errors.New("amount tendered exceeds order total")
	ErrInsufficientTender    = errors.New("amount tendered does not cover the outstanding balance")
	ErrPaymentExceedsBalance = errors.New("payment exceeds the outstanding balance")
	ErrInvalidPaymentMethod  = errors.New("unknown payment method")
	ErrInvalidStatus         = errors.New("unknown order status")
	ErrReasonRequired        = errors.New("cancellation reason is required")
	ErrMissingTerminal       = errors.New("terminal id is required")
	ErrVariantRequired       = errors.New("product has variants, choose one")
	ErrProductNotFound       = errors.New("product not found")

	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderCancelled    = errors.New("order is cancelled")
	ErrAlreadySettled    = errors.New("order is already settled")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrCommitInFlight    = errors.New("a checkout is already in progress on this terminal")
)

// ValidationError marks input that was rejected before any write happened.
// Retrying with corrected input is always safe.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func Invalid(err error) error {
	return &ValidationError{Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// StepError names the step of a multi-step operation that failed on storage.
// These failures are transient from the caller's point of view.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Retryable() bool {
	return true
}

func Step(step string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Err: err}
}

func IsRetryable(err error) bool {
	var s *StepError
	return errors.As(err, &s) && s.Retryable()
}
