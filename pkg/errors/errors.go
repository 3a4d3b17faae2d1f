package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrAccountNotFound           = errors.New("escrow account not found")
	ErrAccountNotActive          = errors.New("escrow account is not active")
	ErrInvalidAmount             = errors.New("amount must be greater than zero")
	ErrInsufficientFunds         = errors.New("insufficient available balance")
	ErrMaximumBalanceExceeded    = errors.New("deposit would exceed maximum balance")
	ErrNonZeroBalance            = errors.New("account balance must be zero to close")
	ErrCurrencyMismatch          = errors.New("accounts use different currencies")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrTransactionNotRefundable  = errors.New("only completed transactions can be refunded")
	ErrRefundExceedsOriginal     = errors.New("refund amount exceeds original amount")
	ErrPayoutNotFound            = errors.New("payout request not found")
	ErrDisbursementNotFound      = errors.New("disbursement not found")
	ErrPaymentMethodNotFound     = errors.New("payment method not found")
	ErrPaymentMethodNotUsable    = errors.New("payment method is not active or verified")
	ErrDefaultMethodDeactivation = errors.New("default payment method cannot be deactivated")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrOverdisbursement          = errors.New("amount exceeds pending disbursement amount")
	ErrDuplicateNumber           = errors.New("business number already exists")
	ErrWebhookSignature          = errors.New("webhook signature verification failed")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvariantViolation = "INVARIANT_VIOLATION"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	ErrCodeProcessorError     = "PROCESSOR_ERROR"
	ErrCodeDatabaseError      = "DATABASE_ERROR"
	ErrCodeCacheError         = "CACHE_ERROR"
)

// Wrap common errors with business context

func WrapValidation(message string, err error) *BusinessError {
	return NewBusinessError(ErrCodeValidation, message, err)
}

func WrapNotFound(entity, id string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("%s %s not found", entity, id),
		err,
	)
}

func WrapInsufficientFunds(accountID string) *BusinessError {
	return NewBusinessError(
		ErrCodeInsufficientFunds,
		fmt.Sprintf("account %s has insufficient available balance", accountID),
		ErrInsufficientFunds,
	)
}

func WrapInvariant(message string, err error) *BusinessError {
	return NewBusinessError(ErrCodeInvariantViolation, message, err)
}

func WrapInvalidTransition(entity, from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTransition,
		fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		ErrInvalidTransition,
	)
}

func WrapProcessorError(operation string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeProcessorError,
		fmt.Sprintf("payment processor %s failed", operation),
		err,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"cache operation failed",
		err,
	)
}

// IsCode reports whether err is a BusinessError carrying the given code.
func IsCode(err error, code string) bool {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
