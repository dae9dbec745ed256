package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorCategory represents the category of error for handling
type ErrorCategory string

const (
	CategoryDeclined          ErrorCategory = "declined"
	CategoryInsufficientFunds ErrorCategory = "insufficient_funds"
	CategoryInvalidCard       ErrorCategory = "invalid_card"
	CategoryExpiredCard       ErrorCategory = "expired_card"
	CategoryFraud             ErrorCategory = "fraud"
	CategoryVault             ErrorCategory = "vault"
	CategorySystemError       ErrorCategory = "system_error"
	CategoryNetworkError      ErrorCategory = "network_error"
	CategoryInvalidRequest    ErrorCategory = "invalid_request"
)

// PaymentError is a vault or gateway failure with no money moved.
// Error() is the upstream message, shown to the subscriber as-is.
type PaymentError struct {
	Code           string
	Message        string
	GatewayMessage string
	IsRetriable    bool
	Category       ErrorCategory
	Details        map[string]interface{}
}

func (e *PaymentError) Error() string {
	if e.GatewayMessage != "" {
		return e.GatewayMessage
	}
	return e.Message
}

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, category ErrorCategory, retriable bool) *PaymentError {
	return &PaymentError{
		Code:        code,
		Message:     message,
		Category:    category,
		IsRetriable: retriable,
		Details:     make(map[string]interface{}),
	}
}

// NewGatewayError wraps a gateway response text
func NewGatewayError(code, gatewayMessage string, category ErrorCategory) *PaymentError {
	return &PaymentError{
		Code:           code,
		Message:        "payment gateway rejected the request",
		GatewayMessage: gatewayMessage,
		Category:       category,
		Details:        make(map[string]interface{}),
	}
}

// WithDetail adds a detail field to the error
func (e *PaymentError) WithDetail(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ReconciliationError means money may have moved at the gateway but local
// records do not reflect it. It must be escalated, never retried blindly.
type ReconciliationError struct {
	Op             string
	SubscriptionID string
	TransactionID  string
	Amount         decimal.Decimal
	Err            error
}

func (e *ReconciliationError) Error() string {
	if e.TransactionID != "" {
		return fmt.Sprintf("reconciliation required: %s for subscription %s (transaction %s, amount %s): %v",
			e.Op, e.SubscriptionID, e.TransactionID, e.Amount.StringFixed(2), e.Err)
	}
	return fmt.Sprintf("reconciliation required: %s for subscription %s (amount %s): %v",
		e.Op, e.SubscriptionID, e.Amount.StringFixed(2), e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a *ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsPayment reports whether err is a *PaymentError
func IsPayment(err error) bool {
	var p *PaymentError
	return errors.As(err, &p)
}

// IsReconciliation reports whether err is a *ReconciliationError
func IsReconciliation(err error) bool {
	var r *ReconciliationError
	return errors.As(err, &r)
}

// UserMessage returns the text to show an end user for err.
// Validation and payment errors carry their own message; anything else
// is reduced to a generic one.
func UserMessage(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Error()
	}
	var p *PaymentError
	if errors.As(err, &p) {
		return p.Error()
	}
	if IsReconciliation(err) {
		return "Your payment is being reviewed. Please contact support before retrying."
	}
	return "An unexpected error occurred."
}
