package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Subscription Errors (SUB_*)
	ErrorCodeSubscriptionNotFound ErrorCode = "SUB_NOT_FOUND"
	ErrorCodeSubscriptionExists   ErrorCode = "SUB_ALREADY_EXISTS"
	ErrorCodeSubscriptionBusy     ErrorCode = "SUB_BILLING_IN_PROGRESS"
	ErrorCodeSubscriptionStale    ErrorCode = "SUB_STALE"

	// Catalog Errors (CATALOG_*)
	ErrorCodePlanNotFound      ErrorCode = "CATALOG_PLAN_NOT_FOUND"
	ErrorCodeDiscountNotFound  ErrorCode = "CATALOG_DISCOUNT_NOT_FOUND"
	ErrorCodeAffiliateNotFound ErrorCode = "CATALOG_AFFILIATE_NOT_FOUND"

	// Subscriber Errors (SUBSCRIBER_*)
	ErrorCodeSubscriberNotFound ErrorCode = "SUBSCRIBER_NOT_FOUND"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayError       ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout     ErrorCode = "GATEWAY_TIMEOUT"
	ErrorCodeGatewayUnavailable ErrorCode = "GATEWAY_UNAVAILABLE"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code, so sentinels work with errors.Is
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithDetail returns a copy of the error carrying an extra detail field
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Code: e.Code, Message: e.Message, Err: e.Err, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeSubscriptionNotFound,
		ErrorCodePlanNotFound,
		ErrorCodeDiscountNotFound,
		ErrorCodeAffiliateNotFound,
		ErrorCodeSubscriberNotFound:
		return true
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField
}

// IsGatewayError checks if an error is a payment gateway transport error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError ||
		code == ErrorCodeGatewayTimeout ||
		code == ErrorCodeGatewayUnavailable
}

var (
	ErrSubscriptionNotFound = NewDomainError(ErrorCodeSubscriptionNotFound, "subscription not found")
	ErrSubscriptionExists   = NewDomainError(ErrorCodeSubscriptionExists, "subscriber already has a subscription")
	ErrSubscriptionBusy     = NewDomainError(ErrorCodeSubscriptionBusy, "another billing operation is in progress for this subscription")
	ErrSubscriptionStale    = NewDomainError(ErrorCodeSubscriptionStale, "subscription changed since it was read")

	ErrPlanNotFound      = NewDomainError(ErrorCodePlanNotFound, "plan not found")
	ErrDiscountNotFound  = NewDomainError(ErrorCodeDiscountNotFound, "discount not found")
	ErrAffiliateNotFound = NewDomainError(ErrorCodeAffiliateNotFound, "affiliate not found")

	ErrSubscriberNotFound = NewDomainError(ErrorCodeSubscriberNotFound, "subscriber not found")

	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrGatewayError       = NewDomainError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayTimeout     = NewDomainError(ErrorCodeGatewayTimeout, "payment gateway timeout")
	ErrGatewayUnavailable = NewDomainError(ErrorCodeGatewayUnavailable, "payment gateway unavailable")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)

var (
	ErrInvalidInterval = errors.New("invalid interval unit")
	ErrInvalidState    = errors.New("invalid subscription state")
)
