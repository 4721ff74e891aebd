package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Payment gateway errors (GATEWAY_*): transient, retried per RetryPolicy
	ErrorCodeGatewayError    ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout  ErrorCode = "GATEWAY_TIMEOUT"
	ErrorCodeGatewayDeclined ErrorCode = "GATEWAY_DECLINED"

	// Billing lifecycle errors (BILLING_*)
	ErrorCodeRetriesExhausted ErrorCode = "BILLING_RETRIES_EXHAUSTED"
	ErrorCodeCycleNotFound    ErrorCode = "BILLING_CYCLE_NOT_FOUND"
	ErrorCodeCycleClaimLost   ErrorCode = "BILLING_CYCLE_CLAIM_LOST"
	ErrorCodeInvoiceNotFound  ErrorCode = "BILLING_INVOICE_NOT_FOUND"
	ErrorCodeInvoiceImmutable ErrorCode = "BILLING_INVOICE_IMMUTABLE"

	// Data-integrity errors (INTEGRITY_*): fail fast, never consume a retry slot
	ErrorCodeSubscriptionNotFound ErrorCode = "INTEGRITY_SUBSCRIPTION_NOT_FOUND"
	ErrorCodePlanNotFound         ErrorCode = "INTEGRITY_PLAN_NOT_FOUND"

	// Validation errors (VALIDATION_*)
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Infrastructure errors (INTERNAL_*): abort the current batch pass only
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

// WithDetail returns a copy of the error with the detail field added. The
// receiver is never mutated: the package-level sentinels are shared across
// goroutines, so detail maps must not be written in place.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{
		Err:     e.Err,
		Details: details,
		Code:    e.Code,
		Message: e.Message,
	}
}

// Is matches DomainErrors by code, so errors.Is works across the copies
// WithDetail produces.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
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

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsTransientPaymentFailure reports whether a payment attempt failed in a way
// that a later retry could succeed (decline, gateway timeout, gateway fault).
func IsTransientPaymentFailure(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError ||
		code == ErrorCodeGatewayTimeout ||
		code == ErrorCodeGatewayDeclined
}

// IsDataIntegrityFailure reports whether the failure is caused by missing
// configuration (subscription or plan gone). Retrying cannot fix these.
func IsDataIntegrityFailure(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeSubscriptionNotFound ||
		code == ErrorCodePlanNotFound
}

// IsInfrastructureFailure reports whether storage or internal plumbing failed
func IsInfrastructureFailure(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeInternalError ||
		code == ErrorCodeDatabaseError
}

// Structured error instances
var (
	ErrGatewayError    = NewDomainError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayTimedOut = NewDomainError(ErrorCodeGatewayTimeout, "payment gateway timeout")
	ErrGatewayDeclined = NewDomainError(ErrorCodeGatewayDeclined, "payment declined by gateway")

	ErrRetriesExhausted = NewDomainError(ErrorCodeRetriesExhausted, "max billing retries exceeded")
	ErrCycleNotFound    = NewDomainError(ErrorCodeCycleNotFound, "billing cycle not found")
	ErrCycleClaimLost   = NewDomainError(ErrorCodeCycleClaimLost, "billing cycle already claimed by another worker")
	ErrInvoiceNotFound  = NewDomainError(ErrorCodeInvoiceNotFound, "invoice not found")
	ErrInvoiceImmutable = NewDomainError(ErrorCodeInvoiceImmutable, "invoice is settled and immutable")

	ErrSubscriptionNotFound = NewDomainError(ErrorCodeSubscriptionNotFound, "subscription not found")
	ErrPlanNotFound         = NewDomainError(ErrorCodePlanNotFound, "subscription plan not found")

	ErrValidationFailed = NewDomainError(ErrorCodeValidationFailed, "validation failed")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
