package shared

import (
	"errors"
	"fmt"
)

// Error categories. Every error that crosses a component boundary carries one
// of these codes so the HTTP layer and the retry logic can classify it
// without string matching.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeSignature              = "SIGNATURE_ERROR"
	CodeDuplicateRequest       = "DUPLICATE_REQUEST"
	CodeStateConflict          = "STATE_CONFLICT"
	CodeGateway                = "GATEWAY_ERROR"
	CodeReconciliationConflict = "RECONCILIATION_CONFLICT"
	CodeIntegrityAlert         = "INTEGRITY_ALERT"
	CodeNotFound               = "NOT_FOUND"
	CodeRiskRejected           = "RISK_REJECTED"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError with the same code, so sentinel values such as
// ErrStateConflict can be used with errors.Is.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.isSentinel() || t.Message == e.Message)
}

func (e *DomainError) isSentinel() bool {
	_, ok := sentinels[e]
	return ok
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error that keeps the original cause.
func WrapDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

func NewSignatureError(format string, args ...any) *DomainError {
	return NewDomainError(CodeSignature, fmt.Sprintf(format, args...))
}

func NewDuplicateRequestError(format string, args ...any) *DomainError {
	return NewDomainError(CodeDuplicateRequest, fmt.Sprintf(format, args...))
}

func NewStateConflictError(format string, args ...any) *DomainError {
	return NewDomainError(CodeStateConflict, fmt.Sprintf(format, args...))
}

// ErrConcurrentModification is the cause of a StateConflictError raised by a
// failed optimistic version check
var ErrConcurrentModification = errors.New("concurrent modification")

// NewConcurrentModificationError reports a lost optimistic-lock race
func NewConcurrentModificationError(format string, args ...any) *DomainError {
	return WrapDomainError(CodeStateConflict, fmt.Sprintf(format, args...), ErrConcurrentModification)
}

func NewGatewayError(cause error, format string, args ...any) *DomainError {
	return WrapDomainError(CodeGateway, fmt.Sprintf(format, args...), cause)
}

func NewReconciliationConflictError(format string, args ...any) *DomainError {
	return NewDomainError(CodeReconciliationConflict, fmt.Sprintf(format, args...))
}

func NewIntegrityAlert(format string, args ...any) *DomainError {
	return NewDomainError(CodeIntegrityAlert, fmt.Sprintf(format, args...))
}

func NewNotFoundError(format string, args ...any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf(format, args...))
}

func NewRiskRejectedError(format string, args ...any) *DomainError {
	return NewDomainError(CodeRiskRejected, fmt.Sprintf(format, args...))
}

// Sentinel errors for errors.Is checks. They match every DomainError of the
// same category regardless of message.
var (
	ErrValidation             = NewDomainError(CodeValidation, "Invalid input provided")
	ErrSignature              = NewDomainError(CodeSignature, "Signature verification failed")
	ErrDuplicateRequest       = NewDomainError(CodeDuplicateRequest, "Duplicate request")
	ErrStateConflict          = NewDomainError(CodeStateConflict, "Operation not allowed in current state")
	ErrGateway                = NewDomainError(CodeGateway, "Payment gateway unavailable")
	ErrReconciliationConflict = NewDomainError(CodeReconciliationConflict, "Reconciliation batch already running")
	ErrIntegrityAlert         = NewDomainError(CodeIntegrityAlert, "Ledger integrity alert")
	ErrNotFound               = NewDomainError(CodeNotFound, "Resource not found")
	ErrRiskRejected           = NewDomainError(CodeRiskRejected, "Payment rejected by risk control")
)

var sentinels = map[*DomainError]struct{}{
	ErrValidation:             {},
	ErrSignature:              {},
	ErrDuplicateRequest:       {},
	ErrStateConflict:          {},
	ErrGateway:                {},
	ErrReconciliationConflict: {},
	ErrIntegrityAlert:         {},
	ErrNotFound:               {},
	ErrRiskRejected:           {},
}

// CodeOf returns the category code of err, or "" when err is not a DomainError.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func IsStateConflict(err error) bool { return CodeOf(err) == CodeStateConflict }

func IsGatewayError(err error) bool { return CodeOf(err) == CodeGateway }

func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

func IsSignatureError(err error) bool { return CodeOf(err) == CodeSignature }

func IsDuplicateRequest(err error) bool { return CodeOf(err) == CodeDuplicateRequest }

func IsReconciliationConflict(err error) bool { return CodeOf(err) == CodeReconciliationConflict }

func IsValidationError(err error) bool { return CodeOf(err) == CodeValidation }
