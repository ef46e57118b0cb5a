package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	// ErrCodeValidation is used when a request or domain value is invalid
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodePayloadTooLarge is used when the body exceeds the configured limit
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the operator lacks permission or the source IP is not allowed
	ErrCodeForbidden = "ERR_FORBIDDEN"
	// ErrCodeTokenExpired is used when the auth token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when the auth token is invalid
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	// ErrCodeTokenRevoked is used when the token JTI is blacklisted
	ErrCodeTokenRevoked = "ERR_TOKEN_REVOKED"
	// ErrCodeSignature is used when a signed payload fails verification
	ErrCodeSignature = "ERR_SIGNATURE"
)

// Payment core error codes
const (
	// ErrCodeNotFound is used when a payment, refund, batch or diff is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeDuplicateRequest is used when an idempotency token was already consumed
	ErrCodeDuplicateRequest = "ERR_DUPLICATE_REQUEST"
	// ErrCodeStateConflict is used when a transition is not allowed or lost a race
	ErrCodeStateConflict = "ERR_STATE_CONFLICT"
	// ErrCodeGateway is used when the provider could not be reached or answered an error
	ErrCodeGateway = "ERR_GATEWAY"
	// ErrCodeReconciliationConflict is used when a batch is already running for the day
	ErrCodeReconciliationConflict = "ERR_RECONCILIATION_CONFLICT"
	// ErrCodeIntegrityAlert is used when data disagrees with a signed provider record
	ErrCodeIntegrityAlert = "ERR_INTEGRITY_ALERT"
	// ErrCodeRiskRejected is used when risk control refuses to open a payment
	ErrCodeRiskRejected = "ERR_RISK_REJECTED"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,
	ErrCodeTokenRevoked: http.StatusUnauthorized,
	ErrCodeSignature:    http.StatusUnauthorized,

	ErrCodeNotFound:               http.StatusNotFound,
	ErrCodeDuplicateRequest:       http.StatusConflict,
	ErrCodeStateConflict:          http.StatusConflict,
	ErrCodeGateway:                http.StatusBadGateway,
	ErrCodeReconciliationConflict: http.StatusConflict,
	ErrCodeIntegrityAlert:         http.StatusInternalServerError,
	ErrCodeRiskRejected:           http.StatusForbidden,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps shared.DomainError categories to API codes
var DomainErrorCodeMapping = map[string]string{
	"VALIDATION_ERROR":        ErrCodeValidation,
	"SIGNATURE_ERROR":         ErrCodeSignature,
	"DUPLICATE_REQUEST":       ErrCodeDuplicateRequest,
	"STATE_CONFLICT":          ErrCodeStateConflict,
	"GATEWAY_ERROR":           ErrCodeGateway,
	"RECONCILIATION_CONFLICT": ErrCodeReconciliationConflict,
	"INTEGRITY_ALERT":         ErrCodeIntegrityAlert,
	"NOT_FOUND":               ErrCodeNotFound,
	"RISK_REJECTED":           ErrCodeRiskRejected,
}

// NormalizeErrorCode converts a domain error category to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
