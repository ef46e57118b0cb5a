package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeUnknown, http.StatusInternalServerError},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestDomainErrorStatus(t *testing.T) {
	tests := []struct {
		err      *shared.DomainError
		expected int
	}{
		{shared.NewValidationError("amount must be positive"), http.StatusBadRequest},
		{shared.NewSignatureError("bad sign"), http.StatusUnauthorized},
		{shared.NewDuplicateRequestError("token consumed"), http.StatusConflict},
		{shared.NewStateConflictError("PAID -> PENDING"), http.StatusConflict},
		{shared.NewGatewayError(nil, "timeout"), http.StatusBadGateway},
		{shared.NewReconciliationConflictError("running"), http.StatusConflict},
		{shared.NewIntegrityAlert("amount mismatch"), http.StatusInternalServerError},
		{shared.NewNotFoundError("payment P1"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			code := NormalizeErrorCode(tt.err.Code)
			assert.Contains(t, code, "ERR_")
			assert.Equal(t, tt.expected, GetHTTPStatus(code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	// API codes and unknown codes pass through unchanged
	assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode(ErrCodeNotFound))
	assert.Equal(t, "CUSTOM_ERROR", NormalizeErrorCode("CUSTOM_ERROR"))
	assert.Equal(t, ErrCodeGateway, NormalizeErrorCode(shared.CodeGateway))
}

func TestErrorCodeConstants(t *testing.T) {
	for _, code := range DomainErrorCodeMapping {
		_, ok := ErrorCodeHTTPStatus[code]
		assert.True(t, ok, "Error code %s should be in ErrorCodeHTTPStatus map", code)
	}
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "Payment not found", "req-123-456")

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "Payment not found", resp.Error.Message)
	assert.Equal(t, "req-123-456", resp.Error.RequestID)
}

func TestNewValidationErrorResponse(t *testing.T) {
	details := []ValidationDetail{
		{Field: "amount", Message: "This field is required"},
		{Field: "paymentType", Message: "Must be one of: GATEWAY_A GATEWAY_B BALANCE"},
	}

	resp := NewValidationErrorResponse("Validation failed", "req-789", details)

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-789", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 2)
	assert.Equal(t, "amount", resp.Error.Details[0].Field)
}

func TestErrorResponseJSON(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeStateConflict, "refund already in progress", "req-test-123")

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["success"])
	errBody := decoded["error"].(map[string]any)
	assert.Equal(t, ErrCodeStateConflict, errBody["code"])
	assert.Equal(t, "req-test-123", errBody["request_id"])
	assert.NotContains(t, errBody, "details")
}

func TestNewSuccessResponseWithMetaPagination(t *testing.T) {
	tests := []struct {
		total         int64
		pageSize      int
		expectedPages int
		expectedSize  int
	}{
		{100, 10, 10, 10},
		{101, 10, 11, 10},
		{0, 10, 0, 10},
		{9, 10, 1, 10},
		{100, 0, 5, 20},
		{100, -1, 5, 20},
	}

	for _, tt := range tests {
		resp := NewSuccessResponseWithMeta(nil, tt.total, 1, tt.pageSize)
		assert.Equal(t, tt.expectedPages, resp.Meta.TotalPages)
		assert.Equal(t, tt.expectedSize, resp.Meta.PageSize)
	}
}

func TestListRequest_OffsetAndLimit(t *testing.T) {
	assert.Equal(t, 0, ListRequest{}.Offset())
	assert.Equal(t, 20, ListRequest{}.Limit())
	assert.Equal(t, 40, ListRequest{Page: 3, PageSize: 20}.Offset())
}
