package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	paymentapp "github.com/Kylin-001/HKYG-sub002/internal/application/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/dto"
)

func setupPaymentRouter(ledger *MockPaymentLedger) *gin.Engine {
	h := NewPaymentHandler(ledger)
	r := gin.New()
	r.POST("/payments", h.CreatePayment)
	r.GET("/payments", h.ListPayments)
	r.GET("/payments/:paymentNo", h.GetPayment)
	r.POST("/payments/:paymentNo/initiate", h.InitiatePayment)
	r.POST("/payments/:paymentNo/sync", h.SyncPayment)
	r.POST("/payments/:paymentNo/refunds", h.RequestRefund)
	r.POST("/recharges", h.CreateRecharge)
	return r
}

func TestPaymentHandler_CreatePayment(t *testing.T) {
	t.Run("creates payment", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		ledger.On("CreatePayment", mock.Anything, paymentapp.CreatePaymentInput{
			OrderNo: "ORD1", UserID: "u1", Amount: "99.90", PaymentType: "GATEWAY_A", ClientIP: "192.0.2.1",
		}).Return(&paymentapp.PaymentDTO{
			PaymentNo: "P20260101000000000001",
			Status:    string(payment.PaymentStatusCreated),
			Amount:    decimal.RequireFromString("99.90"),
		}, nil)

		w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments", map[string]string{
			"order_no": "ORD1", "user_id": "u1", "amount": "99.90", "payment_type": "GATEWAY_A",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		ledger.AssertExpectations(t)
	})

	t.Run("rejects bad amounts before the ledger", func(t *testing.T) {
		for _, amount := range []string{"0", "-1", "1.001", "abc"} {
			ledger := new(MockPaymentLedger)
			w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments", map[string]string{
				"order_no": "ORD1", "user_id": "u1", "amount": amount, "payment_type": "GATEWAY_A",
			})

			assert.Equal(t, http.StatusBadRequest, w.Code, amount)
			resp := decodeResponse(t, w)
			assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
			if assert.NotEmpty(t, resp.Error.Details) {
				assert.Equal(t, "amount", resp.Error.Details[0].Field)
			}
			ledger.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
		}
	})

	t.Run("rejects unknown payment type", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments", map[string]string{
			"order_no": "ORD1", "user_id": "u1", "amount": "1.00", "payment_type": "PAYPAL",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate request maps to 409", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		ledger.On("CreatePayment", mock.Anything, mock.Anything).
			Return(nil, shared.NewDuplicateRequestError("request already processed"))

		w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments", map[string]string{
			"order_no": "ORD1", "user_id": "u1", "amount": "1.00", "payment_type": "BALANCE",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeDuplicateRequest, decodeResponse(t, w).Error.Code)
	})

	t.Run("risk rejection maps to 403", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		ledger.On("CreatePayment", mock.Anything, mock.Anything).
			Return(nil, shared.NewRiskRejectedError("payment attempts are too frequent"))

		w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments", map[string]string{
			"order_no": "ORD1", "user_id": "u1", "amount": "1.00", "payment_type": "GATEWAY_A",
		})

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, dto.ErrCodeRiskRejected, decodeResponse(t, w).Error.Code)
	})
}

func TestPaymentHandler_CreateRecharge(t *testing.T) {
	t.Run("creates recharge with the caller address", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		ledger.On("CreateRecharge", mock.Anything, paymentapp.RechargeInput{
			UserID: "u1", Amount: "200.00", PaymentType: "GATEWAY_B", ClientIP: "192.0.2.1",
		}).Return(&paymentapp.PaymentDTO{
			PaymentNo: "P20260101000000000002",
			OrderNo:   "RC20260101000000123456",
			Status:    string(payment.PaymentStatusCreated),
		}, nil)

		w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/recharges", map[string]string{
			"user_id": "u1", "amount": "200.00", "payment_type": "GATEWAY_B",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		ledger.AssertExpectations(t)
	})

	t.Run("balance cannot fund a recharge", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/recharges", map[string]string{
			"user_id": "u1", "amount": "200.00", "payment_type": "BALANCE",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		ledger.AssertNotCalled(t, "CreateRecharge", mock.Anything, mock.Anything)
	})
}

func TestPaymentHandler_InitiatePayment(t *testing.T) {
	ledger := new(MockPaymentLedger)
	ledger.On("InitiatePayment", mock.Anything, "P1", mock.MatchedBy(func(o payment.CreateParamsOptions) bool {
		return o.Subject == "Order 1" && o.ClientIP != ""
	})).Return(&paymentapp.InitiateResult{
		Payment: &paymentapp.PaymentDTO{PaymentNo: "P1", Status: string(payment.PaymentStatusPending)},
		Params:  &payment.PaymentParams{PaymentNo: "P1"},
	}, nil)

	w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments/P1/initiate", map[string]string{
		"subject": "Order 1",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	ledger.AssertExpectations(t)
}

func TestPaymentHandler_InitiatePayment_EmptyBody(t *testing.T) {
	ledger := new(MockPaymentLedger)
	ledger.On("InitiatePayment", mock.Anything, "P1", mock.Anything).
		Return(nil, shared.NewStateConflictError("payment is FAILED"))

	w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments/P1/initiate", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, dto.ErrCodeStateConflict, decodeResponse(t, w).Error.Code)
}

func TestPaymentHandler_GetPayment(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		ledger.On("GetPayment", mock.Anything, "P1").
			Return(&paymentapp.PaymentDTO{PaymentNo: "P1"}, nil)

		w := performRequest(setupPaymentRouter(ledger), http.MethodGet, "/payments/P1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		ledger.On("GetPayment", mock.Anything, "P404").Return(nil, shared.ErrNotFound)

		w := performRequest(setupPaymentRouter(ledger), http.MethodGet, "/payments/P404", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeResponse(t, w).Error.Code)
	})
}

func TestPaymentHandler_ListPayments(t *testing.T) {
	ledger := new(MockPaymentLedger)
	ledger.On("ListPayments", mock.Anything, payment.PaymentFilter{
		Status: payment.PaymentStatusPaid, Limit: 20,
	}).Return([]paymentapp.PaymentDTO{{PaymentNo: "P1"}}, nil)

	w := performRequest(setupPaymentRouter(ledger), http.MethodGet, "/payments?status=PAID", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	ledger.AssertExpectations(t)

	w = performRequest(setupPaymentRouter(ledger), http.MethodGet, "/payments?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandler_ListPayments_Sorted(t *testing.T) {
	ledger := new(MockPaymentLedger)
	ledger.On("ListPayments", mock.Anything, payment.PaymentFilter{
		Limit: 20, SortBy: "pay_time", SortOrder: "asc",
	}).Return([]paymentapp.PaymentDTO{}, nil)

	w := performRequest(setupPaymentRouter(ledger), http.MethodGet, "/payments?sort_by=pay_time&sort_order=asc", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	ledger.AssertExpectations(t)

	w = performRequest(setupPaymentRouter(ledger), http.MethodGet, "/payments?sort_order=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandler_SyncPayment(t *testing.T) {
	ledger := new(MockPaymentLedger)
	ledger.On("SyncWithGateway", mock.Anything, "P1").
		Return(nil, shared.NewGatewayError(assert.AnError, "provider unreachable"))

	w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments/P1/sync", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, dto.ErrCodeGateway, decodeResponse(t, w).Error.Code)
}

func TestPaymentHandler_RequestRefund(t *testing.T) {
	tests := []struct {
		name       string
		status     payment.RefundStatus
		wantStatus int
	}{
		{"settled refund is created", payment.RefundStatusSuccess, http.StatusCreated},
		{"unsettled refund is accepted", payment.RefundStatusPending, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := new(MockPaymentLedger)
			ledger.On("RequestRefund", mock.Anything, paymentapp.RefundInput{
				PaymentNo: "P1", Amount: "10.00", Reason: "returned",
			}).Return(&paymentapp.RefundDTO{RefundNo: "R1", PaymentNo: "P1", Status: string(tt.status)}, nil)

			w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments/P1/refunds", map[string]string{
				"amount": "10.00", "reason": "returned",
			})

			assert.Equal(t, tt.wantStatus, w.Code)
			ledger.AssertExpectations(t)
		})
	}

	t.Run("provider outage is a gateway error", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		ledger.On("RequestRefund", mock.Anything, mock.Anything).
			Return(&paymentapp.RefundDTO{RefundNo: "R1", PaymentNo: "P1", Status: string(payment.RefundStatusFailed)},
				shared.NewGatewayError(assert.AnError, "refund failed"))

		w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments/P1/refunds", map[string]string{
			"amount": "10.00",
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, dto.ErrCodeGateway, decodeResponse(t, w).Error.Code)
	})

	t.Run("over-refund is a validation error", func(t *testing.T) {
		ledger := new(MockPaymentLedger)
		ledger.On("RequestRefund", mock.Anything, mock.Anything).
			Return(nil, shared.NewValidationError("refund exceeds refundable amount"))

		w := performRequest(setupPaymentRouter(ledger), http.MethodPost, "/payments/P1/refunds", map[string]string{
			"amount": "1000.00",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBaseHandler_HandleError_Unexpected(t *testing.T) {
	ledger := new(MockPaymentLedger)
	ledger.On("GetPayment", mock.Anything, "P1").Return(nil, assert.AnError)

	w := performRequest(setupPaymentRouter(ledger), http.MethodGet, "/payments/P1", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, assert.AnError.Error())
}
