package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	paymentapp "github.com/Kylin-001/HKYG-sub002/internal/application/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

func setupWebhookRouter(p *MockCallbackProcessor) *gin.Engine {
	h := NewWebhookHandler(p)
	r := gin.New()
	r.POST("/webhooks/:gateway/payment", h.HandlePaymentNotification)
	r.POST("/webhooks/:gateway/refund", h.HandleRefundNotification)
	return r
}

func postWebhook(r http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_PaymentNotification(t *testing.T) {
	p := new(MockCallbackProcessor)
	body := `{"payment_no":"P1","trade_status":"SUCCESS"}`
	p.On("HandleCallback", mock.Anything, payment.PaymentTypeGatewayA, mock.MatchedBy(func(req *payment.CallbackRequest) bool {
		return req.Kind == payment.CallbackKindPayment &&
			string(req.Body) == body &&
			req.Header("X-Signature") == "sig"
	})).Return(&paymentapp.CallbackResponse{ContentType: "application/json", Body: []byte(`{"code":"SUCCESS"}`)}, nil)

	w := postWebhook(setupWebhookRouter(p), "/webhooks/gateway_a/payment", body, map[string]string{
		"Content-Type": "application/json",
		"X-Signature":  "sig",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":"SUCCESS"}`, w.Body.String())
	p.AssertExpectations(t)
}

func TestWebhookHandler_RefundNotification(t *testing.T) {
	p := new(MockCallbackProcessor)
	p.On("HandleCallback", mock.Anything, payment.PaymentTypeGatewayB, mock.MatchedBy(func(req *payment.CallbackRequest) bool {
		return req.Kind == payment.CallbackKindRefund
	})).Return(&paymentapp.CallbackResponse{ContentType: "text/plain", Body: []byte("success")}, nil)

	w := postWebhook(setupWebhookRouter(p), "/webhooks/gateway-b/refund", "refund_no=R1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())
}

func TestWebhookHandler_Rejections(t *testing.T) {
	t.Run("unknown gateway", func(t *testing.T) {
		p := new(MockCallbackProcessor)
		w := postWebhook(setupWebhookRouter(p), "/webhooks/paypal/payment", "{}", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		p.AssertNotCalled(t, "HandleCallback", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("balance has no webhooks", func(t *testing.T) {
		p := new(MockCallbackProcessor)
		w := postWebhook(setupWebhookRouter(p), "/webhooks/balance/payment", "{}", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad signature keeps the provider ack format", func(t *testing.T) {
		p := new(MockCallbackProcessor)
		p.On("HandleCallback", mock.Anything, payment.PaymentTypeGatewayB, mock.Anything).
			Return(&paymentapp.CallbackResponse{ContentType: "text/plain", Body: []byte("fail")},
				shared.NewSignatureError("signature mismatch"))

		w := postWebhook(setupWebhookRouter(p), "/webhooks/gateway_b/payment", "sign=bad", nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "fail", w.Body.String())
	})

	t.Run("unexpected error asks the provider to retry", func(t *testing.T) {
		p := new(MockCallbackProcessor)
		p.On("HandleCallback", mock.Anything, payment.PaymentTypeGatewayA, mock.Anything).
			Return(nil, assert.AnError)

		w := postWebhook(setupWebhookRouter(p), "/webhooks/gateway_a/payment", "{}", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Empty(t, w.Body.String())
	})
}
