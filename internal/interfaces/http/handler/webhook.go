package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	paymentapp "github.com/Kylin-001/HKYG-sub002/internal/application/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
	infrapayment "github.com/Kylin-001/HKYG-sub002/internal/infrastructure/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/dto"
)

// CallbackProcessor verifies and applies provider notifications
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, paymentType payment.PaymentType, req *payment.CallbackRequest) (*paymentapp.CallbackResponse, error)
}

// WebhookHandler receives asynchronous notifications from payment providers.
// Responses are written in the provider's own acknowledgement format, never
// in the JSON envelope used by the rest of the API.
type WebhookHandler struct {
	BaseHandler
	processor CallbackProcessor
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(processor CallbackProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// HandlePaymentNotification godoc
//
//	@ID				handlePaymentNotificationWebhook
//	@Summary		Receive a payment notification
//	@Description	Verify and apply an asynchronous payment result pushed by a provider
//	@Tags			webhooks
//	@Accept			application/json
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Produce		text/plain
//	@Param			gateway	path		string	true	"Provider name"	Enums(gateway_a, gateway_b)
//	@Success		200		{string}	string	"Provider acknowledgement"
//	@Failure		401		{string}	string	"Signature rejected"
//	@Failure		404		{object}	ErrorResponse
//	@Router			/webhooks/{gateway}/payment [post]
func (h *WebhookHandler) HandlePaymentNotification(c *gin.Context) {
	h.handle(c, payment.CallbackKindPayment)
}

// HandleRefundNotification godoc
//
//	@ID				handleRefundNotificationWebhook
//	@Summary		Receive a refund notification
//	@Description	Verify and apply an asynchronous refund result pushed by a provider
//	@Tags			webhooks
//	@Accept			application/json
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Produce		text/plain
//	@Param			gateway	path		string	true	"Provider name"	Enums(gateway_a, gateway_b)
//	@Success		200		{string}	string	"Provider acknowledgement"
//	@Failure		401		{string}	string	"Signature rejected"
//	@Failure		404		{object}	ErrorResponse
//	@Router			/webhooks/{gateway}/refund [post]
func (h *WebhookHandler) HandleRefundNotification(c *gin.Context) {
	h.handle(c, payment.CallbackKindRefund)
}

func (h *WebhookHandler) handle(c *gin.Context, kind payment.CallbackKind) {
	paymentType, ok := infrapayment.ParseGatewayName(c.Param("gateway"))
	if !ok || paymentType == payment.PaymentTypeBalance {
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, "Unknown gateway")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	req := &payment.CallbackRequest{
		Kind:     kind,
		Body:     body,
		Headers:  flattenHeaders(c.Request.Header),
		RemoteIP: c.ClientIP(),
	}

	resp, err := h.processor.HandleCallback(c.Request.Context(), paymentType, req)
	if err != nil {
		status := callbackErrorStatus(err)
		logger.L(c.Request.Context()).Warn("Webhook rejected",
			zap.String("gateway", paymentType.String()),
			zap.String("kind", string(kind)),
			zap.Int("status", status),
			zap.Error(err),
		)
		_ = c.Error(err)
		if resp != nil {
			c.Data(status, resp.ContentType, resp.Body)
			return
		}
		c.Status(status)
		return
	}

	if resp == nil {
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, resp.ContentType, resp.Body)
}

// callbackErrorStatus keeps domain statuses and turns anything else into a
// 500 so the provider retries
func callbackErrorStatus(err error) int {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return dto.GetHTTPStatus(dto.NormalizeErrorCode(domainErr.Code))
	}
	return http.StatusInternalServerError
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
