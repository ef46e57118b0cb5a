package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	paymentapp "github.com/Kylin-001/HKYG-sub002/internal/application/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
)

// PaymentLedger is the part of the ledger service the payment API drives
type PaymentLedger interface {
	CreatePayment(ctx context.Context, input paymentapp.CreatePaymentInput) (*paymentapp.PaymentDTO, error)
	CreateRecharge(ctx context.Context, input paymentapp.RechargeInput) (*paymentapp.PaymentDTO, error)
	InitiatePayment(ctx context.Context, paymentNo string, opts payment.CreateParamsOptions) (*paymentapp.InitiateResult, error)
	GetPayment(ctx context.Context, paymentNo string) (*paymentapp.PaymentDTO, error)
	ListPayments(ctx context.Context, filter payment.PaymentFilter) ([]paymentapp.PaymentDTO, error)
	SyncWithGateway(ctx context.Context, paymentNo string) (*paymentapp.PaymentDTO, error)
	RequestRefund(ctx context.Context, input paymentapp.RefundInput) (*paymentapp.RefundDTO, error)
}

// PaymentHandler handles payment and refund HTTP requests
type PaymentHandler struct {
	BaseHandler
	ledger PaymentLedger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(ledger PaymentLedger) *PaymentHandler {
	return &PaymentHandler{ledger: ledger}
}

// CreatePaymentRequest is the body of POST /payments
type CreatePaymentRequest struct {
	OrderNo     string `json:"order_no" binding:"required,max=64" example:"ORD202601010001"`
	UserID      string `json:"user_id" binding:"required,max=64" example:"u-1001"`
	Amount      string `json:"amount" binding:"required,money" example:"99.90"`
	PaymentType string `json:"payment_type" binding:"required,oneof=GATEWAY_A GATEWAY_B BALANCE" example:"GATEWAY_A"`
}

// CreateRechargeRequest is the body of POST /recharges
type CreateRechargeRequest struct {
	UserID      string `json:"user_id" binding:"required,max=64" example:"u-1001"`
	Amount      string `json:"amount" binding:"required,money" example:"200.00"`
	PaymentType string `json:"payment_type" binding:"required,oneof=GATEWAY_A GATEWAY_B" example:"GATEWAY_A"`
}

// InitiatePaymentRequest is the body of POST /payments/{paymentNo}/initiate
type InitiatePaymentRequest struct {
	Subject   string `json:"subject" binding:"max=128" example:"Order ORD202601010001"`
	ReturnURL string `json:"return_url" binding:"omitempty,url,max=512"`
}

// RefundRequest is the body of POST /payments/{paymentNo}/refunds
type RefundRequest struct {
	Amount string `json:"amount" binding:"required,money" example:"10.00"`
	Reason string `json:"reason" binding:"max=255" example:"Item returned"`
}

// ListPaymentsQuery filters GET /payments
type ListPaymentsQuery struct {
	Status      string `form:"status" binding:"omitempty,oneof=CREATED PENDING PAID FAILED REFUNDING REFUNDED"`
	PaymentType string `form:"payment_type" binding:"omitempty,oneof=GATEWAY_A GATEWAY_B BALANCE"`
	OrderNo     string `form:"order_no" binding:"max=64"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=100"`
	SortBy      string `form:"sort_by" binding:"max=32"`
	SortOrder   string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// CreatePayment godoc
//
//	@ID				createPayment
//	@Summary		Create a payment
//	@Description	Open a payment for an order. Repeating the same request inside the idempotency window is rejected. Risk control may refuse the request with 403.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreatePaymentRequest	true	"Payment"
//	@Success		201		{object}	APIResponse[paymentapp.PaymentDTO]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/payments [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.ledger.CreatePayment(c.Request.Context(), paymentapp.CreatePaymentInput{
		OrderNo:     req.OrderNo,
		UserID:      req.UserID,
		Amount:      req.Amount,
		PaymentType: req.PaymentType,
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// CreateRecharge godoc
//
//	@ID				createRecharge
//	@Summary		Create a balance recharge
//	@Description	Open a provider payment that credits the user's stored-value balance once it is paid. Initiate it like any other payment.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateRechargeRequest	true	"Recharge"
//	@Success		201		{object}	APIResponse[paymentapp.PaymentDTO]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Router			/recharges [post]
func (h *PaymentHandler) CreateRecharge(c *gin.Context) {
	var req CreateRechargeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.ledger.CreateRecharge(c.Request.Context(), paymentapp.RechargeInput{
		UserID:      req.UserID,
		Amount:      req.Amount,
		PaymentType: req.PaymentType,
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// InitiatePayment godoc
//
//	@ID				initiatePayment
//	@Summary		Build provider parameters
//	@Description	Produce the signed parameter bundle the client hands to the provider and move the payment to PENDING
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			paymentNo	path		string					true	"Payment number"
//	@Param			request		body		InitiatePaymentRequest	false	"Options"
//	@Success		200			{object}	APIResponse[paymentapp.InitiateResult]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Failure		502			{object}	ErrorResponse
//	@Router			/payments/{paymentNo}/initiate [post]
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	paymentNo := c.Param("paymentNo")
	ctx := logger.WithPaymentNo(c.Request.Context(), paymentNo)
	result, err := h.ledger.InitiatePayment(ctx, paymentNo, payment.CreateParamsOptions{
		Subject:   req.Subject,
		ClientIP:  c.ClientIP(),
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetPayment godoc
//
//	@ID				getPayment
//	@Summary		Get a payment
//	@Description	Return a payment together with its refunds
//	@Tags			payments
//	@Produce		json
//	@Param			paymentNo	path		string	true	"Payment number"
//	@Success		200			{object}	APIResponse[paymentapp.PaymentDTO]
//	@Failure		404			{object}	ErrorResponse
//	@Router			/payments/{paymentNo} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	result, err := h.ledger.GetPayment(c.Request.Context(), c.Param("paymentNo"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListPayments godoc
//
//	@ID				listPayments
//	@Summary		List payments
//	@Tags			payments
//	@Produce		json
//	@Param			status			query		string	false	"Payment status"
//	@Param			payment_type	query		string	false	"Payment type"
//	@Param			order_no		query		string	false	"Order number"
//	@Param			limit			query		int		false	"Maximum rows"	default(20)	maximum(100)
//	@Param			sort_by			query		string	false	"Sort field"	default(created_at)
//	@Param			sort_order		query		string	false	"asc or desc"	default(desc)
//	@Success		200				{object}	APIResponse[[]paymentapp.PaymentDTO]
//	@Failure		400				{object}	ErrorResponse
//	@Router			/payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var q ListPaymentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	result, err := h.ledger.ListPayments(c.Request.Context(), payment.PaymentFilter{
		Status:      payment.PaymentStatus(q.Status),
		PaymentType: payment.PaymentType(q.PaymentType),
		OrderNo:     strings.TrimSpace(q.OrderNo),
		Limit:       q.Limit,
		SortBy:      q.SortBy,
		SortOrder:   q.SortOrder,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// SyncPayment godoc
//
//	@ID				syncPayment
//	@Summary		Sync a payment with its provider
//	@Description	Query the provider and apply a terminal result to a PENDING payment
//	@Tags			payments
//	@Produce		json
//	@Param			paymentNo	path		string	true	"Payment number"
//	@Success		200			{object}	APIResponse[paymentapp.PaymentDTO]
//	@Failure		404			{object}	ErrorResponse
//	@Failure		502			{object}	ErrorResponse
//	@Router			/payments/{paymentNo}/sync [post]
func (h *PaymentHandler) SyncPayment(c *gin.Context) {
	paymentNo := c.Param("paymentNo")
	ctx := logger.WithPaymentNo(c.Request.Context(), paymentNo)
	result, err := h.ledger.SyncWithGateway(ctx, paymentNo)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RequestRefund godoc
//
//	@ID				requestRefund
//	@Summary		Refund a payment
//	@Description	Start a full or partial refund. A refund the provider has not settled yet is answered with 202; a provider outage fails the refund and answers 502.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			paymentNo	path		string			true	"Payment number"
//	@Param			request		body		RefundRequest	true	"Refund"
//	@Success		201			{object}	APIResponse[paymentapp.RefundDTO]
//	@Success		202			{object}	APIResponse[paymentapp.RefundDTO]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Failure		502			{object}	ErrorResponse
//	@Router			/payments/{paymentNo}/refunds [post]
func (h *PaymentHandler) RequestRefund(c *gin.Context) {
	var req RefundRequest
	if !h.BindJSON(c, &req) {
		return
	}

	paymentNo := c.Param("paymentNo")
	ctx := logger.WithPaymentNo(c.Request.Context(), paymentNo)
	result, err := h.ledger.RequestRefund(ctx, paymentapp.RefundInput{
		PaymentNo: paymentNo,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Status == string(payment.RefundStatusPending) {
		h.Accepted(c, result)
		return
	}
	h.Created(c, result)
}
