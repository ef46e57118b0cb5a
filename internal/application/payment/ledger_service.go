package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/telemetry"
)

const (
	lockKeyPrefix = "payment:lock:"

	defaultLockTTL             = 10 * time.Second
	defaultLockWait            = 3 * time.Second
	defaultIdempotencyWindow   = time.Minute
	defaultGatewayMaxRetries   = 2
	defaultGatewayRetryBackoff = 200 * time.Millisecond
)

// IdempotencyTokens derives and claims creation tokens
type IdempotencyTokens interface {
	Issue(userID, orderRef string, window time.Duration) string
	Claim(ctx context.Context, token string, window time.Duration) error
	Release(ctx context.Context, token string) error
}

// LedgerServiceConfig holds the collaborators and tuning of the ledger service
type LedgerServiceConfig struct {
	Store    payment.LedgerStore
	Gateways payment.GatewayRegistry
	Locker   shared.Locker
	Tokens   IdempotencyTokens
	Metrics  *telemetry.PaymentMetrics
	Logger   *zap.Logger
	// Risk screens new payments; nil admits every request
	Risk *RiskControl

	LockTTL             time.Duration
	LockWait            time.Duration
	IdempotencyWindow   time.Duration
	GatewayMaxRetries   int
	GatewayRetryBackoff time.Duration

	// Now is the clock used for payment and refund numbers
	Now func() time.Time
}

// LedgerService owns every payment status transition. Each mutation runs
// under the per-payment lock and commits the row together with its outbox
// events.
type LedgerService struct {
	store    payment.LedgerStore
	gateways payment.GatewayRegistry
	locker   shared.Locker
	tokens   IdempotencyTokens
	metrics  *telemetry.PaymentMetrics
	logger   *zap.Logger
	risk     *RiskControl

	lockTTL      time.Duration
	lockWait     time.Duration
	window       time.Duration
	maxRetries   int
	retryBackoff time.Duration
	now          func() time.Time
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(config LedgerServiceConfig) *LedgerService {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopPaymentMetrics()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	s := &LedgerService{
		store:        config.Store,
		gateways:     config.Gateways,
		locker:       config.Locker,
		tokens:       config.Tokens,
		risk:         config.Risk,
		metrics:      metrics,
		logger:       log,
		lockTTL:      config.LockTTL,
		lockWait:     config.LockWait,
		window:       config.IdempotencyWindow,
		maxRetries:   config.GatewayMaxRetries,
		retryBackoff: config.GatewayRetryBackoff,
		now:          now,
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.lockWait <= 0 {
		s.lockWait = defaultLockWait
	}
	if s.window <= 0 {
		s.window = defaultIdempotencyWindow
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	} else if s.maxRetries == 0 {
		s.maxRetries = defaultGatewayMaxRetries
	}
	if s.retryBackoff <= 0 {
		s.retryBackoff = defaultGatewayRetryBackoff
	}
	return s
}

func (s *LedgerService) log(ctx context.Context) *logger.ContextLogger {
	return logger.WithLogger(ctx, s.logger)
}

// CreatePayment opens a payment for an order. A repeat of the same request
// inside the idempotency window, or an order that already has a live payment,
// is rejected as a duplicate. Risk control may refuse the request first.
func (s *LedgerService) CreatePayment(ctx context.Context, input CreatePaymentInput) (*PaymentDTO, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if payment.IsRechargeOrderNo(input.OrderNo) {
		return nil, shared.NewValidationError("order number %s is reserved for balance recharges", input.OrderNo)
	}
	return s.openPayment(ctx, input)
}

// CreateRecharge opens a payment that tops up the user's stored-value
// balance once it is paid. The balance is credited by the recharge consumer
// when the success event arrives.
func (s *LedgerService) CreateRecharge(ctx context.Context, input RechargeInput) (*PaymentDTO, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if payment.PaymentType(strings.ToUpper(input.PaymentType)) == payment.PaymentTypeBalance {
		return nil, shared.NewValidationError("balance cannot be recharged from balance")
	}
	dto, err := s.openPayment(ctx, CreatePaymentInput{
		OrderNo:     payment.NewRechargeNo(s.now()),
		UserID:      input.UserID,
		Amount:      input.Amount,
		PaymentType: input.PaymentType,
		ClientIP:    input.ClientIP,
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx).Info("Recharge created",
		zap.String("payment_no", dto.PaymentNo),
		zap.String("recharge_no", dto.OrderNo),
		zap.String("user_id", dto.UserID))
	return dto, nil
}

func (s *LedgerService) openPayment(ctx context.Context, input CreatePaymentInput) (*PaymentDTO, error) {
	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		return nil, shared.NewValidationError("invalid amount %q", input.Amount)
	}
	paymentType := payment.PaymentType(strings.ToUpper(input.PaymentType))
	if !paymentType.IsValid() {
		return nil, shared.NewValidationError("invalid payment type %q", input.PaymentType)
	}
	if _, err := s.gateways.Get(paymentType); err != nil {
		return nil, err
	}
	if err := s.screen(ctx, input, amount, paymentType); err != nil {
		return nil, err
	}

	var token string
	if s.tokens != nil {
		token = s.tokens.Issue(input.UserID, input.OrderNo+"|"+amount.StringFixed(2)+"|"+string(paymentType), s.window)
		if err := s.tokens.Claim(ctx, token, s.window); err != nil {
			s.log(ctx).Warn("Duplicate payment creation rejected",
				zap.String("order_no", input.OrderNo),
				zap.String("user_id", input.UserID))
			return nil, err
		}
	}

	p, err := s.createPayment(ctx, input, amount, paymentType)
	if err != nil {
		if token != "" {
			if releaseErr := s.tokens.Release(ctx, token); releaseErr != nil {
				s.log(ctx).Warn("Failed to release idempotency token", zap.Error(releaseErr))
			}
		}
		return nil, err
	}

	s.log(ctx).Info("Payment created",
		zap.String("payment_no", p.PaymentNo),
		zap.String("order_no", p.OrderNo),
		zap.String("payment_type", string(p.PaymentType)),
		zap.String("amount", p.Amount.StringFixed(2)))
	return ToPaymentDTO(p, nil), nil
}

// screen runs risk control. An unreachable counter store admits the request.
func (s *LedgerService) screen(ctx context.Context, input CreatePaymentInput, amount decimal.Decimal, paymentType payment.PaymentType) error {
	if s.risk == nil {
		return nil
	}
	subject := payment.RiskSubject{
		UserID:      input.UserID,
		OrderNo:     input.OrderNo,
		Amount:      amount,
		PaymentType: paymentType,
		ClientIP:    input.ClientIP,
	}
	assessment, err := s.risk.Assess(ctx, subject)
	if err != nil {
		s.log(ctx).Warn("Risk check unavailable, request admitted",
			zap.String("order_no", input.OrderNo),
			zap.Error(err))
		return nil
	}
	if assessment.Block {
		s.log(ctx).Warn("Payment rejected by risk control",
			zap.String("order_no", input.OrderNo),
			zap.String("user_id", input.UserID),
			zap.String("risk_level", assessment.Level.String()),
			zap.Any("details", assessment.Details))
		return shared.NewRiskRejectedError("%s", assessment.Reason)
	}
	if assessment.Level > payment.RiskLow {
		s.log(ctx).Info("Payment admitted with elevated risk",
			zap.String("order_no", input.OrderNo),
			zap.String("risk_level", assessment.Level.String()),
			zap.Any("details", assessment.Details))
	}
	if err := s.risk.RecordAttempt(ctx, subject); err != nil {
		s.log(ctx).Warn("Failed to record payment attempt", zap.Error(err))
	}
	return nil
}

// recordOutcome feeds a settled payment back to risk control
func (s *LedgerService) recordOutcome(ctx context.Context, p *payment.Payment, paid bool) {
	if s.risk == nil {
		return
	}
	if err := s.risk.RecordOutcome(ctx, p.UserID, paid); err != nil {
		s.log(ctx).Warn("Failed to record payment outcome",
			zap.String("payment_no", p.PaymentNo),
			zap.Error(err))
	}
}

func (s *LedgerService) createPayment(ctx context.Context, input CreatePaymentInput, amount decimal.Decimal, paymentType payment.PaymentType) (*payment.Payment, error) {
	existing, err := s.store.Payments().FindActiveByOrderNo(ctx, input.OrderNo)
	if err == nil {
		return nil, shared.NewDuplicateRequestError("order %s already has payment %s in status %s",
			input.OrderNo, existing.PaymentNo, existing.Status)
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	p, err := payment.NewPayment(payment.NewPaymentNo(s.now()), input.OrderNo, input.UserID, amount, paymentType)
	if err != nil {
		return nil, err
	}
	if err := s.store.Payments().Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// InitiatePayment builds the client-side parameters for the provider and
// moves the payment to PENDING. Gateways that settle synchronously confirm
// the payment in the same call.
func (s *LedgerService) InitiatePayment(ctx context.Context, paymentNo string, opts payment.CreateParamsOptions) (*InitiateResult, error) {
	p, err := s.store.Payments().FindByPaymentNo(ctx, paymentNo)
	if err != nil {
		return nil, err
	}
	if p.Status != payment.PaymentStatusCreated && p.Status != payment.PaymentStatusPending {
		return nil, shared.NewStateConflictError("cannot initiate payment %s in status %s", p.PaymentNo, p.Status)
	}
	gateway, err := s.gateways.Get(p.PaymentType)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	params, err := gateway.CreatePaymentParams(ctx, p, opts)
	s.metrics.GatewayCall(ctx, string(p.PaymentType), "create", time.Since(started), err)
	if err != nil {
		s.log(ctx).Warn("Gateway rejected payment creation",
			zap.String("payment_no", paymentNo),
			zap.Error(err))
		return nil, err
	}

	var settled bool
	updated, err := s.mutate(ctx, paymentNo, func(_ payment.LedgerTx, p *payment.Payment) (bool, error) {
		changed := false
		settled = false
		if p.Status == payment.PaymentStatusCreated {
			if err := p.MarkPending(); err != nil {
				return false, err
			}
			changed = true
		}
		if params.Settled {
			confirmed, err := p.ConfirmPaid(params.TransactionID, params.SettledAt)
			if err != nil {
				return false, err
			}
			settled = confirmed
			changed = changed || confirmed
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if settled {
		s.recordOutcome(ctx, updated, true)
	}
	return &InitiateResult{Payment: ToPaymentDTO(updated, nil), Params: params}, nil
}

// MarkPending moves a CREATED payment to PENDING
func (s *LedgerService) MarkPending(ctx context.Context, paymentNo string) (*PaymentDTO, error) {
	p, err := s.mutate(ctx, paymentNo, func(_ payment.LedgerTx, p *payment.Payment) (bool, error) {
		return true, p.MarkPending()
	})
	if err != nil {
		return nil, err
	}
	return ToPaymentDTO(p, nil), nil
}

// ConfirmPaid records the provider's settlement. Confirming an already PAID
// payment with the same transaction id changes nothing.
func (s *LedgerService) ConfirmPaid(ctx context.Context, paymentNo, transactionID string, payTime time.Time) (*PaymentDTO, error) {
	var changed bool
	p, err := s.mutate(ctx, paymentNo, func(_ payment.LedgerTx, p *payment.Payment) (bool, error) {
		var err error
		changed, err = p.ConfirmPaid(transactionID, payTime)
		return changed, err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.recordOutcome(ctx, p, true)
	}
	return ToPaymentDTO(p, nil), nil
}

// MarkFailed moves a PENDING payment to FAILED
func (s *LedgerService) MarkFailed(ctx context.Context, paymentNo, reason string) (*PaymentDTO, error) {
	var changed bool
	p, err := s.mutate(ctx, paymentNo, func(_ payment.LedgerTx, p *payment.Payment) (bool, error) {
		changed = p.Status != payment.PaymentStatusFailed
		if !changed {
			return false, nil
		}
		return true, p.MarkFailed(reason)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.recordOutcome(ctx, p, false)
	}
	return ToPaymentDTO(p, nil), nil
}

// StartRefund moves a PAID payment to REFUNDING and stores a PENDING refund
// record. It does not contact the provider.
func (s *LedgerService) StartRefund(ctx context.Context, paymentNo string, amount decimal.Decimal, reason string) (*RefundDTO, *payment.Payment, error) {
	var refund *payment.RefundRecord
	p, err := s.mutate(ctx, paymentNo, func(tx payment.LedgerTx, p *payment.Payment) (bool, error) {
		r, err := p.StartRefund(payment.NewRefundNo(s.now()), amount, reason)
		if err != nil {
			return false, err
		}
		if err := tx.Refunds().Create(ctx, r); err != nil {
			return false, err
		}
		refund = r
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log(ctx).Info("Refund started",
		zap.String("payment_no", paymentNo),
		zap.String("refund_no", refund.RefundNo),
		zap.String("amount", refund.RefundAmount.StringFixed(2)))
	return ToRefundDTO(refund), p, nil
}

// RequestRefund starts a refund and submits it to the provider. Transient
// provider errors are retried under the same refund number; once retries are
// exhausted the refund is failed, the payment returns to its prior status and
// the provider error is returned. A provider that answers settles the refund
// immediately, and one that accepts it asynchronously leaves it PENDING for
// its callback.
func (s *LedgerService) RequestRefund(ctx context.Context, input RefundInput) (*RefundDTO, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		return nil, shared.NewValidationError("invalid refund amount %q", input.Amount)
	}

	refund, p, err := s.StartRefund(ctx, input.PaymentNo, amount, input.Reason)
	if err != nil {
		return nil, err
	}

	result, err := s.submitRefund(ctx, p, &payment.GatewayRefundRequest{
		PaymentNo:     p.PaymentNo,
		TransactionID: p.TransactionID,
		RefundNo:      refund.RefundNo,
		TotalAmount:   p.Amount,
		RefundAmount:  amount,
		Reason:        input.Reason,
	})
	if err != nil {
		s.log(ctx).Warn("Refund submission failed, reverting refund",
			zap.String("payment_no", p.PaymentNo),
			zap.String("refund_no", refund.RefundNo),
			zap.Error(err))
		failed, failErr := s.FailRefund(ctx, refund.RefundNo, "submission failed: "+err.Error())
		if failErr != nil {
			s.log(ctx).Error("Failed to revert refund after submission error",
				zap.String("refund_no", refund.RefundNo),
				zap.Error(failErr))
			return refund, errors.Join(err, failErr)
		}
		return failed, err
	}

	switch result.Status {
	case payment.RefundStatusSuccess:
		return s.CompleteRefund(ctx, refund.RefundNo, result.GatewayRefundID)
	case payment.RefundStatusFailed:
		return s.FailRefund(ctx, refund.RefundNo, result.Message)
	default:
		return refund, nil
	}
}

func (s *LedgerService) submitRefund(ctx context.Context, p *payment.Payment, req *payment.GatewayRefundRequest) (*payment.GatewayRefundResult, error) {
	gateway, err := s.gateways.Get(p.PaymentType)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retryBackoff << (attempt - 1)):
			}
		}
		started := time.Now()
		result, err := gateway.RequestRefund(ctx, req)
		s.metrics.GatewayCall(ctx, string(p.PaymentType), "refund", time.Since(started), err)
		if err == nil {
			return result, nil
		}
		if !shared.IsGatewayError(err) {
			return nil, err
		}
		lastErr = err
		s.log(ctx).Warn("Refund submission attempt failed",
			zap.String("refund_no", req.RefundNo),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, lastErr
}

// CompleteRefund settles a pending refund and moves its payment to REFUNDED.
// Completing an already successful refund is a no-op.
func (s *LedgerService) CompleteRefund(ctx context.Context, refundNo, gatewayRefundID string) (*RefundDTO, error) {
	return s.settleRefund(ctx, refundNo, func(p *payment.Payment, r *payment.RefundRecord) (bool, error) {
		changed, err := r.Complete(gatewayRefundID)
		if err != nil || !changed {
			return false, err
		}
		return true, p.CompleteRefund(r)
	})
}

// FailRefund marks a pending refund FAILED and returns its payment to PAID.
// Failing an already failed refund is a no-op.
func (s *LedgerService) FailRefund(ctx context.Context, refundNo, reason string) (*RefundDTO, error) {
	return s.settleRefund(ctx, refundNo, func(p *payment.Payment, r *payment.RefundRecord) (bool, error) {
		changed, err := r.Fail(reason)
		if err != nil || !changed {
			return false, err
		}
		return true, p.FailRefund(r)
	})
}

func (s *LedgerService) settleRefund(ctx context.Context, refundNo string, apply func(p *payment.Payment, r *payment.RefundRecord) (bool, error)) (*RefundDTO, error) {
	existing, err := s.store.Refunds().FindByRefundNo(ctx, refundNo)
	if err != nil {
		return nil, err
	}

	var settled *payment.RefundRecord
	_, err = s.mutate(ctx, existing.PaymentNo, func(tx payment.LedgerTx, p *payment.Payment) (bool, error) {
		r, err := tx.Refunds().FindByRefundNo(ctx, refundNo)
		if err != nil {
			return false, err
		}
		settled = r
		expected := r.Version
		changed, err := apply(p, r)
		if err != nil || !changed {
			return false, err
		}
		return true, tx.Refunds().SaveWithLock(ctx, r, expected)
	})
	if err != nil {
		return nil, err
	}
	return ToRefundDTO(settled), nil
}

// GetPayment returns a payment with its refunds
func (s *LedgerService) GetPayment(ctx context.Context, paymentNo string) (*PaymentDTO, error) {
	p, err := s.store.Payments().FindByPaymentNo(ctx, paymentNo)
	if err != nil {
		return nil, err
	}
	refunds, err := s.store.Refunds().FindByPaymentID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return ToPaymentDTO(p, refunds), nil
}

// GetRefund returns one refund record
func (s *LedgerService) GetRefund(ctx context.Context, refundNo string) (*RefundDTO, error) {
	r, err := s.store.Refunds().FindByRefundNo(ctx, refundNo)
	if err != nil {
		return nil, err
	}
	return ToRefundDTO(r), nil
}

// ListPayments lists payments matching filter
func (s *LedgerService) ListPayments(ctx context.Context, filter payment.PaymentFilter) ([]PaymentDTO, error) {
	payments, err := s.store.Payments().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = *ToPaymentDTO(p, nil)
	}
	return out, nil
}

// QueryStatus returns the ledger's view of a payment. A PENDING payment is
// first synchronised with its provider; provider outages fall back to the
// stored state.
func (s *LedgerService) QueryStatus(ctx context.Context, paymentNo string) (*PaymentDTO, error) {
	p, err := s.store.Payments().FindByPaymentNo(ctx, paymentNo)
	if err != nil {
		return nil, err
	}
	if p.Status == payment.PaymentStatusPending {
		synced, err := s.SyncWithGateway(ctx, paymentNo)
		if err == nil {
			return synced, nil
		}
		if !shared.IsGatewayError(err) {
			return nil, err
		}
		s.log(ctx).Warn("Gateway query failed, returning stored status",
			zap.String("payment_no", paymentNo),
			zap.Error(err))
	}
	return s.GetPayment(ctx, paymentNo)
}

// SyncWithGateway asks the provider for the status of a PENDING payment and
// applies a final answer. Transient gateway errors are retried with
// exponential backoff.
func (s *LedgerService) SyncWithGateway(ctx context.Context, paymentNo string) (*PaymentDTO, error) {
	p, err := s.store.Payments().FindByPaymentNo(ctx, paymentNo)
	if err != nil {
		return nil, err
	}
	if p.Status != payment.PaymentStatusPending {
		return ToPaymentDTO(p, nil), nil
	}
	gateway, err := s.gateways.Get(p.PaymentType)
	if err != nil {
		return nil, err
	}

	result, err := s.queryWithRetry(ctx, gateway, paymentNo)
	if err != nil {
		return nil, err
	}

	switch {
	case result.Status.IsSettled():
		if result.Amount.IsPositive() && !result.Amount.Equal(p.Amount) {
			return nil, shared.NewIntegrityAlert("payment %s settled for %s but ledger amount is %s",
				paymentNo, result.Amount.StringFixed(2), p.Amount.StringFixed(2))
		}
		paidAt := s.now()
		if result.PaidAt != nil {
			paidAt = *result.PaidAt
		}
		return s.ConfirmPaid(ctx, paymentNo, result.TransactionID, paidAt)
	case result.Status.IsFinalFailure():
		reason := result.Message
		if reason == "" {
			reason = "provider reported " + result.Status.String()
		}
		return s.MarkFailed(ctx, paymentNo, reason)
	default:
		return ToPaymentDTO(p, nil), nil
	}
}

func (s *LedgerService) queryWithRetry(ctx context.Context, gateway payment.Gateway, paymentNo string) (*payment.GatewayQueryResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.retryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		started := time.Now()
		result, err := gateway.QueryStatus(ctx, paymentNo)
		s.metrics.GatewayCall(ctx, string(gateway.Type()), "query", time.Since(started), err)
		if err == nil {
			return result, nil
		}
		if !shared.IsGatewayError(err) {
			return nil, err
		}
		lastErr = err
		s.log(ctx).Warn("Gateway query failed",
			zap.String("payment_no", paymentNo),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, lastErr
}

// HandleCallback verifies and applies a provider notification and returns
// the acknowledgement body the provider expects. A duplicate notification is
// acknowledged without changing anything.
func (s *LedgerService) HandleCallback(ctx context.Context, paymentType payment.PaymentType, req *payment.CallbackRequest) (*CallbackResponse, error) {
	gateway, err := s.gateways.Get(paymentType)
	if err != nil {
		return nil, err
	}
	kind := string(req.Kind)
	if kind == "" {
		kind = string(payment.CallbackKindPayment)
	}

	result, err := gateway.ParseCallback(ctx, req)
	if err != nil {
		s.metrics.Callback(ctx, string(paymentType), kind, "rejected")
		s.log(ctx).Warn("Callback rejected",
			zap.String("payment_type", string(paymentType)),
			zap.String("remote_ip", req.RemoteIP),
			zap.Error(err))
		return ack(gateway, false, "verification failed"), err
	}
	ctx = logger.WithPaymentNo(ctx, result.PaymentNo)

	if result.Kind == payment.CallbackKindRefund {
		err = s.applyRefundCallback(ctx, result)
	} else {
		err = s.applyPaymentCallback(ctx, result)
	}
	if err != nil {
		s.metrics.Callback(ctx, string(paymentType), string(result.Kind), "error")
		s.log(ctx).Error("Callback could not be applied",
			zap.String("payment_type", string(paymentType)),
			zap.String("status", result.Status.String()),
			zap.Error(err))
		return ack(gateway, false, "processing failed"), err
	}

	s.metrics.Callback(ctx, string(paymentType), string(result.Kind), "accepted")
	return ack(gateway, true, "OK"), nil
}

func (s *LedgerService) applyPaymentCallback(ctx context.Context, result *payment.CallbackResult) error {
	p, err := s.store.Payments().FindByPaymentNo(ctx, result.PaymentNo)
	if err != nil {
		return err
	}
	switch {
	case result.Status.IsSettled():
		if result.Amount.IsPositive() && !result.Amount.Equal(p.Amount) {
			s.metrics.IntegrityAlert(ctx, string(p.PaymentType))
			return shared.NewIntegrityAlert("callback amount %s does not match payment %s amount %s",
				result.Amount.StringFixed(2), p.PaymentNo, p.Amount.StringFixed(2))
		}
		_, err = s.ConfirmPaid(ctx, p.PaymentNo, result.TransactionID, result.PaidAt)
	case result.Status.IsFinalFailure():
		reason := result.FailReason
		if reason == "" {
			reason = "provider reported " + result.Status.String()
		}
		_, err = s.MarkFailed(ctx, p.PaymentNo, reason)
	}
	return err
}

func (s *LedgerService) applyRefundCallback(ctx context.Context, result *payment.CallbackResult) error {
	var err error
	switch result.RefundStatus {
	case payment.RefundStatusSuccess:
		_, err = s.CompleteRefund(ctx, result.RefundNo, result.GatewayRefundID)
	case payment.RefundStatusFailed:
		_, err = s.FailRefund(ctx, result.RefundNo, result.FailReason)
	}
	return err
}

func ack(gateway payment.Gateway, success bool, message string) *CallbackResponse {
	contentType, body := gateway.CallbackAck(success, message)
	return &CallbackResponse{ContentType: contentType, Body: body}
}

// mutate runs fn against a freshly read payment while holding its lock and
// persists the result with an optimistic version check. fn reports whether it
// changed anything; an unchanged payment is not written. A lost version race
// is retried once.
func (s *LedgerService) mutate(ctx context.Context, paymentNo string, fn func(tx payment.LedgerTx, p *payment.Payment) (bool, error)) (*payment.Payment, error) {
	lock, err := s.locker.Acquire(ctx, lockKeyPrefix+paymentNo, s.lockTTL, s.lockWait)
	if err != nil {
		if errors.Is(err, shared.ErrLockNotAcquired) {
			return nil, shared.WrapDomainError(shared.CodeStateConflict,
				fmt.Sprintf("payment %s is being modified", paymentNo), err)
		}
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log(ctx).Warn("Failed to release payment lock",
				zap.String("payment_no", paymentNo),
				zap.Error(err))
		}
	}()

	var result *payment.Payment
	var from payment.PaymentStatus
	for attempt := 0; attempt < 2; attempt++ {
		var changed bool
		err = s.store.InTx(ctx, func(tx payment.LedgerTx) error {
			p, err := tx.Payments().FindByPaymentNo(ctx, paymentNo)
			if err != nil {
				return err
			}
			from = p.Status
			expected := p.Version
			changed, err = fn(tx, p)
			if err != nil {
				return err
			}
			result = p
			if !changed {
				return nil
			}
			if err := tx.Payments().SaveWithLock(ctx, p, expected); err != nil {
				return err
			}
			if events := p.GetDomainEvents(); len(events) > 0 {
				if err := tx.Events().Save(ctx, events...); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			result.ClearDomainEvents()
			if changed && from != result.Status {
				s.metrics.Transition(ctx, string(result.PaymentType), string(from), string(result.Status))
				s.log(ctx).Info("Payment status changed",
					zap.String("payment_no", paymentNo),
					zap.String("from", string(from)),
					zap.String("to", string(result.Status)))
			}
			return result, nil
		}
		if !isVersionConflict(err) {
			return nil, err
		}
		s.log(ctx).Warn("Version conflict on payment, retrying",
			zap.String("payment_no", paymentNo),
			zap.Int("attempt", attempt+1))
	}
	return nil, err
}

func isVersionConflict(err error) bool {
	return errors.Is(err, shared.ErrConcurrentModification)
}
