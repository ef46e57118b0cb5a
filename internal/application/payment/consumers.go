package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// Order statuses pushed to the order system
const (
	OrderStatusPaid          = "PAID"
	OrderStatusPaymentFailed = "PAYMENT_FAILED"
	OrderStatusRefunded      = "REFUNDED"
)

// OrderUpdate is the order-side change caused by a payment event
type OrderUpdate struct {
	OrderNo    string
	PaymentNo  string
	Status     string
	Amount     decimal.Decimal
	OccurredAt time.Time
}

// OrderSyncer applies payment outcomes to the order system. Implementations
// must tolerate the same update twice.
type OrderSyncer interface {
	SyncOrder(ctx context.Context, update OrderUpdate) error
}

// Notification is a user-facing message about a payment
type Notification struct {
	UserID    string
	PaymentNo string
	Title     string
	Content   string
}

// Notifier delivers notifications to users
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

func decodePaymentEvent(msg *shared.Message) (*payment.PaymentEvent, error) {
	var ev payment.PaymentEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return nil, fmt.Errorf("decode %s message %s: %w", msg.RoutingKey, msg.ID, err)
	}
	if ev.PaymentNo == "" {
		return nil, fmt.Errorf("message %s carries no payment number", msg.ID)
	}
	return &ev, nil
}

// OrderStatusSyncHandler keeps order status in step with payment events
type OrderStatusSyncHandler struct {
	orders OrderSyncer
	logger *zap.Logger
}

// NewOrderStatusSyncHandler creates a new OrderStatusSyncHandler
func NewOrderStatusSyncHandler(orders OrderSyncer, logger *zap.Logger) *OrderStatusSyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderStatusSyncHandler{orders: orders, logger: logger}
}

// RoutingKeys returns the routing keys this handler consumes
func (h *OrderStatusSyncHandler) RoutingKeys() []string {
	return []string{
		payment.RoutingKeyPaymentSuccess,
		payment.RoutingKeyPaymentFailed,
		payment.RoutingKeyPaymentRefundSuccess,
	}
}

// Handle implements shared.MessageHandler
func (h *OrderStatusSyncHandler) Handle(ctx context.Context, msg *shared.Message) error {
	ev, err := decodePaymentEvent(msg)
	if err != nil {
		return err
	}

	update := OrderUpdate{
		OrderNo:    ev.OrderNo,
		PaymentNo:  ev.PaymentNo,
		Amount:     ev.Amount,
		OccurredAt: ev.OccurredAt(),
	}
	switch msg.RoutingKey {
	case payment.RoutingKeyPaymentSuccess:
		update.Status = OrderStatusPaid
	case payment.RoutingKeyPaymentFailed:
		update.Status = OrderStatusPaymentFailed
	case payment.RoutingKeyPaymentRefundSuccess:
		update.Status = OrderStatusRefunded
		if ev.RefundAmount != nil {
			update.Amount = *ev.RefundAmount
		}
	default:
		h.logger.Debug("ignoring routing key", zap.String("routing_key", msg.RoutingKey))
		return nil
	}

	if err := h.orders.SyncOrder(ctx, update); err != nil {
		h.logger.Warn("order sync failed",
			zap.String("order_no", update.OrderNo),
			zap.String("payment_no", update.PaymentNo),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err))
		return err
	}
	h.logger.Info("order status synced",
		zap.String("order_no", update.OrderNo),
		zap.String("status", update.Status))
	return nil
}

// PaymentNotificationHandler tells users about payment outcomes
type PaymentNotificationHandler struct {
	notifier Notifier
	logger   *zap.Logger
}

// NewPaymentNotificationHandler creates a new PaymentNotificationHandler
func NewPaymentNotificationHandler(notifier Notifier, logger *zap.Logger) *PaymentNotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentNotificationHandler{notifier: notifier, logger: logger}
}

// RoutingKeys returns the routing keys this handler consumes
func (h *PaymentNotificationHandler) RoutingKeys() []string {
	return payment.AllRoutingKeys()
}

// Handle implements shared.MessageHandler
func (h *PaymentNotificationHandler) Handle(ctx context.Context, msg *shared.Message) error {
	ev, err := decodePaymentEvent(msg)
	if err != nil {
		return err
	}
	if ev.UserID == "" {
		return nil
	}

	n := Notification{UserID: ev.UserID, PaymentNo: ev.PaymentNo}
	switch msg.RoutingKey {
	case payment.RoutingKeyPaymentSuccess:
		n.Title = "Payment successful"
		n.Content = fmt.Sprintf("Order %s was paid: %s", ev.OrderNo, ev.Amount.StringFixed(2))
	case payment.RoutingKeyPaymentFailed:
		n.Title = "Payment failed"
		n.Content = fmt.Sprintf("Payment for order %s failed: %s", ev.OrderNo, ev.Reason)
	case payment.RoutingKeyPaymentRefundSuccess:
		n.Title = "Refund completed"
		n.Content = fmt.Sprintf("Refund %s for order %s completed", ev.RefundNo, ev.OrderNo)
	case payment.RoutingKeyPaymentRefundFailed:
		n.Title = "Refund failed"
		n.Content = fmt.Sprintf("Refund %s for order %s failed: %s", ev.RefundNo, ev.OrderNo, ev.Reason)
	default:
		return nil
	}
	return h.notifier.Notify(ctx, n)
}

// RechargeCreditHandler moves recharge payments into the stored-value
// ledger. A paid recharge credits the user's balance; a refunded one debits
// it. Credits are keyed by payment number and debits by the reversal
// reference of the refund, so a redelivered event moves nothing.
type RechargeCreditHandler struct {
	accounts payment.BalanceAccount
	logger   *zap.Logger
}

// NewRechargeCreditHandler creates a new RechargeCreditHandler
func NewRechargeCreditHandler(accounts payment.BalanceAccount, logger *zap.Logger) *RechargeCreditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RechargeCreditHandler{accounts: accounts, logger: logger}
}

// RoutingKeys returns the routing keys this handler consumes
func (h *RechargeCreditHandler) RoutingKeys() []string {
	return []string{
		payment.RoutingKeyPaymentSuccess,
		payment.RoutingKeyPaymentRefundSuccess,
	}
}

// Handle implements shared.MessageHandler
func (h *RechargeCreditHandler) Handle(ctx context.Context, msg *shared.Message) error {
	ev, err := decodePaymentEvent(msg)
	if err != nil {
		return err
	}
	if !payment.IsRechargeOrderNo(ev.OrderNo) {
		return nil
	}

	var trade *payment.BalanceTrade
	switch msg.RoutingKey {
	case payment.RoutingKeyPaymentSuccess:
		trade, err = h.accounts.Credit(ctx, ev.UserID, ev.Amount, ev.PaymentNo)
	case payment.RoutingKeyPaymentRefundSuccess:
		if ev.RefundAmount == nil || ev.RefundNo == "" {
			return fmt.Errorf("refund message %s for recharge %s carries no refund", msg.ID, ev.OrderNo)
		}
		trade, err = h.accounts.Debit(ctx, ev.UserID, *ev.RefundAmount, payment.RechargeReversalRef(ev.RefundNo))
	default:
		return nil
	}
	if err != nil {
		h.logger.Error("recharge balance movement failed",
			zap.String("recharge_no", ev.OrderNo),
			zap.String("payment_no", ev.PaymentNo),
			zap.String("routing_key", msg.RoutingKey),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err))
		return err
	}
	h.logger.Info("recharge applied to balance",
		zap.String("recharge_no", ev.OrderNo),
		zap.String("user_id", ev.UserID),
		zap.String("transaction_id", trade.TransactionID),
		zap.Bool("credit", trade.Credit),
		zap.String("amount", trade.Amount.StringFixed(2)))
	return nil
}

// LogOrderSyncer records order updates in the log. It stands in for the
// order service client until one is configured.
type LogOrderSyncer struct {
	Logger *zap.Logger
}

// SyncOrder implements OrderSyncer
func (s LogOrderSyncer) SyncOrder(_ context.Context, update OrderUpdate) error {
	if s.Logger != nil {
		s.Logger.Info("order update",
			zap.String("order_no", update.OrderNo),
			zap.String("payment_no", update.PaymentNo),
			zap.String("status", update.Status),
			zap.String("amount", update.Amount.StringFixed(2)))
	}
	return nil
}

// LogNotifier records notifications in the log
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify implements Notifier
func (n LogNotifier) Notify(_ context.Context, notification Notification) error {
	if n.Logger != nil {
		n.Logger.Info("user notification",
			zap.String("user_id", notification.UserID),
			zap.String("payment_no", notification.PaymentNo),
			zap.String("title", notification.Title))
	}
	return nil
}

var (
	_ shared.MessageHandler = (*OrderStatusSyncHandler)(nil)
	_ shared.MessageHandler = (*PaymentNotificationHandler)(nil)
	_ shared.MessageHandler = (*RechargeCreditHandler)(nil)
)
