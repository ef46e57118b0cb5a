package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Gateway Errors
// ---------------------------------------------------------------------------

var (
	ErrGatewayNotRegistered   = errors.New("payment: gateway not registered")
	ErrCallbackNotSupported   = errors.New("payment: gateway does not accept callbacks")
	ErrStatementNotAvailable  = errors.New("payment: settlement statement not available")
	ErrGatewayInvalidResponse = errors.New("payment: invalid gateway response")
	ErrInsufficientBalance    = errors.New("payment: insufficient balance")
)

// ---------------------------------------------------------------------------
// Provider-side statuses
// ---------------------------------------------------------------------------

// ProviderStatus is the trade status as reported by a provider, normalized
// across providers
type ProviderStatus string

const (
	ProviderStatusPending ProviderStatus = "PENDING"
	ProviderStatusSuccess ProviderStatus = "SUCCESS"
	ProviderStatusFailed  ProviderStatus = "FAILED"
	ProviderStatusClosed  ProviderStatus = "CLOSED"
	// ProviderStatusRefunded is reported for trades that settled and were
	// later refunded in full
	ProviderStatusRefunded ProviderStatus = "REFUNDED"
)

// IsSettled reports whether money moved for the trade
func (s ProviderStatus) IsSettled() bool {
	return s == ProviderStatusSuccess || s == ProviderStatusRefunded
}

// IsFinalFailure reports whether the provider will never settle the trade
func (s ProviderStatus) IsFinalFailure() bool {
	return s == ProviderStatusFailed || s == ProviderStatusClosed
}

func (s ProviderStatus) String() string {
	return string(s)
}

// CallbackKind distinguishes payment and refund notifications
type CallbackKind string

const (
	CallbackKindPayment CallbackKind = "payment"
	CallbackKindRefund  CallbackKind = "refund"
)

// ---------------------------------------------------------------------------
// Gateway request/response types
// ---------------------------------------------------------------------------

// CreateParamsOptions carries per-request inputs for building the parameter bundle
type CreateParamsOptions struct {
	Subject   string
	ClientIP  string
	ReturnURL string
}

// PaymentParams is the opaque, signed bundle the client presents to the provider
type PaymentParams struct {
	PaymentNo   string            `json:"payment_no"`
	PaymentType PaymentType       `json:"payment_type"`
	Params      map[string]string `json:"params"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	ExpireAt    time.Time         `json:"expire_at"`
	// Settled is true when the gateway settled the payment synchronously
	// (internal balance). TransactionID is then the settlement reference.
	Settled       bool      `json:"settled"`
	TransactionID string    `json:"transaction_id,omitempty"`
	SettledAt     time.Time `json:"settled_at,omitempty"`
}

// CallbackRequest is a raw inbound provider notification
type CallbackRequest struct {
	Kind     CallbackKind
	Body     []byte
	Headers  map[string]string
	RemoteIP string
}

// Header returns a header value, ignoring case of the lookup key when the
// exact key is absent
func (r *CallbackRequest) Header(key string) string {
	if v, ok := r.Headers[key]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// CallbackResult is what the provider claims happened. It is never applied
// to the ledger by the gateway itself.
type CallbackResult struct {
	Kind          CallbackKind
	PaymentNo     string
	OrderNo       string
	TransactionID string
	Status        ProviderStatus
	Amount        decimal.Decimal
	PaidAt        time.Time

	// Refund notifications only
	RefundNo        string
	GatewayRefundID string
	RefundStatus    RefundStatus
	FailReason      string
}

// GatewayQueryResult is the provider's current view of a trade
type GatewayQueryResult struct {
	PaymentNo     string
	TransactionID string
	Status        ProviderStatus
	Amount        decimal.Decimal
	PaidAt        *time.Time
	Message       string
}

// GatewayRefundRequest asks the provider to refund part or all of a trade
type GatewayRefundRequest struct {
	PaymentNo     string
	TransactionID string
	RefundNo      string
	TotalAmount   decimal.Decimal
	RefundAmount  decimal.Decimal
	Reason        string
}

// GatewayRefundResult is the provider's synchronous answer to a refund request.
// PENDING means the outcome arrives later through a refund callback.
type GatewayRefundResult struct {
	RefundNo        string
	GatewayRefundID string
	Status          RefundStatus
	Message         string
}

// StatementEntry is one line of a provider settlement statement
type StatementEntry struct {
	TransactionID string
	PaymentNo     string
	Amount        decimal.Decimal
	Status        ProviderStatus
	TradeTime     time.Time
}

// ---------------------------------------------------------------------------
// Gateway port
// ---------------------------------------------------------------------------

// Gateway translates ledger intents into provider calls. Implementations
// never mutate ledger state and never retry on their own; timeouts and 5xx
// responses surface as GatewayError.
type Gateway interface {
	Type() PaymentType

	// CreatePaymentParams builds and signs the initiation bundle
	CreatePaymentParams(ctx context.Context, p *Payment, opts CreateParamsOptions) (*PaymentParams, error)

	// ParseCallback verifies and decodes a provider notification. Failures are
	// SignatureError or ValidationError.
	ParseCallback(ctx context.Context, req *CallbackRequest) (*CallbackResult, error)

	QueryStatus(ctx context.Context, paymentNo string) (*GatewayQueryResult, error)

	RequestRefund(ctx context.Context, req *GatewayRefundRequest) (*GatewayRefundResult, error)

	// FetchStatement returns the settled trades for the calendar day of date
	FetchStatement(ctx context.Context, date time.Time) ([]StatementEntry, error)

	// CallbackAck renders the acknowledgement body the provider expects
	CallbackAck(success bool, message string) (contentType string, body []byte)
}

// GatewayRegistry resolves gateways by payment type
type GatewayRegistry interface {
	Get(paymentType PaymentType) (Gateway, error)
	Types() []PaymentType
}

// BalanceTrade is one movement on a stored-value account
type BalanceTrade struct {
	TransactionID string
	UserID        string
	Reference     string // payment, refund or recharge reversal reference
	Amount        decimal.Decimal
	Credit        bool
	CreatedAt     time.Time
}

// BalanceAccount is the internal stored-value ledger behind BALANCE payments.
// Debit and Credit are idempotent on reference: repeating a call returns the
// original trade instead of moving money twice.
type BalanceAccount interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*BalanceTrade, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*BalanceTrade, error)
	// FindTrade returns shared.ErrNotFound when no trade carries reference
	FindTrade(ctx context.Context, reference string) (*BalanceTrade, error)
	// Debits lists debits created in [from, to)
	Debits(ctx context.Context, from, to time.Time) ([]BalanceTrade, error)
}
