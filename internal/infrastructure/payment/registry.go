package payment

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/telemetry"
)

// providerZone is the zone both external providers use for wall-clock
// timestamps without an offset
var providerZone = time.FixedZone("UTC+8", 8*60*60)

// AdapterOption configures an adapter
type AdapterOption func(*adapterOptions)

type adapterOptions struct {
	doer    HTTPDoer
	metrics *telemetry.PaymentMetrics
	now     func() time.Time
}

// WithHTTPDoer replaces the HTTP client, mostly for tests
func WithHTTPDoer(doer HTTPDoer) AdapterOption {
	return func(o *adapterOptions) {
		o.doer = doer
	}
}

// WithMetrics records call latency on m
func WithMetrics(m *telemetry.PaymentMetrics) AdapterOption {
	return func(o *adapterOptions) {
		o.metrics = m
	}
}

// WithClock pins the adapter's notion of now
func WithClock(now func() time.Time) AdapterOption {
	return func(o *adapterOptions) {
		o.now = now
	}
}

func newAdapterOptions(connectTimeout, requestTimeout time.Duration, opts []AdapterOption) *adapterOptions {
	o := &adapterOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.doer == nil {
		o.doer = NewHTTPClient(connectTimeout, requestTimeout)
	}
	return o
}

// Registry resolves gateways by payment type
type Registry struct {
	mu       sync.RWMutex
	gateways map[payment.PaymentType]payment.Gateway
}

// NewRegistry creates a registry holding gateways
func NewRegistry(gateways ...payment.Gateway) *Registry {
	r := &Registry{gateways: make(map[payment.PaymentType]payment.Gateway)}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

// Register adds g, replacing any gateway of the same type
func (r *Registry) Register(g payment.Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Type()] = g
}

// Get returns the gateway for paymentType
func (r *Registry) Get(paymentType payment.PaymentType) (payment.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[paymentType]
	if !ok {
		return nil, shared.WrapDomainError(shared.CodeValidation,
			"payment type "+paymentType.String()+" is not available", payment.ErrGatewayNotRegistered)
	}
	return g, nil
}

// Types lists the registered payment types in a stable order
func (r *Registry) Types() []payment.PaymentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]payment.PaymentType, 0, len(r.gateways))
	for t := range r.gateways {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ParseGatewayName maps a webhook path segment such as "gateway_a" or
// "GATEWAY-A" to its payment type
func ParseGatewayName(name string) (payment.PaymentType, bool) {
	t := payment.PaymentType(strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
	return t, t.IsValid()
}

func parseProviderTime(layout, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(layout, value, providerZone)
	if err != nil {
		return time.Time{}
	}
	return t
}

func joinReason(code, message string) string {
	switch {
	case code == "":
		return message
	case message == "":
		return code
	}
	return code + ": " + message
}

var _ payment.GatewayRegistry = (*Registry)(nil)
