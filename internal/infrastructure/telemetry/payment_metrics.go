package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// PaymentMetrics holds the service's business instruments. A nil
// *PaymentMetrics records nothing.
type PaymentMetrics struct {
	transitions     *Counter
	callbacks       *Counter
	outboxPublished *Counter
	outboxDead      *Counter
	consumerDead    *Counter
	diffs           *Counter
	alerts          *Counter
	gatewayLatency  *Histogram
}

// NewPaymentMetrics registers the instruments on meter
func NewPaymentMetrics(meter metric.Meter) (*PaymentMetrics, error) {
	m := &PaymentMetrics{}
	counters := []struct {
		dst               **Counter
		name, description string
	}{
		{&m.transitions, "paycore_payment_transitions_total", "Payment status transitions"},
		{&m.callbacks, "paycore_callbacks_total", "Gateway callbacks by outcome"},
		{&m.outboxPublished, "paycore_outbox_published_total", "Outbox entries delivered to the broker"},
		{&m.outboxDead, "paycore_outbox_dead_total", "Outbox entries that exhausted retries"},
		{&m.consumerDead, "paycore_consumer_dead_letters_total", "Messages moved to a dead-letter queue"},
		{&m.diffs, "paycore_reconciliation_diffs_total", "Reconciliation records by diff type"},
		{&m.alerts, "paycore_integrity_alerts_total", "Integrity alerts raised by reconciliation"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.description, "1")
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	h, err := NewHistogram(meter, HistogramOpts{
		Name:        "paycore_gateway_request_duration_seconds",
		Description: "Outbound gateway call latency",
		Unit:        "s",
		Boundaries:  GatewayDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	m.gatewayLatency = h
	return m, nil
}

// NewNoopPaymentMetrics returns instruments backed by the no-op meter
func NewNoopPaymentMetrics() *PaymentMetrics {
	m, _ := NewPaymentMetrics(noop.NewMeterProvider().Meter(TracerName))
	return m
}

// Transition counts a status change
func (m *PaymentMetrics) Transition(ctx context.Context, paymentType, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Inc(ctx, AttrPaymentType.String(paymentType), AttrFromStatus.String(from), AttrPaymentStatus.String(to))
}

// Callback counts a processed gateway callback
func (m *PaymentMetrics) Callback(ctx context.Context, paymentType, kind, outcome string) {
	if m == nil {
		return
	}
	m.callbacks.Inc(ctx, AttrPaymentType.String(paymentType), AttrCallbackKind.String(kind), AttrOutcome.String(outcome))
}

// OutboxPublished counts a delivered outbox entry
func (m *PaymentMetrics) OutboxPublished(ctx context.Context, routingKey string) {
	if m == nil {
		return
	}
	m.outboxPublished.Inc(ctx, AttrRoutingKey.String(routingKey))
}

// OutboxDead counts an outbox entry that reached DEAD
func (m *PaymentMetrics) OutboxDead(ctx context.Context, routingKey string) {
	if m == nil {
		return
	}
	m.outboxDead.Inc(ctx, AttrRoutingKey.String(routingKey))
}

// ConsumerDeadLetter counts a message routed to a dead-letter queue
func (m *PaymentMetrics) ConsumerDeadLetter(ctx context.Context, routingKey string) {
	if m == nil {
		return
	}
	m.consumerDead.Inc(ctx, AttrRoutingKey.String(routingKey))
}

// Diffs adds n records of diffType
func (m *PaymentMetrics) Diffs(ctx context.Context, paymentType, diffType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.diffs.Add(ctx, int64(n), AttrPaymentType.String(paymentType), AttrDiffType.String(diffType))
}

// IntegrityAlert counts a MISSING_INTERNAL alert
func (m *PaymentMetrics) IntegrityAlert(ctx context.Context, paymentType string) {
	if m == nil {
		return
	}
	m.alerts.Inc(ctx, AttrPaymentType.String(paymentType))
}

// GatewayCall records the latency of a gateway operation
func (m *PaymentMetrics) GatewayCall(ctx context.Context, paymentType, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayLatency.RecordDuration(ctx, d, []attribute.KeyValue{
		AttrPaymentType.String(paymentType),
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
	}...)
}
