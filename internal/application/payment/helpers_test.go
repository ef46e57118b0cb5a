package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// memoryLedger is a LedgerStore over maps. Transactions are serialised and
// only applied when fn returns nil.
type memoryLedger struct {
	mu       sync.Mutex
	payments map[string]payment.Payment
	refunds  map[string]payment.RefundRecord
	events   []shared.DomainEvent

	// conflicts makes the next n payment saves lose the version race
	conflicts int
	saves     int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		payments: map[string]payment.Payment{},
		refunds:  map[string]payment.RefundRecord{},
	}
}

func (l *memoryLedger) Payments() payment.PaymentRepository { return &memoryPayments{ledger: l} }
func (l *memoryLedger) Refunds() payment.RefundRepository   { return &memoryRefunds{ledger: l} }

func (l *memoryLedger) InTx(_ context.Context, fn func(tx payment.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &memoryTx{
		ledger:   l,
		payments: map[string]payment.Payment{},
		refunds:  map[string]payment.RefundRecord{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.payments {
		l.payments[k] = v
	}
	for k, v := range tx.refunds {
		l.refunds[k] = v
	}
	l.events = append(l.events, tx.events...)
	return nil
}

func (l *memoryLedger) publishedEvents() []shared.DomainEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]shared.DomainEvent(nil), l.events...)
}

func (l *memoryLedger) payment(paymentNo string) payment.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payments[paymentNo]
}

func (l *memoryLedger) refundsOf(paymentNo string) []payment.RefundRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []payment.RefundRecord
	for _, r := range l.refunds {
		if r.PaymentNo == paymentNo {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefundNo < out[j].RefundNo })
	return out
}

// seed stores p as committed state
func (l *memoryLedger) seed(p *payment.Payment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *p
	cp.ClearDomainEvents()
	l.payments[p.PaymentNo] = cp
}

type memoryTx struct {
	ledger   *memoryLedger
	payments map[string]payment.Payment
	refunds  map[string]payment.RefundRecord
	events   []shared.DomainEvent
}

func (tx *memoryTx) Payments() payment.PaymentRepository {
	return &memoryPayments{ledger: tx.ledger, tx: tx}
}
func (tx *memoryTx) Refunds() payment.RefundRepository {
	return &memoryRefunds{ledger: tx.ledger, tx: tx}
}
func (tx *memoryTx) Events() payment.EventSink { return tx }

func (tx *memoryTx) Save(_ context.Context, events ...shared.DomainEvent) error {
	tx.events = append(tx.events, events...)
	return nil
}

type memoryPayments struct {
	ledger *memoryLedger
	tx     *memoryTx
}

func (r *memoryPayments) view(fn func(all map[string]payment.Payment)) {
	if r.tx == nil {
		r.ledger.mu.Lock()
		defer r.ledger.mu.Unlock()
		fn(r.ledger.payments)
		return
	}
	merged := make(map[string]payment.Payment, len(r.ledger.payments))
	for k, v := range r.ledger.payments {
		merged[k] = v
	}
	for k, v := range r.tx.payments {
		merged[k] = v
	}
	fn(merged)
}

func (r *memoryPayments) write(p *payment.Payment) {
	cp := *p
	cp.ClearDomainEvents()
	if r.tx == nil {
		r.ledger.mu.Lock()
		defer r.ledger.mu.Unlock()
		r.ledger.payments[p.PaymentNo] = cp
		return
	}
	r.tx.payments[p.PaymentNo] = cp
}

func (r *memoryPayments) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	var found *payment.Payment
	r.view(func(all map[string]payment.Payment) {
		for _, p := range all {
			if p.ID == id {
				cp := p
				found = &cp
			}
		}
	})
	if found == nil {
		return nil, shared.NewNotFoundError("payment %s not found", id)
	}
	return found, nil
}

func (r *memoryPayments) FindByPaymentNo(_ context.Context, paymentNo string) (*payment.Payment, error) {
	var found *payment.Payment
	r.view(func(all map[string]payment.Payment) {
		if p, ok := all[paymentNo]; ok {
			found = &p
		}
	})
	if found == nil {
		return nil, shared.NewNotFoundError("payment %s not found", paymentNo)
	}
	return found, nil
}

func (r *memoryPayments) FindActiveByOrderNo(_ context.Context, orderNo string) (*payment.Payment, error) {
	var found *payment.Payment
	r.view(func(all map[string]payment.Payment) {
		for _, p := range all {
			if p.OrderNo == orderNo && p.Status != payment.PaymentStatusFailed {
				cp := p
				found = &cp
			}
		}
	})
	if found == nil {
		return nil, shared.NewNotFoundError("no active payment for order %s", orderNo)
	}
	return found, nil
}

func (r *memoryPayments) Find(_ context.Context, filter payment.PaymentFilter) ([]*payment.Payment, error) {
	var out []*payment.Payment
	r.view(func(all map[string]payment.Payment) {
		for _, p := range all {
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
			if filter.PaymentType != "" && p.PaymentType != filter.PaymentType {
				continue
			}
			if filter.OrderNo != "" && p.OrderNo != filter.OrderNo {
				continue
			}
			cp := p
			out = append(out, &cp)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentNo > out[j].PaymentNo })
	return out, nil
}

func (r *memoryPayments) Create(_ context.Context, p *payment.Payment) error {
	exists := false
	r.view(func(all map[string]payment.Payment) { _, exists = all[p.PaymentNo] })
	if exists {
		return shared.NewDuplicateRequestError("payment %s already exists", p.PaymentNo)
	}
	r.write(p)
	return nil
}

func (r *memoryPayments) SaveWithLock(_ context.Context, p *payment.Payment, expectedVersion int) error {
	var stored payment.Payment
	var ok bool
	r.view(func(all map[string]payment.Payment) { stored, ok = all[p.PaymentNo] })
	if !ok {
		return shared.NewNotFoundError("payment %s not found", p.PaymentNo)
	}
	r.ledger.saves++
	if r.ledger.conflicts > 0 {
		r.ledger.conflicts--
		return shared.NewConcurrentModificationError("payment %s was modified concurrently", p.PaymentNo)
	}
	if stored.Version != expectedVersion {
		return shared.NewConcurrentModificationError("payment %s was modified concurrently", p.PaymentNo)
	}
	r.write(p)
	return nil
}

type memoryRefunds struct {
	ledger *memoryLedger
	tx     *memoryTx
}

func (r *memoryRefunds) view(fn func(all map[string]payment.RefundRecord)) {
	if r.tx == nil {
		r.ledger.mu.Lock()
		defer r.ledger.mu.Unlock()
		fn(r.ledger.refunds)
		return
	}
	merged := make(map[string]payment.RefundRecord, len(r.ledger.refunds))
	for k, v := range r.ledger.refunds {
		merged[k] = v
	}
	for k, v := range r.tx.refunds {
		merged[k] = v
	}
	fn(merged)
}

func (r *memoryRefunds) write(rec *payment.RefundRecord) {
	cp := *rec
	if r.tx == nil {
		r.ledger.mu.Lock()
		defer r.ledger.mu.Unlock()
		r.ledger.refunds[rec.RefundNo] = cp
		return
	}
	r.tx.refunds[rec.RefundNo] = cp
}

func (r *memoryRefunds) FindByRefundNo(_ context.Context, refundNo string) (*payment.RefundRecord, error) {
	var found *payment.RefundRecord
	r.view(func(all map[string]payment.RefundRecord) {
		if rec, ok := all[refundNo]; ok {
			found = &rec
		}
	})
	if found == nil {
		return nil, shared.NewNotFoundError("refund %s not found", refundNo)
	}
	return found, nil
}

func (r *memoryRefunds) FindByPaymentID(_ context.Context, paymentID uuid.UUID) ([]*payment.RefundRecord, error) {
	var out []*payment.RefundRecord
	r.view(func(all map[string]payment.RefundRecord) {
		for _, rec := range all {
			if rec.PaymentID == paymentID {
				cp := rec
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RefundNo < out[j].RefundNo })
	return out, nil
}

func (r *memoryRefunds) FindPendingByPaymentID(ctx context.Context, paymentID uuid.UUID) (*payment.RefundRecord, error) {
	all, _ := r.FindByPaymentID(ctx, paymentID)
	for _, rec := range all {
		if rec.Status == payment.RefundStatusPending {
			return rec, nil
		}
	}
	return nil, shared.NewNotFoundError("no pending refund for payment %s", paymentID)
}

func (r *memoryRefunds) Create(_ context.Context, rec *payment.RefundRecord) error {
	r.write(rec)
	return nil
}

func (r *memoryRefunds) SaveWithLock(_ context.Context, rec *payment.RefundRecord, expectedVersion int) error {
	var stored payment.RefundRecord
	var ok bool
	r.view(func(all map[string]payment.RefundRecord) { stored, ok = all[rec.RefundNo] })
	if !ok {
		return shared.NewNotFoundError("refund %s not found", rec.RefundNo)
	}
	if stored.Version != expectedVersion {
		return shared.NewConcurrentModificationError("refund %s was modified concurrently", rec.RefundNo)
	}
	r.write(rec)
	return nil
}

// MockGateway is a mock implementation of payment.Gateway
type MockGateway struct {
	mock.Mock
	paymentType payment.PaymentType
}

func newMockGateway(paymentType payment.PaymentType) *MockGateway {
	return &MockGateway{paymentType: paymentType}
}

func (m *MockGateway) Type() payment.PaymentType { return m.paymentType }

func (m *MockGateway) CreatePaymentParams(ctx context.Context, p *payment.Payment, opts payment.CreateParamsOptions) (*payment.PaymentParams, error) {
	args := m.Called(ctx, p, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PaymentParams), args.Error(1)
}

func (m *MockGateway) ParseCallback(ctx context.Context, req *payment.CallbackRequest) (*payment.CallbackResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CallbackResult), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, paymentNo string) (*payment.GatewayQueryResult, error) {
	args := m.Called(ctx, paymentNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.GatewayQueryResult), args.Error(1)
}

func (m *MockGateway) RequestRefund(ctx context.Context, req *payment.GatewayRefundRequest) (*payment.GatewayRefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.GatewayRefundResult), args.Error(1)
}

func (m *MockGateway) FetchStatement(ctx context.Context, date time.Time) ([]payment.StatementEntry, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.StatementEntry), args.Error(1)
}

func (m *MockGateway) CallbackAck(success bool, message string) (string, []byte) {
	if success {
		return "text/plain", []byte("success")
	}
	return "text/plain", []byte("fail")
}

// staticRegistry resolves gateways from a fixed map
type staticRegistry map[payment.PaymentType]payment.Gateway

func (r staticRegistry) Get(paymentType payment.PaymentType) (payment.Gateway, error) {
	g, ok := r[paymentType]
	if !ok {
		return nil, shared.WrapDomainError(shared.CodeValidation, "no gateway for "+string(paymentType), payment.ErrGatewayNotRegistered)
	}
	return g, nil
}

func (r staticRegistry) Types() []payment.PaymentType {
	types := make([]payment.PaymentType, 0, len(r))
	for t := range r {
		types = append(types, t)
	}
	return types
}
