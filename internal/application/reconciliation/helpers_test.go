package reconciliation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

type reconState struct {
	batches map[string]reconciliation.Batch
	records []reconciliation.Record
	events  []shared.DomainEvent
}

func (st *reconState) clone() *reconState {
	out := &reconState{
		batches: make(map[string]reconciliation.Batch, len(st.batches)),
		records: append([]reconciliation.Record(nil), st.records...),
		events:  append([]shared.DomainEvent(nil), st.events...),
	}
	for k, v := range st.batches {
		out.batches[k] = v
	}
	return out
}

// memoryStore is a reconciliation.Store over maps. InTx works on a copy that
// replaces the state only when fn returns nil.
type memoryStore struct {
	mu    sync.Mutex
	state *reconState

	// failEvents makes the next transactional event save fail
	failEvents error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: &reconState{batches: map[string]reconciliation.Batch{}}}
}

func (s *memoryStore) Batches() reconciliation.BatchRepository {
	return &memoryBatches{store: s}
}

func (s *memoryStore) Records() reconciliation.RecordRepository {
	return &memoryRecords{store: s}
}

func (s *memoryStore) InTx(_ context.Context, fn func(tx reconciliation.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryTx{store: s, state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *memoryStore) view(st *reconState) (*reconState, func()) {
	if st != nil {
		return st, func() {}
	}
	s.mu.Lock()
	return s.state, s.mu.Unlock
}

func (s *memoryStore) batch(batchNo string) reconciliation.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.batches[batchNo]
}

func (s *memoryStore) recordsOf(batchNo string) []reconciliation.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reconciliation.Record
	for _, r := range s.state.records {
		if r.BatchNo == batchNo {
			out = append(out, r)
		}
	}
	return out
}

func (s *memoryStore) savedEvents() []shared.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.DomainEvent(nil), s.state.events...)
}

type memoryTx struct {
	store *memoryStore
	state *reconState
}

func (t *memoryTx) Batches() reconciliation.BatchRepository {
	return &memoryBatches{store: t.store, tx: t.state}
}

func (t *memoryTx) Records() reconciliation.RecordRepository {
	return &memoryRecords{store: t.store, tx: t.state}
}

func (t *memoryTx) Events() payment.EventSink { return t }

func (t *memoryTx) Save(_ context.Context, events ...shared.DomainEvent) error {
	if err := t.store.failEvents; err != nil {
		t.store.failEvents = nil
		return err
	}
	t.state.events = append(t.state.events, events...)
	return nil
}

type memoryBatches struct {
	store *memoryStore
	tx    *reconState
}

func (r *memoryBatches) Create(_ context.Context, b *reconciliation.Batch) error {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	for _, existing := range st.batches {
		if existing.Status == reconciliation.BatchStatusRunning &&
			existing.PaymentType == b.PaymentType &&
			existing.ReconciliationDate.Equal(b.ReconciliationDate) {
			return shared.NewReconciliationConflictError("batch %s already running", existing.BatchNo)
		}
	}
	st.batches[b.BatchNo] = *b
	return nil
}

func (r *memoryBatches) FindByBatchNo(_ context.Context, batchNo string) (*reconciliation.Batch, error) {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	b, ok := st.batches[batchNo]
	if !ok {
		return nil, shared.NewNotFoundError("batch %s not found", batchNo)
	}
	return &b, nil
}

func (r *memoryBatches) FindRunning(_ context.Context, date time.Time, paymentType payment.PaymentType) (*reconciliation.Batch, error) {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	for _, b := range st.batches {
		if b.Status == reconciliation.BatchStatusRunning && b.PaymentType == paymentType && b.ReconciliationDate.Equal(date) {
			return &b, nil
		}
	}
	return nil, shared.NewNotFoundError("no running batch")
}

func (r *memoryBatches) FindBetween(_ context.Context, from, to time.Time) ([]*reconciliation.Batch, error) {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	var out []*reconciliation.Batch
	for _, b := range st.batches {
		if !b.ReconciliationDate.Before(from) && b.ReconciliationDate.Before(to) {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReconciliationDate.Before(out[j].ReconciliationDate) })
	return out, nil
}

func (r *memoryBatches) SaveWithLock(_ context.Context, b *reconciliation.Batch, expectedVersion int) error {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	stored, ok := st.batches[b.BatchNo]
	if !ok {
		return shared.NewNotFoundError("batch %s not found", b.BatchNo)
	}
	if stored.GetVersion() != expectedVersion {
		return shared.NewConcurrentModificationError("batch %s was modified concurrently", b.BatchNo)
	}
	st.batches[b.BatchNo] = *b
	return nil
}

type memoryRecords struct {
	store *memoryStore
	tx    *reconState
}

func (r *memoryRecords) CreateInBatches(_ context.Context, records []*reconciliation.Record) error {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	for _, rec := range records {
		st.records = append(st.records, *rec)
	}
	return nil
}

func (r *memoryRecords) FindByID(_ context.Context, id uuid.UUID) (*reconciliation.Record, error) {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	for _, rec := range st.records {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, shared.NewNotFoundError("record %s not found", id)
}

func (r *memoryRecords) FindByBatchNo(_ context.Context, batchNo string, filter reconciliation.RecordFilter) ([]*reconciliation.Record, int64, error) {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	var all []*reconciliation.Record
	for _, rec := range st.records {
		if rec.BatchNo != batchNo {
			continue
		}
		if filter.DiffType != "" && rec.DiffType != filter.DiffType {
			continue
		}
		if filter.Unresolved && (rec.IsResolved() || rec.DiffType == reconciliation.DiffTypeMatched) {
			continue
		}
		rec := rec
		all = append(all, &rec)
	}
	total := int64(len(all))
	if filter.PageSize > 0 {
		start := (filter.Page - 1) * filter.PageSize
		if start > len(all) {
			start = len(all)
		}
		end := min(start+filter.PageSize, len(all))
		all = all[start:end]
	}
	return all, total, nil
}

func (r *memoryRecords) FindUnresolved(_ context.Context, limit int) ([]*reconciliation.Record, error) {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	var out []*reconciliation.Record
	for _, rec := range st.records {
		if rec.DiffType == reconciliation.DiffTypeMatched || rec.IsResolved() {
			continue
		}
		rec := rec
		out = append(out, &rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRecords) SaveResolution(_ context.Context, rec *reconciliation.Record) error {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	for i := range st.records {
		if st.records[i].ID != rec.ID {
			continue
		}
		if st.records[i].IsResolved() {
			return shared.NewReconciliationConflictError("record %s already resolved", rec.ID)
		}
		st.records[i].Resolution = rec.Resolution
		st.records[i].Solver = rec.Solver
		st.records[i].SolvedAt = rec.SolvedAt
		return nil
	}
	return shared.NewNotFoundError("record %s not found", rec.ID)
}

func (r *memoryRecords) inWindow(st *reconState, rec reconciliation.Record, from, to time.Time) bool {
	b, ok := st.batches[rec.BatchNo]
	return ok && !b.ReconciliationDate.Before(from) && b.ReconciliationDate.Before(to)
}

func (r *memoryRecords) CountByDiffType(_ context.Context, from, to time.Time) (map[reconciliation.DiffType]int, error) {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	out := map[reconciliation.DiffType]int{}
	for _, rec := range st.records {
		if r.inWindow(st, rec, from, to) {
			out[rec.DiffType]++
		}
	}
	return out, nil
}

func (r *memoryRecords) CountUnresolved(_ context.Context, from, to time.Time) (int, error) {
	st, unlock := r.store.view(r.tx)
	defer unlock()
	n := 0
	for _, rec := range st.records {
		if r.inWindow(st, rec, from, to) && rec.DiffType != reconciliation.DiffTypeMatched && !rec.IsResolved() {
			n++
		}
	}
	return n, nil
}

// memoryPayments serves FindSettledBetween over a fixed set
type memoryPayments struct {
	payments []*payment.Payment
	err      error
}

func (m *memoryPayments) FindSettledBetween(_ context.Context, paymentType payment.PaymentType, from, to time.Time) ([]*payment.Payment, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*payment.Payment
	for _, p := range m.payments {
		if p.PaymentType != paymentType || p.PayTime == nil {
			continue
		}
		if p.PayTime.Before(from) || !p.PayTime.Before(to) {
			continue
		}
		switch p.Status {
		case payment.PaymentStatusPaid, payment.PaymentStatusRefunding, payment.PaymentStatusRefunded:
			out = append(out, p)
		}
	}
	return out, nil
}

// MockGateway is a mock implementation of payment.Gateway
type MockGateway struct {
	mock.Mock
	paymentType payment.PaymentType
}

func (m *MockGateway) Type() payment.PaymentType { return m.paymentType }

func (m *MockGateway) CreatePaymentParams(ctx context.Context, p *payment.Payment, opts payment.CreateParamsOptions) (*payment.PaymentParams, error) {
	return nil, errors.New("not used")
}

func (m *MockGateway) ParseCallback(ctx context.Context, req *payment.CallbackRequest) (*payment.CallbackResult, error) {
	return nil, errors.New("not used")
}

func (m *MockGateway) QueryStatus(ctx context.Context, paymentNo string) (*payment.GatewayQueryResult, error) {
	return nil, errors.New("not used")
}

func (m *MockGateway) RequestRefund(ctx context.Context, req *payment.GatewayRefundRequest) (*payment.GatewayRefundResult, error) {
	return nil, errors.New("not used")
}

func (m *MockGateway) FetchStatement(ctx context.Context, date time.Time) ([]payment.StatementEntry, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.StatementEntry), args.Error(1)
}

func (m *MockGateway) CallbackAck(success bool, message string) (string, []byte) {
	return "text/plain", []byte("success")
}

type staticRegistry map[payment.PaymentType]payment.Gateway

func (r staticRegistry) Get(t payment.PaymentType) (payment.Gateway, error) {
	g, ok := r[t]
	if !ok {
		return nil, shared.NewValidationError("payment type %s is not available", t)
	}
	return g, nil
}

func (r staticRegistry) Types() []payment.PaymentType {
	out := make([]payment.PaymentType, 0, len(r))
	for t := range r {
		out = append(out, t)
	}
	return out
}

// memoryArchive records archived files
type memoryArchive struct {
	names []string
	err   error
}

func (a *memoryArchive) Archive(_ context.Context, name string, data []byte, _ string) (string, time.Time, error) {
	if a.err != nil {
		return "", time.Time{}, a.err
	}
	a.names = append(a.names, name)
	return "https://reports.local/" + name, time.Now().Add(time.Hour), nil
}
