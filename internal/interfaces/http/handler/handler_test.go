package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Kylin-001/HKYG-sub002/internal/application/event"
	paymentapp "github.com/Kylin-001/HKYG-sub002/internal/application/payment"
	reconapp "github.com/Kylin-001/HKYG-sub002/internal/application/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/auth"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/dto"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// MockPaymentLedger is a mock implementation of PaymentLedger
type MockPaymentLedger struct {
	mock.Mock
}

func (m *MockPaymentLedger) CreatePayment(ctx context.Context, input paymentapp.CreatePaymentInput) (*paymentapp.PaymentDTO, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.PaymentDTO), args.Error(1)
}

func (m *MockPaymentLedger) CreateRecharge(ctx context.Context, input paymentapp.RechargeInput) (*paymentapp.PaymentDTO, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.PaymentDTO), args.Error(1)
}

func (m *MockPaymentLedger) InitiatePayment(ctx context.Context, paymentNo string, opts payment.CreateParamsOptions) (*paymentapp.InitiateResult, error) {
	args := m.Called(ctx, paymentNo, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.InitiateResult), args.Error(1)
}

func (m *MockPaymentLedger) GetPayment(ctx context.Context, paymentNo string) (*paymentapp.PaymentDTO, error) {
	args := m.Called(ctx, paymentNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.PaymentDTO), args.Error(1)
}

func (m *MockPaymentLedger) ListPayments(ctx context.Context, filter payment.PaymentFilter) ([]paymentapp.PaymentDTO, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]paymentapp.PaymentDTO), args.Error(1)
}

func (m *MockPaymentLedger) SyncWithGateway(ctx context.Context, paymentNo string) (*paymentapp.PaymentDTO, error) {
	args := m.Called(ctx, paymentNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.PaymentDTO), args.Error(1)
}

func (m *MockPaymentLedger) RequestRefund(ctx context.Context, input paymentapp.RefundInput) (*paymentapp.RefundDTO, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.RefundDTO), args.Error(1)
}

// MockCallbackProcessor is a mock implementation of CallbackProcessor
type MockCallbackProcessor struct {
	mock.Mock
}

func (m *MockCallbackProcessor) HandleCallback(ctx context.Context, paymentType payment.PaymentType, req *payment.CallbackRequest) (*paymentapp.CallbackResponse, error) {
	args := m.Called(ctx, paymentType, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.CallbackResponse), args.Error(1)
}

// MockReconciliationEngine is a mock implementation of ReconciliationEngine.
// ParseDate is real so handlers see the same validation as production.
type MockReconciliationEngine struct {
	mock.Mock
}

func (m *MockReconciliationEngine) ParseDate(s string) (time.Time, error) {
	return reconapp.NewEngine(reconapp.EngineConfig{Location: time.UTC}).ParseDate(s)
}

func (m *MockReconciliationEngine) StartReconciliation(ctx context.Context, date time.Time, paymentType payment.PaymentType) (*reconapp.BatchDTO, error) {
	args := m.Called(ctx, date, paymentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconapp.BatchDTO), args.Error(1)
}

func (m *MockReconciliationEngine) ExecuteReconciliation(ctx context.Context, batchNo string) (*reconapp.BatchDTO, error) {
	args := m.Called(ctx, batchNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconapp.BatchDTO), args.Error(1)
}

func (m *MockReconciliationEngine) ReconcileRange(ctx context.Context, from, to time.Time, paymentType payment.PaymentType) (*reconapp.RangeResult, error) {
	args := m.Called(ctx, from, to, paymentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconapp.RangeResult), args.Error(1)
}

func (m *MockReconciliationEngine) GetBatch(ctx context.Context, batchNo string) (*reconapp.BatchDTO, error) {
	args := m.Called(ctx, batchNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconapp.BatchDTO), args.Error(1)
}

func (m *MockReconciliationEngine) ListDiffs(ctx context.Context, batchNo string, filter reconciliation.RecordFilter) (*reconapp.DiffListDTO, error) {
	args := m.Called(ctx, batchNo, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconapp.DiffListDTO), args.Error(1)
}

func (m *MockReconciliationEngine) ListUnresolved(ctx context.Context, limit int) ([]reconapp.RecordDTO, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconapp.RecordDTO), args.Error(1)
}

func (m *MockReconciliationEngine) GenerateReport(ctx context.Context, batchNo string) (*reconapp.ReportDTO, error) {
	args := m.Called(ctx, batchNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconapp.ReportDTO), args.Error(1)
}

func (m *MockReconciliationEngine) ExportReport(ctx context.Context, batchNo, format string) (*reconapp.ExportResult, error) {
	args := m.Called(ctx, batchNo, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconapp.ExportResult), args.Error(1)
}

func (m *MockReconciliationEngine) SolveDiff(ctx context.Context, id uuid.UUID, solution, solver string) (*reconapp.RecordDTO, error) {
	args := m.Called(ctx, id, solution, solver)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconapp.RecordDTO), args.Error(1)
}

func (m *MockReconciliationEngine) Statistics(ctx context.Context, from, to time.Time) (*reconciliation.Statistics, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Statistics), args.Error(1)
}

// MockOutboxAdmin is a mock implementation of OutboxAdmin
type MockOutboxAdmin struct {
	mock.Mock
}

func (m *MockOutboxAdmin) GetDeadLetterEntries(ctx context.Context, filter event.OutboxFilter) (*event.OutboxListResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.OutboxListResult), args.Error(1)
}

func (m *MockOutboxAdmin) GetEntry(ctx context.Context, id uuid.UUID) (*event.OutboxEntryDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.OutboxEntryDTO), args.Error(1)
}

func (m *MockOutboxAdmin) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*event.OutboxEntryDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.OutboxEntryDTO), args.Error(1)
}

func (m *MockOutboxAdmin) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxAdmin) GetStats(ctx context.Context) (*event.OutboxStatsDTO, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.OutboxStatsDTO), args.Error(1)
}

// withOperator stands in for the JWT middleware
func withOperator(username string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.JWTClaimsKey, &auth.Claims{OperatorID: "op-1", Username: username})
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
