package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	reconapp "github.com/Kylin-001/HKYG-sub002/internal/application/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
	infrapayment "github.com/Kylin-001/HKYG-sub002/internal/infrastructure/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/dto"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/middleware"
)

// ReconciliationEngine is the part of the engine the back-office API drives
type ReconciliationEngine interface {
	ParseDate(s string) (time.Time, error)
	StartReconciliation(ctx context.Context, date time.Time, paymentType payment.PaymentType) (*reconapp.BatchDTO, error)
	ExecuteReconciliation(ctx context.Context, batchNo string) (*reconapp.BatchDTO, error)
	ReconcileRange(ctx context.Context, from, to time.Time, paymentType payment.PaymentType) (*reconapp.RangeResult, error)
	GetBatch(ctx context.Context, batchNo string) (*reconapp.BatchDTO, error)
	ListDiffs(ctx context.Context, batchNo string, filter reconciliation.RecordFilter) (*reconapp.DiffListDTO, error)
	ListUnresolved(ctx context.Context, limit int) ([]reconapp.RecordDTO, error)
	GenerateReport(ctx context.Context, batchNo string) (*reconapp.ReportDTO, error)
	ExportReport(ctx context.Context, batchNo, format string) (*reconapp.ExportResult, error)
	SolveDiff(ctx context.Context, id uuid.UUID, solution, solver string) (*reconapp.RecordDTO, error)
	Statistics(ctx context.Context, from, to time.Time) (*reconciliation.Statistics, error)
}

// ReconciliationHandler handles reconciliation back-office requests
type ReconciliationHandler struct {
	BaseHandler
	engine ReconciliationEngine
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(engine ReconciliationEngine) *ReconciliationHandler {
	return &ReconciliationHandler{engine: engine}
}

// DiffListQuery filters the records of a batch
type DiffListQuery struct {
	DiffType   string `form:"diff_type" binding:"omitempty,oneof=MATCHED AMOUNT_MISMATCH MISSING_INTERNAL MISSING_EXTERNAL"`
	Unresolved bool   `form:"unresolved"`
	dto.ListRequest
}

// StatisticsQuery is the inclusive day range of GET /reconciliation/statistics
type StatisticsQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// ExportQuery selects the export format and delivery
type ExportQuery struct {
	Format   string `form:"format" binding:"omitempty,oneof=xlsx csv"`
	Delivery string `form:"delivery" binding:"omitempty,oneof=file link"`
}

// ExportLinkResponse is returned when the report was archived and a link requested
type ExportLinkResponse struct {
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	DownloadURL string     `json:"download_url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// StartBatch godoc
//
//	@ID				startReconciliationBatch
//	@Summary		Open a reconciliation batch
//	@Description	Open a RUNNING batch for one provider and day. Fails while another batch for that day is running.
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		reconapp.StartInput	true	"Day and provider"
//	@Success		201		{object}	APIResponse[reconapp.BatchDTO]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/batches [post]
func (h *ReconciliationHandler) StartBatch(c *gin.Context) {
	var req reconapp.StartInput
	if !h.BindJSON(c, &req) {
		return
	}
	date, err := h.engine.ParseDate(req.Date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	paymentType, ok := parsePaymentType(req.PaymentType)
	if !ok {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "Unknown payment type")
		return
	}

	batch, err := h.engine.StartReconciliation(c.Request.Context(), date, paymentType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, batch)
}

// ExecuteBatch godoc
//
//	@ID				executeReconciliationBatch
//	@Summary		Run a reconciliation batch
//	@Description	Download the provider statement, compare it with the ledger and commit the records
//	@Tags			reconciliation
//	@Produce		json
//	@Param			batchNo	path		string	true	"Batch number"
//	@Success		200		{object}	APIResponse[reconapp.BatchDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/batches/{batchNo}/execute [post]
func (h *ReconciliationHandler) ExecuteBatch(c *gin.Context) {
	batchNo := c.Param("batchNo")
	ctx := logger.WithBatchNo(c.Request.Context(), batchNo)
	batch, err := h.engine.ExecuteReconciliation(ctx, batchNo)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// ReconcileRange godoc
//
//	@ID				reconcileRange
//	@Summary		Reconcile a range of days
//	@Description	Open and run one batch per day. Days already completed are skipped and a failed day does not stop the rest.
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		reconapp.RangeInput	true	"Inclusive day range"
//	@Success		200		{object}	APIResponse[reconapp.RangeResult]
//	@Failure		400		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/range [post]
func (h *ReconciliationHandler) ReconcileRange(c *gin.Context) {
	var req reconapp.RangeInput
	if !h.BindJSON(c, &req) {
		return
	}
	from, to, ok := h.parseRange(c, req.From, req.To)
	if !ok {
		return
	}
	paymentType, ok := parsePaymentType(req.PaymentType)
	if !ok {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "Unknown payment type")
		return
	}

	result, err := h.engine.ReconcileRange(c.Request.Context(), from, to, paymentType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetBatch godoc
//
//	@ID				getReconciliationBatch
//	@Summary		Get a reconciliation batch
//	@Tags			reconciliation
//	@Produce		json
//	@Param			batchNo	path		string	true	"Batch number"
//	@Success		200		{object}	APIResponse[reconapp.BatchDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/batches/{batchNo} [get]
func (h *ReconciliationHandler) GetBatch(c *gin.Context) {
	batch, err := h.engine.GetBatch(c.Request.Context(), c.Param("batchNo"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// ListDiffs godoc
//
//	@ID				listReconciliationDiffs
//	@Summary		List the records of a batch
//	@Tags			reconciliation
//	@Produce		json
//	@Param			batchNo		path		string	true	"Batch number"
//	@Param			diff_type	query		string	false	"Diff type"	Enums(MATCHED, AMOUNT_MISMATCH, MISSING_INTERNAL, MISSING_EXTERNAL)
//	@Param			unresolved	query		bool	false	"Only unresolved differences"
//	@Param			page		query		int		false	"Page number"		default(1)
//	@Param			page_size	query		int		false	"Items per page"	default(20)	maximum(100)
//	@Success		200			{object}	APIResponse[[]reconapp.RecordDTO]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/batches/{batchNo}/diffs [get]
func (h *ReconciliationHandler) ListDiffs(c *gin.Context) {
	var q DiffListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	result, err := h.engine.ListDiffs(c.Request.Context(), c.Param("batchNo"), reconciliation.RecordFilter{
		DiffType:   reconciliation.DiffType(q.DiffType),
		Unresolved: q.Unresolved,
		Page:       page,
		PageSize:   q.Limit(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// ListUnresolved godoc
//
//	@ID				listUnresolvedDiffs
//	@Summary		List unresolved differences
//	@Description	Differences across all batches still waiting for an operator, oldest first
//	@Tags			reconciliation
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum rows"	default(50)	maximum(500)
//	@Success		200		{object}	APIResponse[[]reconapp.RecordDTO]
//	@Security		BearerAuth
//	@Router			/reconciliation/diffs/unresolved [get]
func (h *ReconciliationHandler) ListUnresolved(c *gin.Context) {
	var q struct {
		Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	records, err := h.engine.ListUnresolved(c.Request.Context(), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, records)
}

// GetReport godoc
//
//	@ID				getReconciliationReport
//	@Summary		Get the report of a batch
//	@Tags			reconciliation
//	@Produce		json
//	@Param			batchNo	path		string	true	"Batch number"
//	@Success		200		{object}	APIResponse[reconapp.ReportDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/batches/{batchNo}/report [get]
func (h *ReconciliationHandler) GetReport(c *gin.Context) {
	report, err := h.engine.GenerateReport(c.Request.Context(), c.Param("batchNo"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ExportReport godoc
//
//	@ID				exportReconciliationReport
//	@Summary		Export the report of a batch
//	@Description	Download the report as xlsx or csv. With delivery=link and an archive configured, a signed download link is returned instead.
//	@Tags			reconciliation
//	@Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Produce		text/csv
//	@Produce		json
//	@Param			batchNo		path		string	true	"Batch number"
//	@Param			format		query		string	false	"File format"	Enums(xlsx, csv)	default(xlsx)
//	@Param			delivery	query		string	false	"Delivery"		Enums(file, link)	default(file)
//	@Success		200			{file}		file
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/batches/{batchNo}/export [get]
func (h *ReconciliationHandler) ExportReport(c *gin.Context) {
	var q ExportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	if q.Format == "" {
		q.Format = "xlsx"
	}

	result, err := h.engine.ExportReport(c.Request.Context(), c.Param("batchNo"), q.Format)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if q.Delivery == "link" && result.DownloadURL != "" {
		h.Success(c, ExportLinkResponse{
			FileName:    result.FileName,
			ContentType: result.ContentType,
			DownloadURL: result.DownloadURL,
			ExpiresAt:   result.ExpiresAt,
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// SolveDiff godoc
//
//	@ID				solveReconciliationDiff
//	@Summary		Resolve a difference
//	@Description	Record the operator's resolution of an unmatched record. The operator is taken from the token.
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Record ID"	format(uuid)
//	@Param			request	body		reconapp.SolveInput	true	"Resolution"
//	@Success		200		{object}	APIResponse[reconapp.RecordDTO]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/diffs/{id}/solve [post]
func (h *ReconciliationHandler) SolveDiff(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid record ID")
		return
	}
	var req reconapp.SolveInput
	if !h.BindJSON(c, &req) {
		return
	}
	solver := middleware.GetOperator(c)
	if solver == "" {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
		return
	}

	record, err := h.engine.SolveDiff(c.Request.Context(), id, req.Solution, solver)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, record)
}

// GetStatistics godoc
//
//	@ID				getReconciliationStatistics
//	@Summary		Reconciliation statistics
//	@Description	Aggregate batches and records over an inclusive day range of at most 31 days
//	@Tags			reconciliation
//	@Produce		json
//	@Param			from	query		string	true	"First day (YYYY-MM-DD)"
//	@Param			to		query		string	true	"Last day (YYYY-MM-DD)"
//	@Success		200		{object}	APIResponse[reconciliation.Statistics]
//	@Failure		400		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/statistics [get]
func (h *ReconciliationHandler) GetStatistics(c *gin.Context) {
	var q StatisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "Query parameters from and to are required")
		return
	}
	from, to, ok := h.parseRange(c, q.From, q.To)
	if !ok {
		return
	}

	stats, err := h.engine.Statistics(c.Request.Context(), from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

func (h *ReconciliationHandler) parseRange(c *gin.Context, fromStr, toStr string) (time.Time, time.Time, bool) {
	from, err := h.engine.ParseDate(fromStr)
	if err != nil {
		h.HandleError(c, err)
		return time.Time{}, time.Time{}, false
	}
	to, err := h.engine.ParseDate(toStr)
	if err != nil {
		h.HandleError(c, err)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// parsePaymentType accepts both the enum value and the webhook path form
func parsePaymentType(s string) (payment.PaymentType, bool) {
	if t := payment.PaymentType(strings.ToUpper(strings.TrimSpace(s))); t.IsValid() {
		return t, true
	}
	return infrapayment.ParseGatewayName(s)
}
