package handler

import (
	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader carries the client key that deduplicates payment retries
const IdempotencyKeyHeader = "Idempotency-Key"

// ReceivableHandler handles the receivable, payment and audit trail endpoints
type ReceivableHandler struct {
	BaseHandler
	receivables *appledger.ReceivableService
	recorder    *appledger.PaymentRecorder
	queries     *appledger.QueryService
}

// NewReceivableHandler creates a new ReceivableHandler
func NewReceivableHandler(
	receivables *appledger.ReceivableService,
	recorder *appledger.PaymentRecorder,
	queries *appledger.QueryService,
	logger *zap.Logger,
) *ReceivableHandler {
	return &ReceivableHandler{
		BaseHandler: newBaseHandler(logger),
		receivables: receivables,
		recorder:    recorder,
		queries:     queries,
	}
}

// Create issues a new receivable
// POST /receivables
func (h *ReceivableHandler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req dto.CreateReceivableRequest
	if !h.bind(c, &req, c.ShouldBindJSON) {
		return
	}
	faceValue, err := parseAmount(req.FaceValue)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "face_value must be a decimal number")
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "due_date must be a date in YYYY-MM-DD format")
		return
	}

	r, err := h.receivables.CreateReceivable(c.Request.Context(), appledger.CreateReceivableCommand{
		Actor:          actor,
		DocumentNumber: req.DocumentNumber,
		PayerID:        uuid.MustParse(req.PayerID),
		PayerName:      req.PayerName,
		Description:    req.Description,
		FaceValue:      faceValue,
		Currency:       req.Currency,
		DueDate:        dueDate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToReceivableResponse(r, h.now()))
}

// List returns a page of receivables
// GET /receivables
func (h *ReceivableHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req dto.ListReceivablesRequest
	if !h.bind(c, &req, c.ShouldBindQuery) {
		return
	}

	filter := ledger.ReceivableFilter{Filter: req.Filter()}
	if req.Status != "" {
		status, err := ledger.ParseStatus(req.Status)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		filter.Status = &status
	}
	if req.PayerID != "" {
		payerID := uuid.MustParse(req.PayerID)
		filter.PayerID = &payerID
	}
	var err error
	if filter.DueFrom, err = optionalDate(req.DueFrom); err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "due_from must be a date in YYYY-MM-DD format")
		return
	}
	if filter.DueTo, err = optionalDate(req.DueTo); err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "due_to must be a date in YYYY-MM-DD format")
		return
	}
	if filter.OverdueAsOf, err = optionalDate(req.OverdueAsOf); err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "overdue_as_of must be a date in YYYY-MM-DD format")
		return
	}

	page, err := h.queries.List(c.Request.Context(), actor.TenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToReceivableResponses(page.Items, h.now()), page.Total, page.Page, page.PageSize)
}

// Get returns one receivable
// GET /receivables/:id
func (h *ReceivableHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	r, err := h.queries.Get(c.Request.Context(), actor.TenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToReceivableResponse(r, h.now()))
}

func (h *ReceivableHandler) paymentCommand(c *gin.Context) (appledger.RecordPaymentCommand, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return appledger.RecordPaymentCommand{}, false
	}
	id, ok := h.pathID(c)
	if !ok {
		return appledger.RecordPaymentCommand{}, false
	}
	var req dto.RecordPaymentRequest
	if !h.bind(c, &req, c.ShouldBindJSON) {
		return appledger.RecordPaymentCommand{}, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "amount must be a decimal number")
		return appledger.RecordPaymentCommand{}, false
	}
	paymentDate, err := parseDate(req.PaymentDate)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "payment_date must be a date in YYYY-MM-DD format")
		return appledger.RecordPaymentCommand{}, false
	}
	return appledger.RecordPaymentCommand{
		Actor:           actor,
		ReceivableID:    id,
		Amount:          amount,
		PaymentDate:     paymentDate,
		Method:          req.Method,
		ProofRef:        req.ProofRef,
		Observation:     req.Observation,
		IdempotencyKey:  c.GetHeader(IdempotencyKeyHeader),
		ExpectedVersion: req.ExpectedVersion,
	}, true
}

// PreviewPayment computes the settlement a payment would produce without recording it
// POST /receivables/:id/payments/preview
func (h *ReceivableHandler) PreviewPayment(c *gin.Context) {
	cmd, ok := h.paymentCommand(c)
	if !ok {
		return
	}
	preview, err := h.recorder.PreviewPayment(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.PaymentPreviewResponse{
		Receivable:      dto.ToReceivableResponse(preview.Receivable, h.now()),
		Method:          preview.Method,
		Settlement:      dto.ToSettlementResponse(preview.Settlement),
		ExpectedVersion: preview.ExpectedVersion,
	})
}

// RecordPayment posts a payment. With expected_version it confirms an earlier
// preview and fails with a conflict when the receivable moved on.
// POST /receivables/:id/payments
func (h *ReceivableHandler) RecordPayment(c *gin.Context) {
	cmd, ok := h.paymentCommand(c)
	if !ok {
		return
	}

	var (
		result *appledger.RecordPaymentResult
		err    error
	)
	if cmd.ExpectedVersion != nil {
		result, err = h.recorder.ConfirmPayment(c.Request.Context(), cmd, *cmd.ExpectedVersion)
	} else {
		result, err = h.recorder.RecordPayment(c.Request.Context(), cmd)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := dto.RecordPaymentResponse{
		Receivable: dto.ToReceivableResponse(result.Receivable, h.now()),
		Payment:    dto.ToPaymentResponse(result.Payment),
		Settlement: dto.ToSettlementResponse(result.Settlement),
		Replayed:   result.Replayed,
		Attempts:   result.Attempts,
	}
	if result.Replayed {
		h.Success(c, resp)
		return
	}
	h.Created(c, resp)
}

// ListPayments returns a receivable's payment ledger
// GET /receivables/:id/payments
func (h *ReceivableHandler) ListPayments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	payments, err := h.queries.ListPayments(c.Request.Context(), actor.TenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToPaymentResponses(payments))
}

func (h *ReceivableHandler) historyFilter(c *gin.Context) (ledger.HistoryFilter, bool) {
	var req dto.ListHistoryRequest
	if !h.bind(c, &req, c.ShouldBindQuery) {
		return ledger.HistoryFilter{}, false
	}
	filter := ledger.HistoryFilter{Filter: req.Filter()}
	if req.Type != "" {
		t, err := ledger.ParseHistoryType(req.Type)
		if err != nil {
			h.HandleError(c, err)
			return ledger.HistoryFilter{}, false
		}
		filter.Type = &t
	}
	return filter, true
}

// ListHistory returns a receivable's audit trail, most recent first
// GET /receivables/:id/history
func (h *ReceivableHandler) ListHistory(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	filter, ok := h.historyFilter(c)
	if !ok {
		return
	}
	page, err := h.queries.ListHistory(c.Request.Context(), actor.TenantID, id, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToHistoryEntryResponses(page.Items), page.Total, page.Page, page.PageSize)
}

// ListTenantHistory returns the audit trail of the whole tenant
// GET /history
func (h *ReceivableHandler) ListTenantHistory(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	filter, ok := h.historyFilter(c)
	if !ok {
		return
	}
	page, err := h.queries.ListTenantHistory(c.Request.Context(), actor.TenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToHistoryEntryResponses(page.Items), page.Total, page.Page, page.PageSize)
}

// AddNote appends a note to a receivable's audit trail
// POST /receivables/:id/notes
func (h *ReceivableHandler) AddNote(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req dto.NoteRequest
	if !h.bind(c, &req, c.ShouldBindJSON) {
		return
	}
	entry, err := h.receivables.AddNote(c.Request.Context(), appledger.AddNoteCommand{
		Actor:         actor,
		ReceivableID:  id,
		Text:          req.Text,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToHistoryEntryResponse(entry))
}
