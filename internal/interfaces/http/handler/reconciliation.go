package handler

import (
	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconciliationHandler runs ledger reconciliations on demand
type ReconciliationHandler struct {
	BaseHandler
	reconciler *appledger.ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciler *appledger.ReconciliationService, logger *zap.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{BaseHandler: newBaseHandler(logger), reconciler: reconciler}
}

// Reconcile checks one receivable, or the whole tenant, against its payment
// ledger and repairs drift when repair is set
// POST /reconciliation
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req dto.ReconcileRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req, c.ShouldBindJSON) {
		return
	}

	cmd := appledger.ReconcileCommand{Actor: actor, Repair: req.Repair}
	if req.ReceivableID != "" {
		id := uuid.MustParse(req.ReceivableID)
		cmd.ReceivableID = &id
	}
	report, err := h.reconciler.Reconcile(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
