package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/interfaces/http/dto"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct {
	logger *zap.Logger
	now    func() time.Time
}

func newBaseHandler(logger *zap.Logger) BaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return BaseHandler{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, code, message string) {
	h.Error(c, http.StatusBadRequest, code, message)
}

// HandleError converts domain errors to HTTP responses; anything else is a 500
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.StatusForKind(domainErr.Kind), dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	h.logger.Error("Request failed",
		zap.Error(err),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("path", c.FullPath()),
	)
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

// bind decodes and validates the request into req with bindFn, writing the
// error response itself when that fails
func (h *BaseHandler) bind(c *gin.Context, req any, bindFn func(any) error) bool {
	err := bindFn(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		middleware.HandleValidationError(c, verrs)
		return false
	}
	h.BadRequest(c, dto.ErrCodeInvalidJSON, "Malformed request: "+err.Error())
	return false
}

// actor returns the authenticated actor, answering 401 when there is none
func (h *BaseHandler) actor(c *gin.Context) (shared.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
		return shared.Actor{}, false
	}
	return actor, true
}

// pathID parses the :id path parameter
func (h *BaseHandler) pathID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "Invalid receivable id")
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}

// parseDate parses a YYYY-MM-DD value as midnight UTC
func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dto.DateLayout, strings.TrimSpace(s), time.UTC)
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// asOf reads the optional now query parameter, defaulting to the clock
func (h *BaseHandler) asOf(c *gin.Context) (time.Time, bool) {
	raw := c.Query("now")
	if raw == "" {
		return h.now(), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	t, err := parseDate(raw)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "now must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

// queryInt reads an optional positive integer query parameter; 0 means absent
func (h *BaseHandler) queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.BadRequest(c, dto.ErrCodeInvalidInput, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}
