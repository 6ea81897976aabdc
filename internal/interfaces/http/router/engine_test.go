package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/erp/receivables/internal/infrastructure/config"
	"github.com/erp/receivables/internal/infrastructure/lock"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/erp/receivables/internal/interfaces/http/dto"
	"github.com/erp/receivables/internal/interfaces/http/handler"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
)

func newTestEngine(t *testing.T, httpCfg config.HTTPConfig, limiter *middleware.RateLimiter) *gin.Engine {
	t.Helper()

	db, err := persistence.Open(sqlite.Open("file::memory:"), nil)
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate())

	log := zaptest.NewLogger(t)
	txScope := persistence.NewGormTransactionScope(db.DB)
	receivables := persistence.NewGormReceivableRepository(db.DB)
	payments := persistence.NewGormPaymentEventRepository(db.DB)
	history := persistence.NewGormHistoryRepository(db.DB)
	locker := lock.NewInMemoryLocker()

	engine, err := NewEngine(Options{
		HTTP:        httpCfg,
		Auth:        middleware.DefaultAuthConfig(nil),
		RateLimiter: limiter,
		Logger:      log,
	}, Handlers{
		Receivables: handler.NewReceivableHandler(
			appledger.NewReceivableService(txScope, valueobject.DefaultCurrency),
			appledger.NewPaymentRecorder(txScope, receivables, locker),
			appledger.NewQueryService(receivables, payments, history),
			log,
		),
		Analytics:      handler.NewAnalyticsHandler(appledger.NewAnalyticsService(receivables, payments), log),
		Reconciliation: handler.NewReconciliationHandler(appledger.NewReconciliationService(txScope, receivables, payments, history, locker, nil, log), log),
		System:         handler.NewSystemHandler("test", map[string]handler.Pinger{"database": db}),
	})
	require.NoError(t, err)
	return engine
}

type caller struct {
	engine       *gin.Engine
	tenant, user uuid.UUID
}

func (c caller) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if c.tenant != uuid.Nil {
		req.Header.Set(middleware.TenantIDHeader, c.tenant.String())
		req.Header.Set(middleware.UserIDHeader, c.user.String())
	}
	w := httptest.NewRecorder()
	c.engine.ServeHTTP(w, req)
	return w
}

func TestNewEngine_Routes(t *testing.T) {
	engine := newTestEngine(t, config.HTTPConfig{MaxBodySize: 1 << 20}, nil)
	c := caller{engine: engine, tenant: uuid.New(), user: uuid.New()}

	create := `{"document_number":"INV-1","payer_id":"` + uuid.NewString() + `","payer_name":"Acme","face_value":"250.00","due_date":"2026-04-30"}`
	w := c.do(http.MethodPost, "/api/v1/receivables", create)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var resp struct {
		Data dto.ReceivableResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	id := resp.Data.ID.String()

	routes := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/api/v1/receivables", "", http.StatusOK},
		{http.MethodGet, "/api/v1/receivables/" + id, "", http.StatusOK},
		{http.MethodPost, "/api/v1/receivables/" + id + "/payments/preview", `{"amount":"50","payment_date":"2026-04-01","method":"BANK_SLIP"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/receivables/" + id + "/payments", `{"amount":"50","payment_date":"2026-04-01","method":"BANK_SLIP"}`, http.StatusCreated},
		{http.MethodGet, "/api/v1/receivables/" + id + "/payments", "", http.StatusOK},
		{http.MethodGet, "/api/v1/receivables/" + id + "/history", "", http.StatusOK},
		{http.MethodPost, "/api/v1/receivables/" + id + "/notes", `{"text":"called"}`, http.StatusCreated},
		{http.MethodGet, "/api/v1/history", "", http.StatusOK},
		{http.MethodGet, "/api/v1/analytics/summary?now=2026-05-01", "", http.StatusOK},
		{http.MethodGet, "/api/v1/analytics/trend?now=2026-05-01", "", http.StatusOK},
		{http.MethodGet, "/api/v1/analytics/top-debtors?now=2026-05-01", "", http.StatusOK},
		{http.MethodGet, "/api/v1/analytics/aging?now=2026-05-01&buckets=1,31,61,91", "", http.StatusOK},
		{http.MethodGet, "/api/v1/analytics/dashboard?now=2026-05-01", "", http.StatusOK},
		{http.MethodPost, "/api/v1/reconciliation", `{"repair":false}`, http.StatusOK},
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := c.do(rt.method, rt.path, rt.body)
			assert.Equal(t, rt.status, w.Code, w.Body.String())
		})
	}
}

func TestNewEngine_Authentication(t *testing.T) {
	engine := newTestEngine(t, config.HTTPConfig{}, nil)
	anonymous := caller{engine: engine}

	w := anonymous.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = anonymous.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = anonymous.do(http.MethodGet, "/api/v1/receivables", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNewEngine_BodyLimit(t *testing.T) {
	engine := newTestEngine(t, config.HTTPConfig{MaxBodySize: 64}, nil)
	c := caller{engine: engine, tenant: uuid.New(), user: uuid.New()}

	w := c.do(http.MethodPost, "/api/v1/receivables", `{"document_number":"`+strings.Repeat("x", 100)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestNewEngine_RateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(2, time.Minute)
	t.Cleanup(limiter.Stop)
	engine := newTestEngine(t, config.HTTPConfig{RateLimitEnabled: true}, limiter)
	c := caller{engine: engine, tenant: uuid.New(), user: uuid.New()}

	for i := 0; i < 2; i++ {
		w := c.do(http.MethodGet, "/api/v1/receivables", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := c.do(http.MethodGet, "/api/v1/receivables", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// limits are per tenant
	other := caller{engine: engine, tenant: uuid.New(), user: uuid.New()}
	w = other.do(http.MethodGet, "/api/v1/receivables", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
