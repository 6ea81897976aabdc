package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/erp/receivables/internal/infrastructure/lock"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/erp/receivables/internal/interfaces/http/dto"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// testEnv is a full handler stack over an in-memory SQLite ledger
type testEnv struct {
	db     *persistence.Database
	router *gin.Engine
	tenant uuid.UUID
	user   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
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
	locker := lock.NewInMemoryLocker(lock.WithTimeout(time.Second))

	receivableHandler := NewReceivableHandler(
		appledger.NewReceivableService(txScope, valueobject.DefaultCurrency),
		appledger.NewPaymentRecorder(txScope, receivables, locker, appledger.WithRecorderLogger(log)),
		appledger.NewQueryService(receivables, payments, history),
		log,
	)
	analyticsHandler := NewAnalyticsHandler(appledger.NewAnalyticsService(receivables, payments), log)
	reconciliationHandler := NewReconciliationHandler(
		appledger.NewReconciliationService(txScope, receivables, payments, history, locker, nil, log), log)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Auth(middleware.DefaultAuthConfig(nil)))
	v1 := router.Group("/api/v1")
	v1.POST("/receivables", receivableHandler.Create)
	v1.GET("/receivables", receivableHandler.List)
	v1.GET("/receivables/:id", receivableHandler.Get)
	v1.POST("/receivables/:id/payments/preview", receivableHandler.PreviewPayment)
	v1.POST("/receivables/:id/payments", receivableHandler.RecordPayment)
	v1.GET("/receivables/:id/payments", receivableHandler.ListPayments)
	v1.GET("/receivables/:id/history", receivableHandler.ListHistory)
	v1.POST("/receivables/:id/notes", receivableHandler.AddNote)
	v1.GET("/history", receivableHandler.ListTenantHistory)
	v1.GET("/analytics/summary", analyticsHandler.Summary)
	v1.GET("/analytics/trend", analyticsHandler.Trend)
	v1.GET("/analytics/top-debtors", analyticsHandler.TopDebtors)
	v1.GET("/analytics/aging", analyticsHandler.Aging)
	v1.GET("/analytics/dashboard", analyticsHandler.Dashboard)
	v1.POST("/reconciliation", reconciliationHandler.Reconcile)

	return &testEnv{db: db, router: router, tenant: uuid.New(), user: uuid.New()}
}

// as returns a copy of the env acting for another tenant
func (e *testEnv) as(tenant uuid.UUID) *testEnv {
	return &testEnv{db: e.db, router: e.router, tenant: tenant, user: uuid.New()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantIDHeader, e.tenant.String())
	req.Header.Set(middleware.UserIDHeader, e.user.String())
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// decode unmarshals the envelope and its data into out
func decode(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	var resp struct {
		dto.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	if out != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
	return resp.Response
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode(t, w, nil)
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}

func (e *testEnv) createReceivable(t *testing.T, doc, face, due string) dto.ReceivableResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/receivables", map[string]any{
		"document_number": doc,
		"payer_id":        uuid.NewString(),
		"payer_name":      "Payer " + doc,
		"face_value":      face,
		"due_date":        due,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var r dto.ReceivableResponse
	decode(t, w, &r)
	return r
}
