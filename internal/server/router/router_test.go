package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mamadbah2/farmledger/internal/repository/memory"
	"github.com/mamadbah2/farmledger/internal/server/handlers"
	"github.com/mamadbah2/farmledger/internal/service/dashboard"
	"github.com/mamadbah2/farmledger/internal/service/export"
	"github.com/mamadbah2/farmledger/internal/service/ledger/ledgertest"
	"github.com/mamadbah2/farmledger/internal/service/sales"
	"github.com/mamadbah2/farmledger/pkg/clients/identity"
)

func newEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.InfoLevel)
	currency := sales.Currency{Decimals: 18, Symbol: "ETH"}
	dash := dashboard.New(ledgertest.New(), identity.Provider(nil), memory.NewProfileCache(), dashboard.Options{Currency: currency}, nil)
	h := handlers.NewDashboardHandler(dash, export.NewExporter(nil, "", currency, nil), nil, nil, nil)
	return New(h, zap.New(core)), logs
}

func TestHealthAndRequestID(t *testing.T) {
	engine, logs := newEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, id, completed[0].ContextMap()["request_id"])
	assert.EqualValues(t, http.StatusOK, completed[0].ContextMap()["status"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	engine, _ := newEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"phase":"disconnected"`)
}
