package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payrail/internal/clock"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway"
	"github.com/smallbiznis/payrail/internal/gateway/adapters/sandbox"
	"github.com/smallbiznis/payrail/internal/gateway/capture"
	"github.com/smallbiznis/payrail/internal/gateway/direct"
	gatewaydomain "github.com/smallbiznis/payrail/internal/gateway/domain"
	"github.com/smallbiznis/payrail/internal/gateway/outcome"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	ordersvc "github.com/smallbiznis/payrail/internal/order/service"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
	tokensvc "github.com/smallbiznis/payrail/internal/token/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type captureServerEnv struct {
	server *Server
	engine *gin.Engine
	gw     *gateway.Gateway
	orders orderdomain.Service
}

func newCaptureServerEnv(t *testing.T) *captureServerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&orderdomain.OrderNote{},
		&orderdomain.Product{},
		&tokendomain.PaymentToken{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	gcfg := config.GatewayConfig{
		ID:                 "sandbox",
		Environment:        "sandbox",
		TransactionType:    config.TransactionTypeAuthorization,
		CaptureWindowHours: 720,
	}

	orders := ordersvc.NewService(ordersvc.Params{DB: gdb, Log: log, GenID: node})
	tokens := tokensvc.NewService(tokensvc.Params{DB: gdb, Log: log, GenID: node})
	clk := clock.NewFakeClock(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	adapter, err := sandbox.NewFactory().NewAdapter(gatewaydomain.AdapterConfig{
		GatewayID:   gcfg.ID,
		Environment: gcfg.Environment,
	})
	require.NoError(t, err)

	applier := outcome.NewApplier(gcfg, orders, clk, log)
	directProc := direct.NewProcessor(gcfg, adapter, orders, tokens, applier, clk, log)
	captureHandler := capture.NewHandler(gcfg, adapter, orders, clk, log)
	gw := gateway.New(gcfg, adapter, directProc, nil, captureHandler, orders, log)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:      engine,
		Cfg:      config.Config{Gateway: gcfg},
		GenID:    node,
		Gateway:  gw,
		OrderSvc: orders,
		TokenSvc: tokens,
	})
	srv.registerAPIRoutes()

	return &captureServerEnv{server: srv, engine: engine, gw: gw, orders: orders}
}

// authorizedOrder creates an order and pays it with an authorization, so
// funds are held but not yet captured.
func (e *captureServerEnv) authorizedOrder(t *testing.T, total int64) *orderdomain.Order {
	t.Helper()
	ctx := context.Background()
	order := &orderdomain.Order{CustomerID: 42, TotalAmount: total, Currency: "USD"}
	require.NoError(t, e.orders.Create(ctx, order, nil))

	result, err := e.gw.ProcessPayment(ctx, order, &gatewaydomain.PaymentAttempt{
		Type:          gatewaydomain.PaymentTypeCreditCard,
		AccountNumber: "4242424242424242",
		ExpMonth:      12,
		ExpYear:       2028,
		CSC:           "123",
	})
	require.NoError(t, err)
	require.Equal(t, gatewaydomain.OutcomeApproved, result.Outcome)
	return order
}

func (e *captureServerEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

type captureResponse struct {
	Captured      bool   `json:"captured"`
	CapturedTotal int64  `json:"captured_total"`
	Completed     bool   `json:"completed"`
	TransactionID string `json:"transaction_id"`
}

func TestCaptureOrderHandler(t *testing.T) {
	env := newCaptureServerEnv(t)
	order := env.authorizedOrder(t, 10000)
	path := "/api/v1/orders/" + order.ID.String() + "/capture"

	rec := env.post(t, path, `{"amount":4000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var partial captureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &partial))
	assert.True(t, partial.Captured)
	assert.Equal(t, int64(4000), partial.CapturedTotal)
	assert.False(t, partial.Completed)
	assert.NotEmpty(t, partial.TransactionID)

	// Zero amount captures the remaining balance.
	rec = env.post(t, path, `{"amount":0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var full captureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.True(t, full.Captured)
	assert.Equal(t, int64(10000), full.CapturedTotal)
	assert.True(t, full.Completed)
}

func TestCaptureOrderHandlerNoAuthorization(t *testing.T) {
	env := newCaptureServerEnv(t)
	order := &orderdomain.Order{CustomerID: 42, TotalAmount: 5000, Currency: "USD"}
	require.NoError(t, env.orders.Create(context.Background(), order, nil))

	rec := env.post(t, "/api/v1/orders/"+order.ID.String()+"/capture", `{"amount":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBulkCaptureHandler(t *testing.T) {
	env := newCaptureServerEnv(t)
	authorized := env.authorizedOrder(t, 10000)
	plain := &orderdomain.Order{CustomerID: 42, TotalAmount: 5000, Currency: "USD"}
	require.NoError(t, env.orders.Create(context.Background(), plain, nil))

	body := `{"order_ids":["` + authorized.ID.String() + `","` + plain.ID.String() + `"]}`
	rec := env.post(t, "/api/v1/captures/bulk", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []struct {
			OrderID       string `json:"order_id"`
			Captured      bool   `json:"captured"`
			CapturedTotal int64  `json:"captured_total"`
			Completed     bool   `json:"completed"`
			Error         string `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)

	assert.Equal(t, authorized.ID.String(), resp.Results[0].OrderID)
	assert.True(t, resp.Results[0].Captured)
	assert.Equal(t, int64(10000), resp.Results[0].CapturedTotal)
	assert.True(t, resp.Results[0].Completed)

	assert.Equal(t, plain.ID.String(), resp.Results[1].OrderID)
	assert.False(t, resp.Results[1].Captured)
	assert.NotEmpty(t, resp.Results[1].Error)
}
