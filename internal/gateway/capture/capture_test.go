package capture

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payrail/internal/clock"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/adapters/sandbox"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	ordersvc "github.com/smallbiznis/payrail/internal/order/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type captureEnv struct {
	handler *Handler
	orders  orderdomain.Service
	clock   *clock.FakeClock
	cfg     config.GatewayConfig
}

func newCaptureEnv(t *testing.T, cfg config.GatewayConfig) *captureEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&orderdomain.OrderNote{},
		&orderdomain.Product{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	orders := ordersvc.NewService(ordersvc.Params{DB: gdb, Log: log, GenID: node})
	clk := clock.NewFakeClock(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	adapter, err := sandbox.NewFactory().NewAdapter(domain.AdapterConfig{
		GatewayID:   cfg.ID,
		Environment: cfg.Environment,
	})
	require.NoError(t, err)

	return &captureEnv{
		handler: NewHandler(cfg, adapter, orders, clk, log),
		orders:  orders,
		clock:   clk,
		cfg:     cfg,
	}
}

func captureConfig() config.GatewayConfig {
	return config.GatewayConfig{
		ID:                 "sandbox",
		Environment:        "sandbox",
		CaptureWindowHours: 720,
	}
}

func (e *captureEnv) key(name string) string {
	return domain.MetaKey(e.cfg.ID, name)
}

// authorizedOrder seeds an order carrying a prior authorization hold.
func (e *captureEnv) authorizedOrder(t *testing.T, amount int64) *orderdomain.Order {
	t.Helper()
	ctx := context.Background()
	order := &orderdomain.Order{
		CustomerID:  42,
		TotalAmount: amount,
		Currency:    "USD",
	}
	require.NoError(t, e.orders.Create(ctx, order, nil))
	require.NoError(t, e.orders.SetMeta(ctx, order, map[string]any{
		e.key(domain.MetaTransactionID):   "txn_auth_" + order.ID.String(),
		e.key(domain.MetaTransactionDate): e.clock.Now().Format(time.RFC3339),
		e.key(domain.MetaAuthAmount):      "10000",
		e.key(domain.MetaCaptureTotal):    "0",
		e.key(domain.MetaChargeCaptured):  "no",
	}))
	return order
}

func TestPerformCaptureNoAuthorization(t *testing.T) {
	ctx := context.Background()
	env := newCaptureEnv(t, captureConfig())

	order := &orderdomain.Order{CustomerID: 42, TotalAmount: 10000, Currency: "USD"}
	require.NoError(t, env.orders.Create(ctx, order, nil))

	_, err := env.handler.PerformCapture(ctx, order, 0)
	assert.ErrorIs(t, err, domain.ErrNoAuthorization)
}

func TestPerformCapturePartialThenComplete(t *testing.T) {
	ctx := context.Background()
	env := newCaptureEnv(t, captureConfig())
	order := env.authorizedOrder(t, 10000)

	first, err := env.handler.PerformCapture(ctx, order, 4000)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), first.Captured)
	assert.False(t, first.Completed)

	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusPending, fresh.Status)
	assert.Equal(t, "4000", fresh.GetMetaString(env.key(domain.MetaCaptureTotal)))
	assert.Equal(t, "no", fresh.GetMetaString(env.key(domain.MetaChargeCaptured)))

	second, err := env.handler.PerformCapture(ctx, order, 6000)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), second.Captured)
	assert.True(t, second.Completed)

	fresh, err = env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusProcessing, fresh.Status)
	require.NotNil(t, fresh.PaidAt)
	assert.Equal(t, "yes", fresh.GetMetaString(env.key(domain.MetaChargeCaptured)))

	transIDs := fresh.GetMetaString(env.key(domain.MetaCaptureTransIDs))
	assert.Len(t, strings.Split(transIDs, ","), 2)

	_, err = env.handler.PerformCapture(ctx, fresh, 1)
	assert.ErrorIs(t, err, domain.ErrOrderFullyCaptured)
}

func TestPerformCaptureZeroCapturesRemaining(t *testing.T) {
	ctx := context.Background()
	env := newCaptureEnv(t, captureConfig())
	order := env.authorizedOrder(t, 10000)

	result, err := env.handler.PerformCapture(ctx, order, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), result.Captured)
	assert.True(t, result.Completed)
}

func TestPerformCaptureExceedsRemaining(t *testing.T) {
	ctx := context.Background()
	env := newCaptureEnv(t, captureConfig())
	order := env.authorizedOrder(t, 10000)

	_, err := env.handler.PerformCapture(ctx, order, 10001)
	assert.ErrorIs(t, err, domain.ErrCaptureExceedsRemaining)

	_, err = env.handler.PerformCapture(ctx, order, -5)
	assert.ErrorIs(t, err, domain.ErrCaptureExceedsRemaining)
}

func TestPerformCaptureWindowExpired(t *testing.T) {
	ctx := context.Background()
	env := newCaptureEnv(t, captureConfig())
	order := env.authorizedOrder(t, 10000)

	env.clock.Advance(721 * time.Hour)
	_, err := env.handler.PerformCapture(ctx, order, 0)
	assert.ErrorIs(t, err, domain.ErrCaptureWindowExpired)
}

func TestPerformCaptureWithinWindow(t *testing.T) {
	ctx := context.Background()
	env := newCaptureEnv(t, captureConfig())
	order := env.authorizedOrder(t, 10000)

	env.clock.Advance(719 * time.Hour)
	_, err := env.handler.PerformCapture(ctx, order, 0)
	assert.NoError(t, err)
}

func TestPerformCaptureMaxAmount(t *testing.T) {
	ctx := context.Background()
	cfg := captureConfig()
	cfg.CaptureMaxAmount = 1000
	env := newCaptureEnv(t, cfg)
	order := env.authorizedOrder(t, 10000)

	_, err := env.handler.PerformCapture(ctx, order, 2000)
	assert.ErrorIs(t, err, domain.ErrCaptureExceedsMaximum)

	result, err := env.handler.PerformCapture(ctx, order, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), result.Captured)
}

func TestBulkCapture(t *testing.T) {
	ctx := context.Background()
	env := newCaptureEnv(t, captureConfig())

	good := env.authorizedOrder(t, 10000)
	bare := &orderdomain.Order{CustomerID: 42, TotalAmount: 5000, Currency: "USD"}
	require.NoError(t, env.orders.Create(ctx, bare, nil))

	results := env.handler.BulkCapture(ctx, []snowflake.ID{good.ID, bare.ID, 12345})
	require.Len(t, results, 3)

	assert.Equal(t, good.ID, results[0].OrderID)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Result.Completed)

	assert.ErrorIs(t, results[1].Err, domain.ErrNoAuthorization)
	assert.Error(t, results[2].Err)
}
