package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payrail/internal/clock"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/adapters/sandbox"
	"github.com/smallbiznis/payrail/internal/gateway/capture"
	"github.com/smallbiznis/payrail/internal/gateway/direct"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
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

type gatewayEnv struct {
	gw     *Gateway
	orders orderdomain.Service
	cfg    config.GatewayConfig
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()

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

	cfg := config.GatewayConfig{
		ID:                 "sandbox",
		Environment:        "sandbox",
		TransactionType:    config.TransactionTypeCharge,
		CaptureWindowHours: 720,
	}

	orders := ordersvc.NewService(ordersvc.Params{DB: gdb, Log: log, GenID: node})
	tokens := tokensvc.NewService(tokensvc.Params{DB: gdb, Log: log, GenID: node})
	clk := clock.NewFakeClock(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	adapter, err := sandbox.NewFactory().NewAdapter(domain.AdapterConfig{
		GatewayID:   cfg.ID,
		Environment: cfg.Environment,
	})
	require.NoError(t, err)

	applier := outcome.NewApplier(cfg, orders, clk, log)
	directProc := direct.NewProcessor(cfg, adapter, orders, tokens, applier, clk, log)
	captureHandler := capture.NewHandler(cfg, adapter, orders, clk, log)

	return &gatewayEnv{
		gw:     New(cfg, adapter, directProc, nil, captureHandler, orders, log),
		orders: orders,
		cfg:    cfg,
	}
}

func (e *gatewayEnv) key(name string) string {
	return domain.MetaKey(e.cfg.ID, name)
}

func (e *gatewayEnv) paidOrder(t *testing.T, total int64) *orderdomain.Order {
	t.Helper()
	ctx := context.Background()
	order := &orderdomain.Order{CustomerID: 42, TotalAmount: total, Currency: "USD"}
	require.NoError(t, e.orders.Create(ctx, order, nil))

	result, err := e.gw.ProcessPayment(ctx, order, &domain.PaymentAttempt{
		Type:          domain.PaymentTypeCreditCard,
		AccountNumber: "4242424242424242",
		ExpMonth:      12,
		ExpYear:       2028,
		CSC:           "123",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApproved, result.Outcome)
	return order
}

func TestRefundPartialThenFull(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	order := env.paidOrder(t, 10000)

	resp, err := env.gw.Refund(ctx, order, 4000, "damaged item")
	require.NoError(t, err)
	assert.True(t, resp.Approved())

	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusProcessing, fresh.Status)
	assert.Equal(t, "4000", fresh.GetMetaString(env.key(domain.MetaRefundTotal)))

	// A zero amount refunds the remainder and flips the order status.
	resp, err = env.gw.Refund(ctx, fresh, 0, "")
	require.NoError(t, err)
	assert.True(t, resp.Approved())

	fresh, err = env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusRefunded, fresh.Status)
	assert.Equal(t, "10000", fresh.GetMetaString(env.key(domain.MetaRefundTotal)))

	_, err = env.gw.Refund(ctx, fresh, 1, "")
	assert.ErrorIs(t, err, domain.ErrRefundNotSupported)
}

func TestRefundBounds(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	order := env.paidOrder(t, 10000)

	_, err := env.gw.Refund(ctx, order, 10001, "")
	assert.ErrorIs(t, err, domain.ErrRefundNotSupported)

	_, err = env.gw.Refund(ctx, order, -1, "")
	assert.ErrorIs(t, err, domain.ErrRefundNotSupported)
}

func TestRefundRequiresTransaction(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)

	order := &orderdomain.Order{CustomerID: 42, TotalAmount: 10000, Currency: "USD"}
	require.NoError(t, env.orders.Create(ctx, order, nil))

	_, err := env.gw.Refund(ctx, order, 0, "")
	assert.ErrorIs(t, err, domain.ErrNoAuthorization)
}

func TestVoidReleasesAuthorization(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)

	// An authorization hold that never settled.
	order := &orderdomain.Order{CustomerID: 42, TotalAmount: 10000, Currency: "USD"}
	require.NoError(t, env.orders.Create(ctx, order, nil))
	require.NoError(t, env.orders.SetMeta(ctx, order, map[string]any{
		env.key(domain.MetaTransactionID):  "txn_auth",
		env.key(domain.MetaAuthAmount):     "10000",
		env.key(domain.MetaChargeCaptured): "no",
	}))

	resp, err := env.gw.Void(ctx, order)
	require.NoError(t, err)
	assert.True(t, resp.Approved())

	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusCancelled, fresh.Status)
}

func TestVoidRefusesSettledCharge(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	order := env.paidOrder(t, 10000)

	_, err := env.gw.Void(ctx, order)
	assert.ErrorIs(t, err, domain.ErrVoidNotAvailable)
}

func TestProcessPaymentDispatchesDirect(t *testing.T) {
	env := newGatewayEnv(t)
	assert.False(t, env.gw.Capabilities().Hosted)
	assert.NotNil(t, env.gw.Direct())
	assert.NotNil(t, env.gw.Capture())
	assert.Equal(t, "sandbox", env.gw.Config().ID)
}
