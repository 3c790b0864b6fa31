package direct

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payrail/internal/clock"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/adapters/sandbox"
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

const (
	testCardApproved = "4242424242424242"
	testCardDeclined = "4000000000000002"
	testCardHeld     = "4000000000000119"

	genericDecline = "The transaction was declined. Please try a different payment method."
)

type testEnv struct {
	proc   *Processor
	orders orderdomain.Service
	tokens tokendomain.Service
	clock  *clock.FakeClock
	db     *gorm.DB
	cfg    config.GatewayConfig
}

func newTestEnv(t *testing.T, cfg config.GatewayConfig) *testEnv {
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

	orders := ordersvc.NewService(ordersvc.Params{DB: gdb, Log: log, GenID: node})
	tokens := tokensvc.NewService(tokensvc.Params{DB: gdb, Log: log, GenID: node})
	clk := clock.NewFakeClock(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	adapter, err := sandbox.NewFactory().NewAdapter(domain.AdapterConfig{
		GatewayID:   cfg.ID,
		Environment: cfg.Environment,
	})
	require.NoError(t, err)

	applier := outcome.NewApplier(cfg, orders, clk, log)
	proc := NewProcessor(cfg, adapter, orders, tokens, applier, clk, log)

	return &testEnv{proc: proc, orders: orders, tokens: tokens, clock: clk, db: gdb, cfg: cfg}
}

func testConfig() config.GatewayConfig {
	return config.GatewayConfig{
		ID:               "sandbox",
		Environment:      "sandbox",
		TransactionType:  config.TransactionTypeCharge,
		RequireCSC:       true,
		TokenizationMode: config.TokenizationDisabled,
	}
}

func (e *testEnv) createOrder(t *testing.T, customerID snowflake.ID, total int64) *orderdomain.Order {
	t.Helper()
	order := &orderdomain.Order{
		CustomerID:  customerID,
		TotalAmount: total,
		Currency:    "USD",
		Billing: orderdomain.BillingAddress{
			FirstName:  "Ada",
			LastName:   "Lovelace",
			Line1:      "1 Main St",
			City:       "Portland",
			State:      "OR",
			PostalCode: "97201",
			Country:    "US",
		},
	}
	require.NoError(t, e.orders.Create(context.Background(), order, nil))
	return order
}

func (e *testEnv) key(name string) string {
	return domain.MetaKey(e.cfg.ID, name)
}

func cardAttempt(number string) *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		Type:          domain.PaymentTypeCreditCard,
		AccountNumber: number,
		ExpMonth:      12,
		ExpYear:       2028,
		CSC:           "123",
	}
}

func TestProcessPaymentApprovedCharge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig())
	order := env.createOrder(t, 42, 5000)

	result, err := env.proc.ProcessPayment(ctx, order, cardAttempt(testCardApproved))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.OutcomeApproved, result.Outcome)
	assert.NotEmpty(t, result.TransactionID)

	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusProcessing, fresh.Status)
	require.NotNil(t, fresh.PaidAt)
	assert.Equal(t, 1, fresh.RetryCount)

	assert.Equal(t, result.TransactionID, fresh.GetMetaString(env.key(domain.MetaTransactionID)))
	assert.Equal(t, "yes", fresh.GetMetaString(env.key(domain.MetaChargeCaptured)))
	assert.Equal(t, "sandbox", fresh.GetMetaString(env.key(domain.MetaEnvironment)))
	assert.Equal(t, "4242", fresh.GetMetaString(env.key(domain.MetaAccountFour)))
	assert.Equal(t, "visa", fresh.GetMetaString(env.key(domain.MetaCardType)))
}

func TestProcessPaymentDeclined(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig())
	order := env.createOrder(t, 42, 5000)

	result, err := env.proc.ProcessPayment(ctx, order, cardAttempt(testCardDeclined))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.OutcomeFailed, result.Outcome)
	assert.Equal(t, genericDecline, result.Message)

	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusFailed, fresh.Status)
	assert.Nil(t, fresh.PaidAt)

	notes, err := env.orders.ListNotes(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, genericDecline, notes[0].Note)

	// A failed order may retry payment.
	assert.True(t, fresh.NeedsPayment())
}

func TestProcessPaymentHeld(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig())
	order := env.createOrder(t, 42, 5000)

	result, err := env.proc.ProcessPayment(ctx, order, cardAttempt(testCardHeld))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHeld, result.Outcome)

	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusOnHold, fresh.Status)
	assert.Equal(t, "transaction held for review", fresh.GetMetaString(env.key(domain.MetaHeldReason)))
}

func TestProcessPaymentAuthorizationHold(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TransactionType = config.TransactionTypeAuthorization
	env := newTestEnv(t, cfg)
	order := env.createOrder(t, 42, 5000)

	result, err := env.proc.ProcessPayment(ctx, order, cardAttempt(testCardApproved))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, result.Outcome)

	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusOnHold, fresh.Status)
	assert.Nil(t, fresh.PaidAt)

	assert.Equal(t, "5000", fresh.GetMetaString(env.key(domain.MetaAuthAmount)))
	assert.Equal(t, "0", fresh.GetMetaString(env.key(domain.MetaCaptureTotal)))
	assert.Equal(t, "no", fresh.GetMetaString(env.key(domain.MetaChargeCaptured)))
	assert.True(t, fresh.StockReduced)
}

func TestProcessPaymentNotPayable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig())
	order := env.createOrder(t, 42, 5000)
	require.NoError(t, env.orders.MarkPaid(ctx, order))

	_, err := env.proc.ProcessPayment(ctx, order, cardAttempt(testCardApproved))
	assert.ErrorIs(t, err, domain.ErrOrderNotPayable)
}

func TestProcessPaymentValidationFailureSkipsGateway(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig())
	order := env.createOrder(t, 42, 5000)

	_, err := env.proc.ProcessPayment(ctx, order, cardAttempt("4242424242424241"))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	// No attempt was made: the order is untouched.
	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusPending, fresh.Status)
	assert.Equal(t, 0, fresh.RetryCount)
}

func TestProcessPaymentRetryReferencesAdvance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig())
	order := env.createOrder(t, 42, 5000)

	attempt := cardAttempt(testCardDeclined)
	_, err := env.proc.ProcessPayment(ctx, order, attempt)
	require.NoError(t, err)
	first := attempt.AttemptRef

	retry := cardAttempt(testCardApproved)
	_, err = env.proc.ProcessPayment(ctx, order, retry)
	require.NoError(t, err)

	assert.Equal(t, order.OrderNumber+"-1", first)
	assert.Equal(t, order.OrderNumber+"-2", retry.AttemptRef)
}

func TestProcessPaymentZeroAmountTokenizes(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TokenizationMode = config.TokenizationWithSale
	env := newTestEnv(t, cfg)
	order := env.createOrder(t, 42, 0)

	attempt := cardAttempt(testCardApproved)
	result, err := env.proc.ProcessPayment(ctx, order, attempt)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, result.Outcome)
	assert.Empty(t, result.TransactionID)

	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusProcessing, fresh.Status)

	owner := tokendomain.Owner{CustomerID: 42, GatewayID: "sandbox", Environment: "sandbox"}
	stored, err := env.tokens.GetTokens(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, stored[0].TokenID, fresh.GetMetaString(env.key(domain.MetaPaymentToken)))
	assert.Equal(t, "4242", stored[0].Last4)
}

func TestProcessPaymentTokenizesAfterApproval(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TokenizationMode = config.TokenizationWithSale
	env := newTestEnv(t, cfg)
	order := env.createOrder(t, 42, 5000)

	attempt := cardAttempt(testCardApproved)
	result, err := env.proc.ProcessPayment(ctx, order, attempt)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, result.Outcome)
	assert.NotEmpty(t, attempt.TokenID)

	owner := tokendomain.Owner{CustomerID: 42, GatewayID: "sandbox", Environment: "sandbox"}
	stored, err := env.tokens.GetTokens(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, order.BillingHash(), stored[0].BillingHash)

	fresh, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, stored[0].TokenID, fresh.GetMetaString(env.key(domain.MetaPaymentToken)))
}

func TestProcessPaymentGuestIsNeverTokenized(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TokenizationMode = config.TokenizationWithSale
	env := newTestEnv(t, cfg)
	order := env.createOrder(t, 0, 5000)

	result, err := env.proc.ProcessPayment(ctx, order, cardAttempt(testCardApproved))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, result.Outcome)

	var count int64
	require.NoError(t, env.db.Model(&tokendomain.PaymentToken{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProcessPaymentStoredToken(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TokenizationMode = config.TokenizationWithSale
	env := newTestEnv(t, cfg)

	first := env.createOrder(t, 42, 5000)
	attempt := cardAttempt(testCardApproved)
	_, err := env.proc.ProcessPayment(ctx, first, attempt)
	require.NoError(t, err)
	require.NotEmpty(t, attempt.TokenID)

	second := env.createOrder(t, 42, 7500)
	result, err := env.proc.ProcessPayment(ctx, second, &domain.PaymentAttempt{
		Type:    domain.PaymentTypeCreditCard,
		TokenID: attempt.TokenID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, result.Outcome)

	fresh, err := env.orders.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusProcessing, fresh.Status)
	assert.Equal(t, attempt.TokenID, fresh.GetMetaString(env.key(domain.MetaPaymentToken)))
}

func TestProcessPaymentECheck(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig())

	order := env.createOrder(t, 42, 5000)
	result, err := env.proc.ProcessPayment(ctx, order, &domain.PaymentAttempt{
		Type:          domain.PaymentTypeECheck,
		AccountNumber: "123456789",
		RoutingNumber: "021000021",
		AccountType:   "checking",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, result.Outcome)

	declinedOrder := env.createOrder(t, 42, 5000)
	result, err = env.proc.ProcessPayment(ctx, declinedOrder, &domain.PaymentAttempt{
		Type:          domain.PaymentTypeECheck,
		AccountNumber: "123456789",
		RoutingNumber: "000000000",
		AccountType:   "checking",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, result.Outcome)
}
