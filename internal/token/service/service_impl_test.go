package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	gatewaydomain "github.com/smallbiznis/payrail/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) tokendomain.Service {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&tokendomain.PaymentToken{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{DB: gdb, Log: zap.NewNop(), GenID: node})
}

func testOwner() tokendomain.Owner {
	return tokendomain.Owner{CustomerID: 42, GatewayID: "sandbox", Environment: "sandbox"}
}

func newToken(owner tokendomain.Owner, tokenID string) *tokendomain.PaymentToken {
	return &tokendomain.PaymentToken{
		CustomerID:  owner.CustomerID,
		GatewayID:   owner.GatewayID,
		Environment: owner.Environment,
		TokenID:     tokenID,
		Last4:       "4242",
		ExpMonth:    12,
		ExpYear:     2028,
	}
}

func TestAddAndGetToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	owner := testOwner()

	require.NoError(t, svc.AddToken(ctx, newToken(owner, "tok_a")))

	token, err := svc.GetToken(ctx, owner, "tok_a")
	require.NoError(t, err)
	assert.Equal(t, "tok_a", token.TokenID)
	assert.Equal(t, "4242", token.Last4)
	assert.NotZero(t, token.ID)

	_, err = svc.GetToken(ctx, owner, "tok_missing")
	assert.ErrorIs(t, err, tokendomain.ErrTokenNotFound)
}

func TestAddTokenValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	assert.ErrorIs(t, svc.AddToken(ctx, nil), tokendomain.ErrInvalidToken)
	assert.ErrorIs(t, svc.AddToken(ctx, &tokendomain.PaymentToken{CustomerID: 42, GatewayID: "sandbox", Environment: "sandbox"}), tokendomain.ErrInvalidToken)
	assert.ErrorIs(t, svc.AddToken(ctx, &tokendomain.PaymentToken{TokenID: "tok_a"}), tokendomain.ErrInvalidOwner)
}

func TestGetTokensScopedToOwner(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	owner := testOwner()

	require.NoError(t, svc.AddToken(ctx, newToken(owner, "tok_a")))
	require.NoError(t, svc.AddToken(ctx, newToken(owner, "tok_b")))

	other := tokendomain.Owner{CustomerID: 77, GatewayID: "sandbox", Environment: "sandbox"}
	require.NoError(t, svc.AddToken(ctx, newToken(other, "tok_c")))

	tokens, err := svc.GetTokens(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	// Environments never see each other's tokens.
	live := tokendomain.Owner{CustomerID: 42, GatewayID: "sandbox", Environment: "live"}
	tokens, err = svc.GetTokens(ctx, live)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	_, err = svc.GetTokens(ctx, tokendomain.Owner{GatewayID: "sandbox", Environment: "sandbox"})
	assert.ErrorIs(t, err, tokendomain.ErrInvalidOwner)
}

func TestRemoveToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	owner := testOwner()

	require.NoError(t, svc.AddToken(ctx, newToken(owner, "tok_a")))
	require.NoError(t, svc.RemoveToken(ctx, owner, "tok_a"))

	_, err := svc.GetToken(ctx, owner, "tok_a")
	assert.ErrorIs(t, err, tokendomain.ErrTokenNotFound)

	assert.ErrorIs(t, svc.RemoveToken(ctx, owner, "tok_a"), tokendomain.ErrTokenNotFound)
}

func TestSetDefaultTokenExclusive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	owner := testOwner()

	require.NoError(t, svc.AddToken(ctx, newToken(owner, "tok_a")))
	require.NoError(t, svc.AddToken(ctx, newToken(owner, "tok_b")))

	require.NoError(t, svc.SetDefaultToken(ctx, owner, "tok_a"))
	require.NoError(t, svc.SetDefaultToken(ctx, owner, "tok_b"))

	tokens, err := svc.GetTokens(ctx, owner)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	defaults := map[string]bool{}
	for _, token := range tokens {
		defaults[token.TokenID] = token.IsDefault
	}
	assert.False(t, defaults["tok_a"])
	assert.True(t, defaults["tok_b"])

	assert.ErrorIs(t, svc.SetDefaultToken(ctx, owner, "tok_missing"), tokendomain.ErrTokenNotFound)
}

func TestBuildToken(t *testing.T) {
	svc := newTestService(t)

	token := svc.BuildToken("tok_a", map[string]any{
		"type":      "visa",
		"last_four": "4242",
		"nickname":  "personal",
		"expiry":    "09/27",
		"default":   true,
	})
	assert.Equal(t, "tok_a", token.TokenID)
	assert.Equal(t, "visa", token.InstrumentType)
	assert.Equal(t, "4242", token.Last4)
	assert.Equal(t, "personal", token.Nickname)
	assert.Equal(t, 9, token.ExpMonth)
	assert.Equal(t, 2027, token.ExpYear)
	assert.True(t, token.IsDefault)

	// JSON numbers decode as float64.
	token = svc.BuildToken("tok_b", map[string]any{
		"exp_month": float64(12),
		"exp_year":  float64(2030),
	})
	assert.Equal(t, 12, token.ExpMonth)
	assert.Equal(t, 2030, token.ExpYear)

	token = svc.BuildToken("tok_c", map[string]any{"expiry": "0927"})
	assert.Equal(t, 9, token.ExpMonth)
	assert.Equal(t, 2027, token.ExpYear)

	token = svc.BuildToken("tok_d", map[string]any{"expiry": "garbage"})
	assert.Zero(t, token.ExpMonth)
	assert.Zero(t, token.ExpYear)
}

func TestCreateTokenFromResponse(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	order := &orderdomain.Order{
		CustomerID: 42,
		Billing: orderdomain.BillingAddress{
			FirstName:  "Ada",
			Line1:      "1 Main St",
			City:       "Portland",
			PostalCode: "97201",
			Country:    "US",
		},
	}
	resp := &gatewaydomain.TransactionResponse{
		Outcome: gatewaydomain.OutcomeApproved,
		Token: &gatewaydomain.TokenData{
			TokenID:        "tok_remote",
			Last4:          "4242",
			InstrumentType: "visa",
			ExpMonth:       9,
			ExpYear:        2028,
		},
	}

	token, err := svc.CreateTokenFromResponse(ctx, order, resp)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), token.CustomerID)
	assert.Equal(t, "tok_remote", token.TokenID)
	assert.Equal(t, order.BillingHash(), token.BillingHash)

	_, err = svc.CreateTokenFromResponse(ctx, order, &gatewaydomain.TransactionResponse{})
	assert.ErrorIs(t, err, tokendomain.ErrInvalidToken)
}

func TestRefreshBillingHash(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	owner := testOwner()

	token := newToken(owner, "tok_a")
	token.BillingHash = "old"
	require.NoError(t, svc.AddToken(ctx, token))

	require.NoError(t, svc.RefreshBillingHash(ctx, token, "new"))

	fresh, err := svc.GetToken(ctx, owner, "tok_a")
	require.NoError(t, err)
	assert.Equal(t, "new", fresh.BillingHash)

	// No-op when the hash already matches.
	before := fresh.UpdatedAt
	require.NoError(t, svc.RefreshBillingHash(ctx, fresh, "new"))
	after, err := svc.GetToken(ctx, owner, "tok_a")
	require.NoError(t, err)
	assert.Equal(t, before, after.UpdatedAt)
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	current := &tokendomain.PaymentToken{ExpMonth: 6, ExpYear: 2026}
	assert.False(t, current.Expired(now))

	past := &tokendomain.PaymentToken{ExpMonth: 5, ExpYear: 2026}
	assert.True(t, past.Expired(now))

	// Tokens without recorded expiry never expire.
	bare := &tokendomain.PaymentToken{}
	assert.False(t, bare.Expired(now))
}

func TestParseExpiryForms(t *testing.T) {
	tests := []struct {
		raw   string
		month int
		year  int
	}{
		{"09/27", 9, 2027},
		{"9/27", 9, 2027},
		{"12-2030", 12, 2030},
		{"0927", 9, 2027},
		{"13/27", 0, 0},
		{"", 0, 0},
		{"9", 0, 0},
	}
	for _, tc := range tests {
		month, year := parseExpiry(tc.raw)
		assert.Equal(t, tc.month, month, tc.raw)
		assert.Equal(t, tc.year, year, tc.raw)
	}
}
