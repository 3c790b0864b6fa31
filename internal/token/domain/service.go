package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/payrail/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
)

// Owner identifies the (customer, gateway, environment) triple a token
// collection belongs to.
type Owner struct {
	CustomerID  snowflake.ID
	GatewayID   string
	Environment string
}

// Service is the stored-token surface used by the processors and the HTTP
// layer.
type Service interface {
	GetTokens(ctx context.Context, owner Owner) ([]PaymentToken, error)
	GetToken(ctx context.Context, owner Owner, tokenID string) (*PaymentToken, error)
	AddToken(ctx context.Context, token *PaymentToken) error
	UpdateToken(ctx context.Context, token *PaymentToken) error
	RemoveToken(ctx context.Context, owner Owner, tokenID string) error
	SetDefaultToken(ctx context.Context, owner Owner, tokenID string) error

	BuildToken(tokenID string, data map[string]any) *PaymentToken
	CreateTokenFromResponse(ctx context.Context, order *orderdomain.Order, resp *gatewaydomain.TransactionResponse) (*PaymentToken, error)
	RefreshBillingHash(ctx context.Context, token *PaymentToken, billingHash string) error

	InvalidateCache(owner Owner)
}

var (
	ErrTokenNotFound = errors.New("token_not_found")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrInvalidOwner  = errors.New("invalid_owner")
)
