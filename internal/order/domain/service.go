package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service is the order mutation surface used by the payment processors.
type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Order, error)
	Create(ctx context.Context, order *Order, items []OrderItem) error
	FindPendingByCartHash(ctx context.Context, customerID snowflake.ID, hash string) (*Order, error)
	ReplaceItems(ctx context.Context, orderID snowflake.ID, items []OrderItem) error

	MarkPaid(ctx context.Context, order *Order) error
	MarkFailed(ctx context.Context, order *Order, reason string) error
	Hold(ctx context.Context, order *Order, reason string) error
	Cancel(ctx context.Context, order *Order, note string) error
	MarkRefunded(ctx context.Context, order *Order, note string) error

	AddNote(ctx context.Context, orderID snowflake.ID, note string) error
	ListNotes(ctx context.Context, orderID snowflake.ID) ([]OrderNote, error)
	SetMeta(ctx context.Context, order *Order, values map[string]any) error
	IncrementRetryCount(ctx context.Context, order *Order) (int, error)
	ReduceStock(ctx context.Context, order *Order) error

	GetProduct(ctx context.Context, id snowflake.ID) (*Product, error)
}

var (
	ErrOrderNotFound   = errors.New("order_not_found")
	ErrProductNotFound = errors.New("product_not_found")
	ErrInvalidOrder    = errors.New("invalid_order")
)
