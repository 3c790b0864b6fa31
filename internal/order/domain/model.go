// Package domain contains the order collaborator surface. The order
// aggregate is owned by the commerce subsystem; status transitions, notes
// and namespaced meta writes are the only mutations performed here.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrderStatus represents order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusOnHold     OrderStatus = "on_hold"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// BillingAddress is the billing contact snapshot on an order.
type BillingAddress struct {
	FirstName  string `gorm:"type:text"`
	LastName   string `gorm:"type:text"`
	Line1      string `gorm:"type:text"`
	Line2      string `gorm:"type:text"`
	City       string `gorm:"type:text"`
	State      string `gorm:"type:text"`
	PostalCode string `gorm:"type:text"`
	Country    string `gorm:"type:text"`
}

// Order is the external order aggregate as seen by the payment core.
type Order struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	OrderNumber   string            `gorm:"type:text;not null;uniqueIndex"`
	CustomerID    snowflake.ID      `gorm:"index"`
	Status        OrderStatus       `gorm:"type:text;not null;default:'pending'"`
	TotalAmount   int64             `gorm:"not null;default:0"`
	Currency      string            `gorm:"type:text;not null"`
	PaymentMethod string            `gorm:"type:text"`
	Billing       BillingAddress    `gorm:"embedded;embeddedPrefix:billing_"`
	CartHash      string            `gorm:"type:text;index"`
	RetryCount    int               `gorm:"not null;default:0"`
	StockReduced  bool              `gorm:"not null;default:false"`
	Meta          datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	PaidAt        *time.Time        `gorm:""`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// NeedsPayment reports whether the order still awaits a successful payment.
// It doubles as the idempotency guard for duplicate hosted notifications.
func (o *Order) NeedsPayment() bool {
	if o == nil {
		return false
	}
	switch o.Status {
	case OrderStatusPending, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// BillingHash returns a stable hash of the billing address, used as the
// staleness marker on stored payment tokens.
func (o *Order) BillingHash() string {
	if o == nil {
		return ""
	}
	parts := []string{
		o.Billing.FirstName,
		o.Billing.LastName,
		o.Billing.Line1,
		o.Billing.Line2,
		o.Billing.City,
		o.Billing.State,
		o.Billing.PostalCode,
		o.Billing.Country,
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// GetMeta reads a meta value from the loaded order.
func (o *Order) GetMeta(key string) (any, bool) {
	if o == nil || o.Meta == nil {
		return nil, false
	}
	value, ok := o.Meta[key]
	return value, ok
}

// GetMetaString reads a meta value as a string.
func (o *Order) GetMetaString(key string) string {
	value, ok := o.GetMeta(key)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// OrderItem represents a line on an order.
type OrderItem struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OrderID    snowflake.ID `gorm:"not null;index"`
	ProductID  snowflake.ID `gorm:"index"`
	Name       string       `gorm:"type:text;not null"`
	Quantity   int64        `gorm:"not null"`
	UnitAmount int64        `gorm:"not null"`
	Amount     int64        `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }

// OrderNote is an append-only annotation on an order.
type OrderNote struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrderID   snowflake.ID `gorm:"not null;index"`
	Note      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderNote) TableName() string { return "order_notes" }

// Product is the minimal product surface the wallet flows and stock
// accounting read.
type Product struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	Name             string       `gorm:"type:text;not null"`
	UnitAmount       int64        `gorm:"not null"`
	Currency         string       `gorm:"type:text;not null"`
	Stock            int64        `gorm:"not null;default:0"`
	RequiresShipping bool         `gorm:"not null;default:false"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }
