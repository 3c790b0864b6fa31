// Package domain contains persistence models for stored payment tokens.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentToken is a stored payment instrument reference. Tokens are owned
// by a (customer, gateway, environment) triple; at most one token per
// triple carries the default flag.
type PaymentToken struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	CustomerID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_payment_tokens_owner_token,priority:1"`
	GatewayID      string       `gorm:"type:text;not null;uniqueIndex:ux_payment_tokens_owner_token,priority:2"`
	Environment    string       `gorm:"type:text;not null;uniqueIndex:ux_payment_tokens_owner_token,priority:3"`
	TokenID        string       `gorm:"type:text;not null;uniqueIndex:ux_payment_tokens_owner_token,priority:4"`
	InstrumentType string       `gorm:"type:text"`
	Last4          string       `gorm:"type:text"`
	ExpMonth       int          `gorm:"not null;default:0"`
	ExpYear        int          `gorm:"not null;default:0"`
	IsDefault      bool         `gorm:"not null;default:false"`
	Nickname       string       `gorm:"type:text"`
	BillingHash    string       `gorm:"type:text"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentToken) TableName() string { return "payment_tokens" }

// Expired reports whether the token's expiry date is in the past.
func (t *PaymentToken) Expired(now time.Time) bool {
	if t == nil || t.ExpYear == 0 {
		return false
	}
	endOfMonth := time.Date(t.ExpYear, time.Month(t.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	return !now.Before(endOfMonth)
}

// Stale reports whether the order's billing hash no longer matches the
// hash recorded at creation or last update.
func (t *PaymentToken) Stale(billingHash string) bool {
	if t == nil {
		return false
	}
	billingHash = strings.TrimSpace(billingHash)
	return billingHash != "" && t.BillingHash != billingHash
}
