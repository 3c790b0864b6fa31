package hosted

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// GatewayNotification is the event log for hosted callbacks. Every
// notification is inserted before it is processed; the unique
// (provider, provider_ref) index turns a redelivery into a duplicate key
// error instead of a second mutation.
type GatewayNotification struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	Provider    string         `gorm:"type:text;not null;uniqueIndex:ux_gateway_notifications_ref,priority:1"`
	ProviderRef string         `gorm:"type:text;not null;uniqueIndex:ux_gateway_notifications_ref,priority:2"`
	Kind        string         `gorm:"type:text;not null"`
	OrderRef    string         `gorm:"type:text;index"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	Disposition string         `gorm:"type:text"`
	ReceivedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ProcessedAt *time.Time     `gorm:""`
}

// TableName sets the database table name.
func (GatewayNotification) TableName() string { return "gateway_notifications" }
