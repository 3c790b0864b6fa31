package migration

import (
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/hosted"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned migrations target postgres; other dialects
			// (sqlite in tests, mysql) derive the schema from the models.
			return conn.AutoMigrate(
				&orderdomain.Order{},
				&orderdomain.OrderItem{},
				&orderdomain.OrderNote{},
				&orderdomain.Product{},
				&tokendomain.PaymentToken{},
				&hosted.GatewayNotification{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
