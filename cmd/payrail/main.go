package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrail/internal/clock"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway"
	"github.com/smallbiznis/payrail/internal/migration"
	"github.com/smallbiznis/payrail/internal/observability"
	"github.com/smallbiznis/payrail/internal/order"
	"github.com/smallbiznis/payrail/internal/ratelimit"
	"github.com/smallbiznis/payrail/internal/server"
	"github.com/smallbiznis/payrail/internal/token"
	"github.com/smallbiznis/payrail/internal/wallet"
	"github.com/smallbiznis/payrail/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Payment domains
		order.Module,
		token.Module,
		gateway.Module,
		wallet.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
