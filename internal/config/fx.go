package config

import "go.uber.org/fx"

// Module provides application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) GatewayConfig { return cfg.Gateway }),
	fx.Provide(func(cfg Config) WalletConfig { return cfg.Wallet }),
)
