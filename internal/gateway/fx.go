package gateway

import (
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/adapters"
	"github.com/smallbiznis/payrail/internal/gateway/adapters/hostedpay"
	"github.com/smallbiznis/payrail/internal/gateway/adapters/sandbox"
	"github.com/smallbiznis/payrail/internal/gateway/capture"
	"github.com/smallbiznis/payrail/internal/gateway/direct"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
	"github.com/smallbiznis/payrail/internal/gateway/hosted"
	"github.com/smallbiznis/payrail/internal/gateway/outcome"
	"go.uber.org/fx"
)

// NewDefaultRegistry registers the built-in adapter factories.
func NewDefaultRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		sandbox.NewFactory(),
		hostedpay.NewFactory(),
	)
}

// NewAdapter resolves the configured provider into a live adapter.
func NewAdapter(cfg config.GatewayConfig, registry *adapters.Registry) (domain.Adapter, error) {
	return registry.NewAdapter(cfg.ID, domain.AdapterConfig{
		GatewayID:   cfg.ID,
		Environment: cfg.Environment,
		Config: map[string]string{
			"secret":       cfg.HostedSecret,
			"pay_page_url": cfg.HostedPayPageURL,
			"api_url":      cfg.HostedAPIURL,
		},
	})
}

var Module = fx.Module("gateway",
	fx.Provide(NewDefaultRegistry),
	fx.Provide(NewAdapter),
	fx.Provide(outcome.NewApplier),
	fx.Provide(direct.NewProcessor),
	fx.Provide(hosted.NewProcessor),
	fx.Provide(capture.NewHandler),
	fx.Provide(New),
)
