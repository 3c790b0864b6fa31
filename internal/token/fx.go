package token

import (
	"github.com/smallbiznis/payrail/internal/token/service"
	"go.uber.org/fx"
)

var Module = fx.Module("token.service",
	fx.Provide(service.NewService),
)
