package usage

import (
	"github.com/shipyardhq/shipyard/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(service.NewService),
)
