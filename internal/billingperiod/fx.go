package billingperiod

import (
	"github.com/shipyardhq/shipyard/internal/billingperiod/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingperiod.service",
	fx.Provide(service.NewService),
)
