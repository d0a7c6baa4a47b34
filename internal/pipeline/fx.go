package pipeline

import (
	"github.com/shipyardhq/shipyard/internal/pipeline/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pipeline.reader",
	fx.Provide(service.NewService),
)
