package artifact

import (
	"github.com/shipyardhq/shipyard/internal/artifact/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("artifact.repository",
	fx.Provide(repository.NewRepository),
)
