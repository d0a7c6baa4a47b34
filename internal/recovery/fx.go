package recovery

import (
	"context"

	"github.com/shipyardhq/shipyard/internal/config"
	"go.uber.org/fx"
)

// NewConfig maps application configuration onto sweeper settings.
func NewConfig(cfg config.Config) Config {
	return Config{
		SweepInterval: cfg.Recovery.SweepInterval,
		RunTimeout:    cfg.Recovery.RunTimeout,
		BatchSize:     cfg.Recovery.BatchSize,
	}.withDefaults()
}

func registerHooks(lc fx.Lifecycle, s *Sweeper) {
	sweepCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.RunForever(sweepCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			// Retire in-flight work before the process exits.
			return s.CleanupRunningPipelines(ctx)
		},
	})
}

// Module wires the sweeper and binds it to the process lifecycle: the
// sweep loop starts with the app and shutdown fails all running pipelines.
var Module = fx.Module("recovery.sweeper",
	fx.Provide(NewConfig, New),
	fx.Invoke(registerHooks),
)
