package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shipyardhq/shipyard/internal/clock"
	"github.com/shipyardhq/shipyard/internal/config"
	"github.com/shipyardhq/shipyard/internal/logger"
	"github.com/shipyardhq/shipyard/internal/observability/metrics"
	"github.com/shipyardhq/shipyard/internal/recovery"
	"github.com/shipyardhq/shipyard/pkg/db"
	"go.uber.org/fx"
)

// Standalone sweeper for deployments that separate the recovery loop
// from the API. Points at the same database as the main service.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// No server module!
		recovery.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
