package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shipyardhq/shipyard/internal/artifact"
	"github.com/shipyardhq/shipyard/internal/billingperiod"
	"github.com/shipyardhq/shipyard/internal/clock"
	"github.com/shipyardhq/shipyard/internal/config"
	"github.com/shipyardhq/shipyard/internal/logger"
	"github.com/shipyardhq/shipyard/internal/migration"
	"github.com/shipyardhq/shipyard/internal/observability/metrics"
	"github.com/shipyardhq/shipyard/internal/owner"
	"github.com/shipyardhq/shipyard/internal/pipeline"
	"github.com/shipyardhq/shipyard/internal/recovery"
	"github.com/shipyardhq/shipyard/internal/server"
	"github.com/shipyardhq/shipyard/internal/usage"
	"github.com/shipyardhq/shipyard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services
		owner.Module,
		pipeline.Module,
		artifact.Module,
		usage.Module,
		billingperiod.Module,

		// Background recovery sweep runs alongside the API.
		recovery.Module,

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
