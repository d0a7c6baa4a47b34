package migration

import (
	artifactdomain "github.com/shipyardhq/shipyard/internal/artifact/domain"
	billingperioddomain "github.com/shipyardhq/shipyard/internal/billingperiod/domain"
	"github.com/shipyardhq/shipyard/internal/config"
	ownerdomain "github.com/shipyardhq/shipyard/internal/owner/domain"
	pipelinedomain "github.com/shipyardhq/shipyard/internal/pipeline/domain"
	usagedomain "github.com/shipyardhq/shipyard/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Dev dialects (sqlite, mysql) use schema auto-migration.
		return conn.AutoMigrate(
			&ownerdomain.User{},
			&ownerdomain.Organization{},
			&pipelinedomain.Pipeline{},
			&pipelinedomain.PipelineRun{},
			&artifactdomain.Artifact{},
			&usagedomain.UsageRecord{},
			&billingperioddomain.BillingPeriod{},
		)
	}),
)
