package migration

import (
	"github.com/smallbiznis/beacon/internal/config"
	credentialdomain "github.com/smallbiznis/beacon/internal/credential/domain"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module applies schema migrations on startup. The sqlite path (local
// development and tests) has no migrate driver here, so it AutoMigrates the
// models instead.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "sqlite" {
			return conn.AutoMigrate(
				&credentialdomain.Credential{},
				&eventdomain.Event{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
