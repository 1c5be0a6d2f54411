package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fleetops/tollsync/internal/config"
	invoicingdomain "github.com/fleetops/tollsync/internal/invoicing/domain"
	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
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

		// sqlite and mysql deployments are dev/test setups; schema sync via
		// the ORM is enough there.
		return conn.AutoMigrate(
			&tollrecorddomain.TollRecord{},
			&invoicingdomain.Invoice{},
			&invoicingdomain.InvoiceLine{},
		)
	}),
)
