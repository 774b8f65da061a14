package migration

import (
	"github.com/smallbiznis/opspulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations", fx.Invoke(apply))

func apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if !cfg.DBRunMigrations {
		log.Info("migrations skipped", zap.Bool("enabled", false))
		return nil
	}
	res, err := Run(conn)
	if err != nil {
		return err
	}
	log.Info("migrations applied",
		zap.String("dialect", res.Dialect),
		zap.Uint("version", res.Version),
		zap.Bool("dirty", res.Dirty),
	)
	return nil
}
