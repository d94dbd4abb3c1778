package database

import (
	"context"

	"github.com/aisgo/ais-wms-core/logger"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterClose 在 fx 停止时关闭连接池
func RegisterClose(lc fx.Lifecycle, db *gorm.DB, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			log.Info("closing database connection pool", zap.String("dialect", db.Dialector.Name()))
			return sqlDB.Close()
		},
	})
}
