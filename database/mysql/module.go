package mysql

import (
	"github.com/aisgo/ais-wms-core/database"

	"go.uber.org/fx"
)

// Module MySQL 模块
// 提供: *gorm.DB
var Module = fx.Module("mysql",
	fx.Provide(NewDB),
	fx.Invoke(database.RegisterClose),
)
