package sqlite

import (
	"github.com/aisgo/ais-wms-core/database"

	"go.uber.org/fx"
)

// Module SQLite 模块
// 提供: *gorm.DB
var Module = fx.Module("sqlite",
	fx.Provide(NewDB),
	fx.Invoke(database.RegisterClose),
)
