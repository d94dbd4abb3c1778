package cache

import (
	"github.com/aisgo/ais-wms-core/cache/redis"

	"go.uber.org/fx"
)

/* ========================================================================
 * Cache Module
 * ========================================================================
 * 职责: 提供 Redis 客户端，供 repository 的 redis 锁策略注入
 * 依赖: redis.Config, *logger.Logger
 * 说明: lock_strategy 不是 redis 时无需引入本模块，CoreParams 中客户端为可选依赖
 * ======================================================================== */

// Module 缓存模块
// 提供: *redis.Client
var Module = fx.Module("cache",
	fx.Provide(redis.NewClient),
)
