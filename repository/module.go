package repository

import (
	"github.com/aisgo/ais-wms-core/cache/redis"
	"github.com/aisgo/ais-wms-core/conf"
	"github.com/aisgo/ais-wms-core/logger"
	"github.com/aisgo/ais-wms-core/metrics"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

/* ========================================================================
 * Repository Module
 * ========================================================================
 * 职责: 组装数据访问核心（翻译器、分配器、查询构建器、事务所有者）
 * 依赖: *gorm.DB, conf.CoreConfig, *Registry（由领域模块提供）,
 *       *redis.Client 与 *metrics.Collector 可选
 * ======================================================================== */

// Core 数据访问核心组件
type Core struct {
	DB         *gorm.DB
	Registry   *Registry
	Translator *Translator
	Allocator  *Allocator
	Queries    *QueryBuilder
	Tx         *TxManager
}

// CoreParams 依赖注入参数
type CoreParams struct {
	fx.In

	DB       *gorm.DB
	Registry *Registry
	Logger   *logger.Logger
	Redis    *redis.Client      `optional:"true"`
	Metrics  *metrics.Collector `optional:"true"`
}

// NewCore 组装数据访问核心，锁策略取自注册表生效的配置，并按数据库方言校验
func NewCore(p CoreParams) (*Core, error) {
	cfg := p.Registry.Config()
	locker, err := NewLocker(cfg, p.DB.Dialector.Name(), p.Redis, p.Logger)
	if err != nil {
		return nil, err
	}
	translator := NewTranslator(p.Registry)
	return &Core{
		DB:         p.DB,
		Registry:   p.Registry,
		Translator: translator,
		Allocator:  NewAllocator(p.Registry, locker, p.Metrics, p.Logger),
		Queries:    NewQueryBuilder(p.Registry, translator, p.Metrics, p.Logger),
		Tx:         NewTxManager(p.DB, cfg, p.Logger),
	}, nil
}

// Module 仓储模块
// 提供: *Core, *Translator, *Allocator, *QueryBuilder, *TxManager
var Module = fx.Module("repository",
	fx.Provide(
		NewCore,
		func(c *Core) *Translator { return c.Translator },
		func(c *Core) *Allocator { return c.Allocator },
		func(c *Core) *QueryBuilder { return c.Queries },
		func(c *Core) *TxManager { return c.Tx },
	),
)

// RegistryProvider 以给定实体定义提供 *Registry
func RegistryProvider(defs ...EntityDef) fx.Option {
	return fx.Provide(func(cfg conf.CoreConfig) (*Registry, error) {
		return NewRegistry(cfg, defs...)
	})
}
