package domain

import (
	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/repository"
	"github.com/aisgo/ais-wms-core/tenant"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

/* ========================================================================
 * Domain Module
 * ========================================================================
 * 职责: 注册实体定义，为每个实体提供租户范围仓储
 * 依赖: repository.Module, *gorm.DB, conf.CoreConfig
 * ======================================================================== */

// Models 返回需要迁移的全部模型
func Models() []any {
	return []any{
		&Company{},
		&Branch{},
		&tenant.Membership{},
		&Customer{},
		&Order{},
		&Invoice{},
		&Project{},
		&Expedition{},
		&Box{},
		&ProductionOrder{},
		&Item{},
		&Movement{},
	}
}

// Migrate 自动迁移全部模型（开发与测试环境使用）
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "auto migrate domain models", err)
	}
	return nil
}

// Repositories 各实体的租户范围仓储
type Repositories struct {
	Branches         repository.Repository[Branch]
	Customers        repository.Repository[Customer]
	Orders           repository.Repository[Order]
	Invoices         repository.Repository[Invoice]
	Projects         repository.Repository[Project]
	Expeditions      repository.Repository[Expedition]
	Boxes            repository.Repository[Box]
	ProductionOrders repository.Repository[ProductionOrder]
	Items            repository.Repository[Item]
	Movements        repository.Repository[Movement]
}

// NewRepositories 创建全部仓储，模型与注册表不一致时启动失败
func NewRepositories(core *repository.Core) (*Repositories, error) {
	var (
		r   Repositories
		err error
	)
	if r.Branches, err = repository.NewScopedRepository[Branch](core, EntityBranch); err != nil {
		return nil, err
	}
	if r.Customers, err = repository.NewScopedRepository[Customer](core, EntityCustomer); err != nil {
		return nil, err
	}
	if r.Orders, err = repository.NewScopedRepository[Order](core, EntityOrder); err != nil {
		return nil, err
	}
	if r.Invoices, err = repository.NewScopedRepository[Invoice](core, EntityInvoice); err != nil {
		return nil, err
	}
	if r.Projects, err = repository.NewScopedRepository[Project](core, EntityProject); err != nil {
		return nil, err
	}
	if r.Expeditions, err = repository.NewScopedRepository[Expedition](core, EntityExpedition); err != nil {
		return nil, err
	}
	if r.Boxes, err = repository.NewScopedRepository[Box](core, EntityBox); err != nil {
		return nil, err
	}
	if r.ProductionOrders, err = repository.NewScopedRepository[ProductionOrder](core, EntityProductionOrder); err != nil {
		return nil, err
	}
	if r.Items, err = repository.NewScopedRepository[Item](core, EntityItem); err != nil {
		return nil, err
	}
	if r.Movements, err = repository.NewScopedRepository[Movement](core, EntityMovement); err != nil {
		return nil, err
	}
	return &r, nil
}

// Module 领域模块
// 提供: *repository.Registry, *Repositories
var Module = fx.Module("domain",
	repository.RegistryProvider(Definitions()...),
	fx.Provide(NewRepositories),
)
