package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/tenant"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

/* ========================================================================
 * Scoped Repository - 租户范围仓储
 * ========================================================================
 * 职责: 控制器使用的泛型仓储，组合翻译器、分配器与查询构建器
 *   - 所有读取都带租户谓词，scope 从 Context 读取（缺失即 Blocked）
 *   - Create 必须在事务所有者开启的事务中执行
 *
 * 使用示例:
 *   orders, _ := repository.NewScopedRepository[domain.Order](core, domain.EntityOrder)
 *
 *   err := core.Tx.Execute(ctx, func(txCtx context.Context) error {
 *       order := &domain.Order{CustomerID: customerID}
 *       return orders.Create(txCtx, order) // 写入租户列、参考编号、签发人
 *   })
 *
 *   page, _ := orders.List(ctx, repository.ListParams{Term: "99", Fields: "referral_id,observation"})
 * ======================================================================== */

// ScopedRepository 租户范围仓储实现
type ScopedRepository[T any] struct {
	core       *Core
	entityType EntityType
	def        EntityDef

	schemaOnce sync.Once
	schema     *schema.Schema
	schemaErr  error
}

// NewScopedRepository 创建实体仓储，模型表名必须与注册表一致
func NewScopedRepository[T any](core *Core, entityType EntityType) (*ScopedRepository[T], error) {
	def, err := core.Registry.Def(entityType)
	if err != nil {
		return nil, err
	}
	r := &ScopedRepository[T]{core: core, entityType: entityType, def: def}
	sch, err := r.getSchema()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeConfiguration, err, "parse model for %s", entityType)
	}
	if sch.Table != def.Table {
		return nil, errors.Configurationf("model table %q does not match registered table %q for %s", sch.Table, def.Table, entityType)
	}
	return r, nil
}

// GetDB 获取底层 GORM DB 实例
func (r *ScopedRepository[T]) GetDB() *gorm.DB {
	return r.core.DB
}

// newModelPtr 创建新的模型指针
func (r *ScopedRepository[T]) newModelPtr() *T {
	var model T
	return &model
}

// withContext 返回带 context 的 DB (自动识别事务)
func (r *ScopedRepository[T]) withContext(ctx context.Context) *gorm.DB {
	return getDBFromContext(ctx, r.core.DB)
}

// getSchema 获取缓存的 Schema（线程安全）
func (r *ScopedRepository[T]) getSchema() (*schema.Schema, error) {
	r.schemaOnce.Do(func() {
		stmt := &gorm.Statement{DB: r.core.DB}
		r.schemaErr = stmt.Parse(r.newModelPtr())
		if r.schemaErr == nil {
			r.schema = stmt.Schema
		}
	})
	return r.schema, r.schemaErr
}

// scoped 带租户谓词的查询
func (r *ScopedRepository[T]) scoped(ctx context.Context) (*gorm.DB, Predicate, error) {
	pred, err := r.core.Translator.Translate(r.entityType, tenant.ScopeFromContext(ctx))
	if err != nil {
		return nil, Predicate{}, err
	}
	return pred.Apply(r.withContext(ctx).Model(r.newModelPtr())), pred, nil
}

/* ========================================================================
 * 查询
 * ======================================================================== */

// FindByID 根据 ID 查找 scope 内可见的记录
func (r *ScopedRepository[T]) FindByID(ctx context.Context, id string, opts ...Option) (*T, error) {
	db, pred, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	opt := ApplyOptions(opts)
	db = opt.applyPreloads(opt.applyFilters(db))
	if pred.Joined() {
		db = db.Select(r.def.Table + ".*")
	}

	model := r.newModelPtr()
	pk := clause.Column{Table: r.def.Table, Name: r.def.PrimaryKey}
	if err := db.Where(clause.Eq{Column: pk, Value: id}).Take(model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.ErrCodeNotFound, "record not found")
		}
		return nil, classify(err, "failed to find record")
	}
	return model, nil
}

// List 搜索、排序、分页
func (r *ScopedRepository[T]) List(ctx context.Context, params ListParams, opts ...Option) (*ListResult[T], error) {
	pred, err := r.core.Translator.Translate(r.entityType, tenant.ScopeFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return List[T](ctx, r.core.Queries, r.core.DB, r.entityType, params, pred, opts...)
}

// Count 统计 scope 内可见的记录数
func (r *ScopedRepository[T]) Count(ctx context.Context, opts ...Option) (int64, error) {
	db, _, err := r.scoped(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := ApplyOptions(opts).applyFilters(db).Count(&count).Error; err != nil {
		return 0, classify(err, "failed to count records")
	}
	return count, nil
}

/* ========================================================================
 * 创建
 * ======================================================================== */

// Create 在 Context 中的事务内创建记录
func (r *ScopedRepository[T]) Create(ctx context.Context, model *T) error {
	if model == nil {
		return errors.Validationf("model is nil")
	}
	tx, ok := TxFromContext(ctx)
	if !ok {
		return errors.Configurationf("creating %s requires a transaction in context", r.entityType)
	}
	tx = tx.WithContext(ctx)

	scope := tenant.ScopeFromContext(ctx)
	if err := scope.Require(); err != nil {
		return err
	}
	sch, err := r.getSchema()
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, "parse model schema", err)
	}
	rv := reflect.ValueOf(model)

	seqScope, err := r.authorize(ctx, tx, sch, rv, scope)
	if err != nil {
		return err
	}

	if r.def.Sequence != nil {
		ref, err := r.core.Allocator.Allocate(ctx, tx, r.entityType, seqScope)
		if err != nil {
			return err
		}
		if err := setColumn(ctx, sch, rv, r.def.Sequence.Column, ref); err != nil {
			return err
		}
	}

	if setter, ok := any(model).(IssuerSetter); ok {
		if p, ok := tenant.PrincipalFromContext(ctx); ok {
			if actor, ok := p.Actor(); ok {
				setter.SetIssuer(actor)
			}
		}
	}

	if err := tx.Create(model).Error; err != nil {
		return classify(err, fmt.Sprintf("failed to create %s", r.entityType))
	}
	return nil
}

// authorize 校验并写入租户列，返回参考编号分配使用的 scope
func (r *ScopedRepository[T]) authorize(ctx context.Context, tx *gorm.DB, sch *schema.Schema, rv reflect.Value, scope tenant.Scope) (tenant.Scope, error) {
	path := r.def.Scope
	if !path.IsOwn() {
		fk := readColumn(ctx, sch, rv, path.Hops[0].ForeignKey)
		if fk == "" {
			return tenant.Scope{}, errors.Validationf("%s requires %s", r.entityType, path.Hops[0].ForeignKey)
		}
		visible, err := r.core.Translator.ParentVisible(tx, r.entityType, scope, fk)
		if err != nil {
			return tenant.Scope{}, classify(err, "failed to check parent visibility")
		}
		if !visible {
			return tenant.Scope{}, errors.AccessDenied(fmt.Sprintf("%s is not visible in the current tenant scope", path.Hops[0].Association))
		}
		return scope, nil
	}

	companyID := readColumn(ctx, sch, rv, path.CompanyColumn)
	if companyID == "" {
		companyID = scope.CompanyID()
	}
	if path.BranchColumn == "" {
		if companyID != scope.CompanyID() {
			return tenant.Scope{}, errors.AccessDenied("company is outside the current tenant scope")
		}
		if err := setColumn(ctx, sch, rv, path.CompanyColumn, companyID); err != nil {
			return tenant.Scope{}, err
		}
		return tenant.CompanyScope(companyID), nil
	}

	branchID := readColumn(ctx, sch, rv, path.BranchColumn)
	if branchID == "" {
		if single, ok := scope.SingleBranch(); ok {
			branchID = single
		}
	}
	if err := scope.Authorize(companyID, branchID); err != nil {
		return tenant.Scope{}, err
	}
	if err := setColumn(ctx, sch, rv, path.CompanyColumn, companyID); err != nil {
		return tenant.Scope{}, err
	}
	if branchID == "" {
		return tenant.CompanyScope(companyID), nil
	}
	if err := setColumn(ctx, sch, rv, path.BranchColumn, branchID); err != nil {
		return tenant.Scope{}, err
	}
	return tenant.BranchScope(companyID, branchID), nil
}

// readColumn 读取字符串或字符串指针列
func readColumn(ctx context.Context, sch *schema.Schema, rv reflect.Value, column string) string {
	f, ok := sch.FieldsByDBName[column]
	if !ok {
		return ""
	}
	v, zero := f.ValueOf(ctx, rv)
	if zero {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s != nil {
			return *s
		}
	}
	return ""
}

// setColumn 写入字符串或字符串指针列
func setColumn(ctx context.Context, sch *schema.Schema, rv reflect.Value, column, value string) error {
	f, ok := sch.FieldsByDBName[column]
	if !ok {
		return errors.Configurationf("model %s has no column %q", sch.Name, column)
	}
	var v any = value
	if f.FieldType.Kind() == reflect.Ptr {
		v = &value
	}
	if err := f.Set(ctx, rv, v); err != nil {
		return errors.Wrapf(errors.ErrCodeConfiguration, err, "set column %q", column)
	}
	return nil
}
