package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* ========================================================================
 * Repository Interfaces - 仓储接口定义
 * ========================================================================
 * 职责: 定义租户范围仓储接口、查询选项与结果类型
 * 设计: 使用泛型提供类型安全的数据访问
 * ======================================================================== */

// QueryOption 查询选项
type QueryOption struct {
	// Preloads 预加载关联（如 "Project", "Project.Company"）
	Preloads []string
	// Scopes 查询作用域
	Scopes []func(*gorm.DB) *gorm.DB
	// Conditions 控制器附加的过滤条件，与租户谓词 AND 组合
	Conditions []clause.Expression
}

// Option 应用查询选项
type Option func(*QueryOption)

// WithPreloads 设置预加载
func WithPreloads(preloads ...string) Option {
	return func(o *QueryOption) {
		o.Preloads = append(o.Preloads, preloads...)
	}
}

// WithScopes 设置查询作用域
func WithScopes(scopes ...func(*gorm.DB) *gorm.DB) Option {
	return func(o *QueryOption) {
		o.Scopes = append(o.Scopes, scopes...)
	}
}

// WithCondition 附加过滤条件
func WithCondition(exprs ...clause.Expression) Option {
	return func(o *QueryOption) {
		o.Conditions = append(o.Conditions, exprs...)
	}
}

// ApplyOptions 应用查询选项
func ApplyOptions(opts []Option) *QueryOption {
	o := &QueryOption{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// applyFilters 应用过滤条件与作用域
func (o *QueryOption) applyFilters(db *gorm.DB) *gorm.DB {
	if o == nil {
		return db
	}
	for _, cond := range o.Conditions {
		db = db.Where(cond)
	}
	for _, scope := range o.Scopes {
		db = scope(db)
	}
	return db
}

// applyPreloads 应用预加载（只用于取数据，不用于计数）
func (o *QueryOption) applyPreloads(db *gorm.DB) *gorm.DB {
	if o == nil {
		return db
	}
	for _, preload := range o.Preloads {
		db = db.Preload(preload)
	}
	return db
}

// PageInfo 分页信息
type PageInfo struct {
	Total      int64 `json:"total" doc:"总记录数"`
	Page       int   `json:"page" doc:"当前页码"`
	Limit      int   `json:"limit" doc:"每页大小"`
	TotalPages int64 `json:"totalPages" doc:"总页数"`
}

// ListResult 列表结果，未分页时 Pagination 为 nil
type ListResult[T any] struct {
	Data       []T       `json:"data" doc:"数据列表"`
	Count      int64     `json:"count" doc:"匹配记录数"`
	Pagination *PageInfo `json:"pagination" doc:"分页信息"`
}

// ScopedReader 租户范围查询接口
type ScopedReader[T any] interface {
	// FindByID 根据 ID 查找 scope 内可见的记录
	FindByID(ctx context.Context, id string, opts ...Option) (*T, error)

	// List 搜索、排序、分页
	List(ctx context.Context, params ListParams, opts ...Option) (*ListResult[T], error)

	// Count 统计 scope 内可见的记录数
	Count(ctx context.Context, opts ...Option) (int64, error)
}

// ScopedWriter 租户范围写入接口
type ScopedWriter[T any] interface {
	// Create 在 Context 中的事务内创建记录
	// 写入租户列、分配参考编号、记录签发人
	Create(ctx context.Context, model *T) error
}

// Repository 租户范围仓储接口
type Repository[T any] interface {
	ScopedReader[T]
	ScopedWriter[T]

	// GetDB 获取底层 GORM DB 实例（用于复杂查询）
	GetDB() *gorm.DB
}
