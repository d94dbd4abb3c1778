package repository

import (
	"context"
	"database/sql"
	"math"

	"github.com/aisgo/ais-wms-core/errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

/* ========================================================================
 * List Pipeline - 列表查询
 * ========================================================================
 * 职责: 租户谓词 AND 控制器过滤 AND 搜索谓词，排序后可选分页
 *   - page 与 limit 同时提供才分页: offset = (page-1)*limit
 *   - 任一缺省时返回全部匹配行，Pagination 为 nil
 *   - 分页的 count 与 find 在同一快照中执行
 * ======================================================================== */

// List 按请求参数查询实体列表
// base 为租户范围谓词（来自 Translator），opts 为控制器附加的条件
func List[T any](ctx context.Context, b *QueryBuilder, db *gorm.DB, entityType EntityType, params ListParams, base Predicate, opts ...Option) (*ListResult[T], error) {
	if err := b.validate(params); err != nil {
		return nil, err
	}
	e, err := b.registry.lookup(entityType)
	if err != nil {
		return nil, err
	}
	if base.table != e.Table {
		return nil, errors.Configurationf("predicate for %q does not belong to %s", base.table, entityType)
	}

	search, err := b.Search(db.Dialector.Name(), entityType, params.Term, params.Fields)
	if err != nil {
		return nil, err
	}
	order, err := b.Sort(entityType, params.Sort, params.Order)
	if err != nil {
		return nil, err
	}

	paginated := params.Page != nil && params.Limit != nil
	b.metrics.IncQueryBuild(string(entityType), paginated)
	b.log.WithContext(ctx).Debug("list query",
		zap.String("entity", string(entityType)),
		zap.Bool("paginated", paginated),
		zap.Bool("search", search != nil),
	)

	opt := ApplyOptions(opts)
	run := func(tx *gorm.DB) (*ListResult[T], error) {
		query := base.Apply(tx.Model(new(T)))
		if search != nil {
			query = query.Where(search)
		}
		query = opt.applyFilters(query).Session(&gorm.Session{})

		var total int64
		if err := query.Count(&total).Error; err != nil {
			return nil, classify(err, "failed to count records")
		}

		find := query.Order(order)
		if base.Joined() {
			find = find.Select(e.Table + ".*")
		}
		find = opt.applyPreloads(find)
		result := &ListResult[T]{Count: total}
		if paginated {
			page, limit := *params.Page, *params.Limit
			find = find.Offset((page - 1) * limit).Limit(limit)
			result.Pagination = &PageInfo{
				Total:      total,
				Page:       page,
				Limit:      limit,
				TotalPages: int64(math.Ceil(float64(total) / float64(limit))),
			}
		}

		data := make([]T, 0)
		if err := find.Find(&data).Error; err != nil {
			return nil, classify(err, "failed to find records")
		}
		result.Data = data
		return result, nil
	}

	if tx, ok := TxFromContext(ctx); ok {
		return run(tx.WithContext(ctx))
	}
	if !paginated || db.Dialector.Name() == "sqlite" {
		return run(db.WithContext(ctx))
	}
	return findWithSnapshot(ctx, db, run)
}

// findWithSnapshot count 与 find 使用同一可重复读快照
func findWithSnapshot[T any](ctx context.Context, db *gorm.DB, run func(*gorm.DB) (*ListResult[T], error)) (*ListResult[T], error) {
	var result *ListResult[T]
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = run(tx)
		return err
	}, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, classify(err, "list query failed")
	}
	return result, nil
}
