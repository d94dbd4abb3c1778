package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/logger"
	"github.com/aisgo/ais-wms-core/metrics"
	"github.com/aisgo/ais-wms-core/tenant"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* ========================================================================
 * Sequence Allocator - 参考编号分配器
 * ========================================================================
 * 职责: 在调用方事务内分配下一个参考编号
 *   1. 获取 (实体, 公司[, 分店]) 锁
 *   2. 锁定读取范围内最大的编号（按长度再按字典序，含已软删除的行及已软删除父实体下的行）
 *   3. 严格解析为整数并加一，补零到配置宽度（超出则加宽，从不截断）
 * 约束:
 *   - 不开启、不提交、不回滚事务；冲突时回滚到保存点并有界重试
 *   - 不缓存"最后编号"，每次分配都重新读取
 * ======================================================================== */

// Allocator 参考编号分配器
type Allocator struct {
	registry *Registry
	locker   Locker
	metrics  *metrics.Collector
	log      *logger.Logger
}

// NewAllocator 创建分配器
func NewAllocator(registry *Registry, locker Locker, collector *metrics.Collector, log *logger.Logger) *Allocator {
	if locker == nil {
		locker = NoopLocker{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Allocator{registry: registry, locker: locker, metrics: collector, log: log}
}

// Allocate 分配下一个参考编号，tx 必须是调用方已开启的事务
func (a *Allocator) Allocate(ctx context.Context, tx *gorm.DB, entityType EntityType, scope tenant.Scope) (ref string, err error) {
	start := time.Now()
	defer func() {
		a.metrics.ObserveAllocation(string(entityType), outcome(err), time.Since(start))
	}()

	e, err := a.registry.lookup(entityType)
	if err != nil {
		return "", err
	}
	if e.Sequence == nil {
		return "", errors.Configurationf("entity %q has no reference sequence", entityType)
	}
	key, err := sequenceKey(e, scope)
	if err != nil {
		return "", err
	}
	if !inTransaction(tx) {
		return "", errors.Configurationf("reference allocation for %q requires an open transaction", entityType)
	}
	tx = tx.WithContext(ctx)

	cfg := a.registry.cfg.Sequence
	op := func() (string, error) {
		ref, err := a.attempt(ctx, tx, e, key, cfg.Retries > 0)
		if err == nil {
			return ref, nil
		}
		if !isConflict(err) {
			return "", backoff.Permanent(err)
		}
		a.metrics.IncConflict(string(entityType))
		a.log.WithContext(ctx).Warn("reference allocation conflict",
			zap.String("entity", string(entityType)),
			zap.String("key", key.String()),
			zap.Error(err),
		)
		return "", err
	}

	ref, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff(cfg.RetryDelay)),
		backoff.WithMaxTries(uint(cfg.Retries+1)),
	)
	if err != nil {
		err = unwrapPermanent(err)
		if isConflict(err) {
			return "", errors.Wrap(errors.ErrCodeConflict, "reference allocation conflict", err)
		}
		return "", classify(err, "reference allocation failed")
	}

	a.log.WithContext(ctx).Debug("reference allocated",
		zap.String("entity", string(entityType)),
		zap.String("scope", scope.Kind().String()),
		zap.String("reference", ref),
	)
	return ref, nil
}

// attempt 单次分配，可选地包裹在保存点中
func (a *Allocator) attempt(ctx context.Context, tx *gorm.DB, e *entity, key LockKey, savepoint bool) (string, error) {
	if !savepoint {
		return a.next(ctx, tx, e, key)
	}

	name := "seq_" + ulid.Make().String()
	if err := tx.SavePoint(name).Error; err != nil {
		return "", err
	}
	ref, err := a.next(ctx, tx, e, key)
	if err != nil {
		if rbErr := tx.RollbackTo(name).Error; rbErr != nil {
			// 保存点不可用时事务已失效（如 MySQL 死锁回滚整个事务），交由事务所有者整体重试
			if isConflict(err) {
				return "", backoff.Permanent(errors.Wrap(errors.ErrCodeConflict, "transaction aborted by conflict", err))
			}
			return "", backoff.Permanent(classify(rbErr, "rollback to savepoint failed"))
		}
		return "", err
	}
	return ref, nil
}

func (a *Allocator) next(ctx context.Context, tx *gorm.DB, e *entity, key LockKey) (string, error) {
	if err := a.locker.Lock(ctx, tx, key); err != nil {
		return "", err
	}
	current, err := a.currentMax(tx, e, key)
	if err != nil {
		return "", err
	}
	n, err := parseReference(current)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeInternal, err, "malformed reference on %s", e.Type)
	}
	return formatReference(n+1, e.width), nil
}

// currentMax 锁定读取序列范围内的最大编号，不存在时返回空串
func (a *Allocator) currentMax(tx *gorm.DB, e *entity, key LockKey) (string, error) {
	var scope tenant.Scope
	if e.Sequence.Level == SequenceByBranch {
		scope = tenant.BranchScope(key.CompanyID, key.BranchID)
	} else {
		scope = tenant.CompanyScope(key.CompanyID)
	}
	// 父实体被软删除后，其子实体的编号仍占用序列
	pred := e.scopedPredicate(scope, false)

	col := clause.Column{Table: e.Table, Name: e.Sequence.Column}
	locking := clause.Locking{Strength: clause.LockingStrengthUpdate}
	if pred.Joined() {
		locking.Table = clause.Table{Name: e.Table}
	}

	query := pred.Apply(tx.Session(&gorm.Session{NewDB: true}).Table(e.Table)).
		Where(clause.Neq{Column: col, Value: nil}).
		Where(clause.Neq{Column: col, Value: ""}).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: fmt.Sprintf("LENGTH(%s.%s)", e.Table, e.Sequence.Column), Raw: true}, Desc: true},
			{Column: col, Desc: true},
		}}).
		Limit(1).
		Clauses(locking)

	var refs []string
	if err := query.Pluck(e.Table+"."+e.Sequence.Column, &refs).Error; err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return "", nil
	}
	return refs[0], nil
}

// sequenceKey 由 scope 推导序列范围
func sequenceKey(e *entity, scope tenant.Scope) (LockKey, error) {
	if scope.IsBlocked() || scope.CompanyID() == "" {
		return LockKey{}, errors.Configurationf("cannot allocate %s reference under a blocked scope", e.Type)
	}
	key := LockKey{Entity: e.Type, CompanyID: scope.CompanyID()}
	if e.Sequence.Level == SequenceByBranch {
		branchID, ok := scope.SingleBranch()
		if !ok {
			return LockKey{}, errors.Configurationf("%s references are sequenced per branch but scope %s names no single branch", e.Type, scope)
		}
		key.BranchID = branchID
	}
	return key, nil
}

// parseReference 严格解析已有编号，空串视为 0
func parseReference(ref string) (int64, error) {
	if ref == "" {
		return 0, nil
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("reference %q contains non-digit characters", ref)
		}
	}
	n, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("reference %q: %w", ref, err)
	}
	return n, nil
}

// formatReference 补零到 width，超出时自然加宽
func formatReference(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

func outcome(err error) string {
	if err == nil {
		return "allocated"
	}
	return errors.Kind(err)
}
