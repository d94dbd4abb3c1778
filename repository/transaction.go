package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/aisgo/ais-wms-core/conf"
	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/logger"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

/* ========================================================================
 * Transaction Owner - 事务所有者
 * ========================================================================
 * 职责: 业务操作的事务边界
 *   - 开启事务并放入 Context，fn 返回 nil 提交，否则回滚
 *   - Context 中已有事务时直接加入（不嵌套开启）
 *   - 提交前执行检查（分配锁仍被持有），事务结束后执行收尾动作（释放分配锁）
 *   - 并发冲突时整体重试（有界 + 指数退避）
 * 分配器与翻译器从不开启、提交或回滚事务
 * ======================================================================== */

// TxManager 事务所有者
type TxManager struct {
	db  *gorm.DB
	cfg conf.TxConfig
	log *logger.Logger
}

// NewTxManager 创建事务所有者
func NewTxManager(db *gorm.DB, cfg conf.CoreConfig, log *logger.Logger) *TxManager {
	if log == nil {
		log = logger.NewNop()
	}
	return &TxManager{db: db, cfg: cfg.WithDefaults().Tx, log: log}
}

// Execute 在事务中执行 fn
func (m *TxManager) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txStateFromContext(ctx); ok {
		return fn(ctx)
	}

	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		err := m.executeOnce(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if !errors.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		m.log.WithContext(ctx).Warn("transaction conflict, retrying",
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff(m.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(m.cfg.MaxAttempts)),
	)
	return unwrapPermanent(err)
}

func (m *TxManager) executeOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	st := &txState{managed: true}
	// 锁释放不受请求取消影响
	defer st.runFinalizers(context.WithoutCancel(ctx))

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st.tx = tx
		if err := fn(withTxState(ctx, st)); err != nil {
			return err
		}
		return st.runChecks(ctx)
	}, m.txOptions())
	return classify(err, "transaction failed")
}

func (m *TxManager) txOptions() *sql.TxOptions {
	// sqlite 不支持设置隔离级别
	if m.db.Dialector.Name() == "sqlite" {
		return nil
	}
	switch m.cfg.Isolation {
	case "read_committed":
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	case "repeatable_read":
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case "serializable":
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	default:
		return nil
	}
}

func newBackOff(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = 20 * initial
	return b
}
