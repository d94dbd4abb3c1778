package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

/* ========================================================================
 * Transaction Context Helper
 * ========================================================================
 * 职责: 处理 Context 中的事务传递
 *   - 事务句柄随 Context 传递，分配器/仓储从中取得事务
 *   - 提交前的检查（如确认 Redis 锁仍被持有），失败则回滚
 *   - 事务结束（提交或回滚）后执行的收尾动作（如释放 Redis 锁）
 * ======================================================================== */

type ctxTxKey struct{}

// txState 事务在 Context 中的状态
type txState struct {
	tx      *gorm.DB
	managed bool // 由 TxManager 开启，收尾动作会被执行

	mu         sync.Mutex
	checks     []func(context.Context) error
	finalizers []func(context.Context)
	held       map[string]struct{}
}

func withTxState(ctx context.Context, st *txState) context.Context {
	return context.WithValue(ctx, ctxTxKey{}, st)
}

func txStateFromContext(ctx context.Context) (*txState, bool) {
	if ctx == nil {
		return nil, false
	}
	st, ok := ctx.Value(ctxTxKey{}).(*txState)
	return st, ok && st != nil && st.tx != nil
}

// addCheck 注册提交前的检查
func (s *txState) addCheck(fn func(context.Context) error) {
	s.mu.Lock()
	s.checks = append(s.checks, fn)
	s.mu.Unlock()
}

// runChecks 按注册顺序执行提交前检查，遇错即停
func (s *txState) runChecks(ctx context.Context) error {
	s.mu.Lock()
	fns := s.checks
	s.checks = nil
	s.mu.Unlock()
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// addFinalizer 注册事务结束后的收尾动作
func (s *txState) addFinalizer(fn func(context.Context)) {
	s.mu.Lock()
	s.finalizers = append(s.finalizers, fn)
	s.mu.Unlock()
}

// runFinalizers 逆序执行收尾动作
func (s *txState) runFinalizers(ctx context.Context) {
	s.mu.Lock()
	fns := s.finalizers
	s.finalizers = nil
	s.held = nil
	s.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i](ctx)
	}
}

// hold 记录事务已持有的锁，返回 false 表示已持有
func (s *txState) hold(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.held[key]; ok {
		return false
	}
	if s.held == nil {
		s.held = make(map[string]struct{})
	}
	s.held[key] = struct{}{}
	return true
}

// release 撤销 hold 记录（获取锁失败时）
func (s *txState) release(key string) {
	s.mu.Lock()
	delete(s.held, key)
	s.mu.Unlock()
}

// ContextWithTx 把调用方自行管理的事务放入 Context
// 该方式下不会执行收尾动作，redis 锁策略要求使用 TxManager
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return withTxState(ctx, &txState{tx: tx})
}

// TxFromContext 获取 Context 中的事务
func TxFromContext(ctx context.Context) (*gorm.DB, bool) {
	st, ok := txStateFromContext(ctx)
	if !ok {
		return nil, false
	}
	return st.tx, true
}

// getDBFromContext 尝试从 context 中获取事务 DB
// 如果 context 中存在事务，返回事务 DB；否则返回原始 DB
// 始终会将 context 绑定到返回的 DB 实例
func getDBFromContext(ctx context.Context, originalDB *gorm.DB) *gorm.DB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.WithContext(ctx)
	}
	return originalDB.WithContext(ctx)
}

// inTransaction 判断 DB 是否处于事务中
func inTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}
