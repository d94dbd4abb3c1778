package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"strings"

	"github.com/aisgo/ais-wms-core/cache/redis"
	"github.com/aisgo/ais-wms-core/errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

/* ========================================================================
 * Conflict Classification - 并发冲突识别
 * ========================================================================
 * 职责: 识别各数据库驱动的可重试并发冲突
 *   - PostgreSQL: 序列化失败 / 死锁 / 锁不可用
 *   - MySQL: 1213 死锁, 1205 锁等待超时
 *   - SQLite: database is locked / busy
 *   - Redis 分配锁获取失败
 * ======================================================================== */

const (
	mysqlErrDeadlock        = 1213
	mysqlErrLockWaitTimeout = 1205
)

// isConflict 判断错误是否为可重试的并发冲突
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Code(err) == errors.ErrCodeConflict {
		return true
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if stderrors.As(err, &myErr) {
		return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
	}

	if stderrors.Is(err, redis.ErrLockFailed) {
		return true
	}

	// sqlite 驱动依赖 cgo，按错误文本识别避免直接引入
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// classify 把底层错误归类为 BizError
// 已经是 BizError 的错误保持原样
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsBizError(err); ok {
		return err
	}
	if isConflict(err) {
		return errors.Wrap(errors.ErrCodeConflict, message, err)
	}
	if isUnavailable(err) {
		return errors.Wrap(errors.ErrCodeUnavailable, message, err)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrCodeCanceled, message, err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeTimeout, message, err)
	}
	return errors.DataAccess(message, err)
}

// isUnavailable 判断错误是否为连接不可用
func isUnavailable(err error) bool {
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgErr.Code == pgerrcode.AdminShutdown ||
			pgErr.Code == pgerrcode.CannotConnectNow
	}
	var connectErr *pgconn.ConnectError
	return stderrors.As(err, &connectErr)
}

// unwrapPermanent 最后一次尝试返回的 Permanent 错误不会被 backoff 解包
func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if stderrors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
