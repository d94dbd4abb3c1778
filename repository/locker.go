package repository

import (
	"context"
	stderrors "errors"
	"hash/fnv"
	"strings"
	"time"

	"github.com/aisgo/ais-wms-core/cache/redis"
	"github.com/aisgo/ais-wms-core/conf"
	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

/* ========================================================================
 * Sequence Lockers - 序列分配锁
 * ========================================================================
 * 职责: 串行化同一 (实体, 公司, 分店) 下的参考编号分配
 *   - advisory: pg_advisory_xact_lock，随事务提交/回滚释放
 *   - redis:    分布式锁，提交前续期确认仍持有，事务结束后由 TxManager 收尾释放
 *   - none:     依赖数据库本身（sqlite BEGIN IMMEDIATE / 行锁）
 * 所有策略下读取当前最大值仍使用 FOR UPDATE
 * ======================================================================== */

// LockKey 序列锁的键
type LockKey struct {
	Entity    EntityType
	CompanyID string
	BranchID  string
}

func (k LockKey) String() string {
	return strings.Join([]string{string(k.Entity), k.CompanyID, k.BranchID}, ":")
}

// Hash advisory lock 使用的 64 位键
func (k LockKey) Hash() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(string(k.Entity) + "|" + k.CompanyID + "|" + k.BranchID))
	return int64(h.Sum64())
}

// Locker 序列锁
type Locker interface {
	// Lock 在事务 tx 中获取 key 对应的锁，锁在事务结束时释放
	Lock(ctx context.Context, tx *gorm.DB, key LockKey) error
}

// NoopLocker 不加额外锁
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, *gorm.DB, LockKey) error { return nil }

// AdvisoryLocker PostgreSQL 事务级 advisory lock
type AdvisoryLocker struct{}

func (AdvisoryLocker) Lock(ctx context.Context, tx *gorm.DB, key LockKey) error {
	if name := tx.Dialector.Name(); name != "postgres" {
		return errors.Configurationf("advisory lock strategy requires postgres, got %s", name)
	}
	if err := tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", key.Hash()).Error; err != nil {
		return classify(err, "failed to acquire advisory lock")
	}
	return nil
}

// RedisLocker Redis 分布式锁，绑定到 TxManager 管理的事务
type RedisLocker struct {
	client     *redis.Client
	ttl        time.Duration
	retries    int
	retryDelay time.Duration
	log        *logger.Logger
}

// NewRedisLocker 创建 Redis 锁
func NewRedisLocker(client *redis.Client, cfg conf.SequenceConfig, log *logger.Logger) *RedisLocker {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisLocker{
		client:     client,
		ttl:        cfg.LockTTL,
		retries:    20,
		retryDelay: 25 * time.Millisecond,
		log:        log,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, tx *gorm.DB, key LockKey) error {
	st, ok := txStateFromContext(ctx)
	if !ok || !st.managed {
		return errors.Configurationf("redis lock strategy requires a transaction opened by TxManager")
	}
	name := "seq:" + key.String()
	if !st.hold(name) {
		return nil
	}

	lock := l.client.NewLock(name, redis.LockOption{
		TTL:        l.ttl,
		RetryTimes: l.retries,
		RetryDelay: l.retryDelay,
	})
	if err := lock.Acquire(ctx); err != nil {
		st.release(name)
		return classify(err, "failed to acquire allocation lock")
	}

	// 锁在事务期间过期时，其他分配者可能已读到相同的最大值；提交前续期确认仍持有
	st.addCheck(func(ctx context.Context) error {
		if err := lock.Extend(ctx, l.ttl); err != nil {
			if stderrors.Is(err, redis.ErrLockFailed) || stderrors.Is(err, redis.ErrNotHeld) {
				return errors.Wrap(errors.ErrCodeConflict, "allocation lock expired before commit", err)
			}
			return classify(err, "failed to extend allocation lock")
		}
		return nil
	})
	st.addFinalizer(func(ctx context.Context) {
		if err := lock.Release(ctx); err != nil {
			l.log.WithContext(ctx).Warn("release allocation lock",
				zap.String("key", name),
				zap.Error(err),
			)
		}
	})
	return nil
}

// NewLocker 按配置选择锁策略，dialect 为 gorm 方言名
// 与隔离级别组合后不能串行化分配的配置直接拒绝
func NewLocker(cfg conf.CoreConfig, dialect string, client *redis.Client, log *logger.Logger) (Locker, error) {
	if err := checkSerialization(cfg, dialect); err != nil {
		return nil, err
	}
	switch cfg.Sequence.LockStrategy {
	case conf.LockStrategyAdvisory:
		return AdvisoryLocker{}, nil
	case conf.LockStrategyRedis:
		if client == nil {
			return nil, errors.Configurationf("redis lock strategy requires a redis client")
		}
		return NewRedisLocker(client, cfg.Sequence, log), nil
	case conf.LockStrategyNone, "":
		return NoopLocker{}, nil
	default:
		return nil, errors.Configurationf("unknown lock strategy %q", cfg.Sequence.LockStrategy)
	}
}

// checkSerialization 校验锁策略与事务隔离级别的组合
//   - postgres + none: 空范围没有可锁的行，READ COMMITTED 下等待者也看不到新插入的行，必须 serializable
//   - postgres + advisory/redis + repeatable_read: 快照在取锁语句时建立，读不到锁持有者刚提交的行
//   - mysql + none + read_committed: 没有间隙锁，空范围无法串行化
//   - advisory 仅支持 postgres
func checkSerialization(cfg conf.CoreConfig, dialect string) error {
	strategy := cfg.Sequence.LockStrategy
	if strategy == "" {
		strategy = conf.LockStrategyNone
	}
	isolation := cfg.Tx.Isolation

	switch dialect {
	case "postgres":
		switch {
		case strategy == conf.LockStrategyNone && isolation != "serializable":
			return errors.Configurationf("lock strategy none on postgres requires tx.isolation=serializable, got %q", isolation)
		case strategy != conf.LockStrategyNone && isolation == "repeatable_read":
			return errors.Configurationf("lock strategy %s on postgres cannot run under tx.isolation=repeatable_read", strategy)
		}
	case "mysql":
		if strategy == conf.LockStrategyAdvisory {
			return errors.Configurationf("advisory lock strategy requires postgres, got %s", dialect)
		}
		if strategy == conf.LockStrategyNone && isolation == "read_committed" {
			return errors.Configurationf("lock strategy none on mysql cannot run under tx.isolation=read_committed")
		}
	default:
		if strategy == conf.LockStrategyAdvisory {
			return errors.Configurationf("advisory lock strategy requires postgres, got %s", dialect)
		}
	}
	return nil
}
