package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

/* ========================================================================
 * 分布式锁 - 基于 Redis SET NX 的互斥锁
 * ========================================================================
 * 职责: 跨进程串行化同一序列范围内的参考编号分配
 * 约束:
 *   - value 为每次获取生成的随机 token，只有持有者能释放/续期
 *   - TTL 是持有时间上限，应大于包含分配的事务时长
 * ======================================================================== */

var (
	ErrLockFailed   = errors.New("failed to acquire lock")
	ErrUnlockFailed = errors.New("failed to release lock")
	ErrNotHeld      = errors.New("lock is not held")
)

// 只有 token 匹配才删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// 只有 token 匹配才续期
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Lock 分布式锁
type Lock struct {
	client *Client
	key    string
	opt    LockOption

	mu    sync.Mutex
	token string
}

// LockOption 锁选项
type LockOption struct {
	TTL        time.Duration // 锁过期时间
	RetryTimes int           // 获取失败时的尝试次数
	RetryDelay time.Duration // 重试间隔
}

// DefaultLockOption 默认锁选项
func DefaultLockOption() LockOption {
	return LockOption{
		TTL:        30 * time.Second,
		RetryTimes: 5,
		RetryDelay: 100 * time.Millisecond,
	}
}

// NewLock 创建分布式锁
func (c *Client) NewLock(key string, opts ...LockOption) *Lock {
	opt := DefaultLockOption()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.TTL <= 0 {
		opt.TTL = DefaultLockOption().TTL
	}
	if opt.RetryTimes < 1 {
		opt.RetryTimes = 1
	}
	return &Lock{client: c, key: c.prefix + "lock:" + key, opt: opt}
}

// Key 锁在 Redis 中的 key
func (l *Lock) Key() string { return l.key }

// Acquire 获取锁，重试用尽返回 ErrLockFailed
func (l *Lock) Acquire(ctx context.Context) error {
	token := uuid.NewString()
	for i := 0; i < l.opt.RetryTimes; i++ {
		ok, err := l.client.SetNX(ctx, l.key, token, l.opt.TTL)
		if err != nil {
			return err
		}
		if ok {
			l.mu.Lock()
			l.token = token
			l.mu.Unlock()
			return nil
		}
		if i == l.opt.RetryTimes-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opt.RetryDelay):
		}
	}
	return ErrLockFailed
}

// Release 释放锁
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return ErrNotHeld
	}

	n, err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		// 已过期或被他人持有
		return ErrUnlockFailed
	}
	return nil
}

// Extend 延长锁时间
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token == "" {
		return ErrNotHeld
	}

	n, err := extendScript.Run(ctx, l.client.rdb, []string{l.key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockFailed
	}
	return nil
}
