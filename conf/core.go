package conf

import (
	"fmt"
	"time"
)

/* ========================================================================
 * Core Config - 数据访问核心配置
 * ========================================================================
 * 职责: 序列号分配、查询构建、事务重试的可配置项及默认值
 * ======================================================================== */

// 序列锁策略
const (
	LockStrategyAdvisory = "advisory" // PostgreSQL pg_advisory_xact_lock，提交/回滚时由数据库释放
	LockStrategyRedis    = "redis"    // Redis 分布式锁，事务结束后释放
	LockStrategyNone     = "none"     // 依赖数据库本身的串行化（sqlite BEGIN IMMEDIATE; postgres 需 serializable; mysql 需间隙锁，不能用 read_committed）
)

// SequenceConfig 参考编号分配配置
type SequenceConfig struct {
	DefaultWidth int           `mapstructure:"default_width"`
	MaxWidth     int           `mapstructure:"max_width"`
	LockStrategy string        `mapstructure:"lock_strategy"`
	Retries      int           `mapstructure:"retries"`     // 同一事务内的冲突重试次数
	RetryDelay   time.Duration `mapstructure:"retry_delay"` // 首次重试间隔（指数退避）
	LockTTL      time.Duration `mapstructure:"lock_ttl"`    // redis 策略下的锁过期时间
}

// QueryConfig 列表查询配置
type QueryConfig struct {
	DefaultSortField string `mapstructure:"default_sort_field"`
	DefaultSortDesc  bool   `mapstructure:"default_sort_desc"`
	MaxLimit         int    `mapstructure:"max_limit"`
}

// TxConfig 事务所有者配置
type TxConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"` // 并发冲突时整体重试的最大次数（含首次）
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Isolation   string        `mapstructure:"isolation"` // 空值使用数据库默认; read_committed, repeatable_read, serializable
}

// CoreConfig 数据访问核心配置
type CoreConfig struct {
	Sequence SequenceConfig `mapstructure:"sequence"`
	Query    QueryConfig    `mapstructure:"query"`
	Tx       TxConfig       `mapstructure:"tx"`
}

// DefaultCoreConfig 默认配置
func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		Sequence: SequenceConfig{
			DefaultWidth: 3,
			MaxWidth:     12,
			LockStrategy: LockStrategyNone,
			Retries:      3,
			RetryDelay:   20 * time.Millisecond,
			LockTTL:      10 * time.Second,
		},
		Query: QueryConfig{
			DefaultSortField: "created_at",
			DefaultSortDesc:  true,
			MaxLimit:         1000,
		},
		Tx: TxConfig{
			MaxAttempts: 3,
			RetryDelay:  50 * time.Millisecond,
		},
	}
}

// WithDefaults 用默认值补齐未设置的字段
func (c CoreConfig) WithDefaults() CoreConfig {
	def := DefaultCoreConfig()
	if c.Sequence.DefaultWidth == 0 {
		c.Sequence.DefaultWidth = def.Sequence.DefaultWidth
	}
	if c.Sequence.MaxWidth == 0 {
		c.Sequence.MaxWidth = def.Sequence.MaxWidth
	}
	if c.Sequence.LockStrategy == "" {
		c.Sequence.LockStrategy = def.Sequence.LockStrategy
	}
	if c.Sequence.RetryDelay == 0 {
		c.Sequence.RetryDelay = def.Sequence.RetryDelay
	}
	if c.Sequence.LockTTL == 0 {
		c.Sequence.LockTTL = def.Sequence.LockTTL
	}
	if c.Query.DefaultSortField == "" {
		c.Query.DefaultSortField = def.Query.DefaultSortField
		c.Query.DefaultSortDesc = def.Query.DefaultSortDesc
	}
	if c.Query.MaxLimit == 0 {
		c.Query.MaxLimit = def.Query.MaxLimit
	}
	if c.Tx.MaxAttempts == 0 {
		c.Tx.MaxAttempts = def.Tx.MaxAttempts
	}
	if c.Tx.RetryDelay == 0 {
		c.Tx.RetryDelay = def.Tx.RetryDelay
	}
	return c
}

// Validate 校验配置
func (c CoreConfig) Validate() error {
	if c.Sequence.DefaultWidth < 1 {
		return fmt.Errorf("sequence.default_width must be >= 1, got %d", c.Sequence.DefaultWidth)
	}
	if c.Sequence.MaxWidth < c.Sequence.DefaultWidth {
		return fmt.Errorf("sequence.max_width (%d) must be >= default_width (%d)", c.Sequence.MaxWidth, c.Sequence.DefaultWidth)
	}
	// int64 最多 19 位
	if c.Sequence.MaxWidth > 19 {
		return fmt.Errorf("sequence.max_width must be <= 19, got %d", c.Sequence.MaxWidth)
	}
	switch c.Sequence.LockStrategy {
	case LockStrategyAdvisory, LockStrategyRedis, LockStrategyNone:
	default:
		return fmt.Errorf("sequence.lock_strategy %q is not supported", c.Sequence.LockStrategy)
	}
	if c.Sequence.Retries < 0 {
		return fmt.Errorf("sequence.retries must be >= 0")
	}
	if c.Query.MaxLimit < 1 {
		return fmt.Errorf("query.max_limit must be >= 1")
	}
	if c.Tx.MaxAttempts < 1 {
		return fmt.Errorf("tx.max_attempts must be >= 1")
	}
	switch c.Tx.Isolation {
	case "", "read_committed", "repeatable_read", "serializable":
	default:
		return fmt.Errorf("tx.isolation %q is not supported", c.Tx.Isolation)
	}
	return nil
}
