package postgres

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/aisgo/ais-wms-core/database"
	"github.com/aisgo/ais-wms-core/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

/* ========================================================================
 * PostgreSQL - 关系型数据库连接
 * ========================================================================
 * 职责: 提供 PostgreSQL 连接池、GORM 集成
 * 技术: gorm.io/driver/postgres (pgx/v5)
 * 说明: 序列号分配的 advisory 锁策略仅在 PostgreSQL 下可用
 * ======================================================================== */

// Config PostgreSQL 配置
type Config struct {
	DSN           string        `mapstructure:"dsn" yaml:"dsn"` // 完整 DSN，设置后忽略下面的分项
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	User          string        `mapstructure:"user" yaml:"user"`
	Password      string        `mapstructure:"password" yaml:"password"`
	DBName        string        `mapstructure:"dbname" yaml:"dbname"`
	SSLMode       string        `mapstructure:"sslmode" yaml:"sslmode"`
	Schema        string        `mapstructure:"schema" yaml:"schema"` // 数据库 schema，默认 public
	SlowThreshold time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`

	database.PoolConfig `mapstructure:",squash" yaml:",inline"`
}

// BuildDSN 生成连接串
func (cfg Config) BuildDSN() string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	// 如果配置了 schema，添加到 DSN
	if cfg.Schema != "" {
		dsn = fmt.Sprintf("%s search_path=%s", dsn, cfg.Schema)
	}
	return dsn
}

// NewDB 初始化 Postgres 连接
func NewDB(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	dsn := cfg.BuildDSN()

	gormLog := database.NewZapGormLogger(log.Logger).WithSlowThreshold(cfg.SlowThreshold)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: dsn,
	}), &gorm.Config{
		Logger: gormLog,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres (%s): %w", sanitizeDSN(dsn), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	database.ApplyPool(sqlDB, cfg.PoolConfig)

	log.Info("postgres connected", zap.String("dsn", sanitizeDSN(dsn)))
	return db, nil
}

var kvPasswordPattern = regexp.MustCompile(`password=\S+`)

// sanitizeDSN 隐藏 DSN 中的密码（URL 与 key=value 两种形式），URL 解析失败时原样返回
func sanitizeDSN(dsn string) string {
	if kvPasswordPattern.MatchString(dsn) {
		return kvPasswordPattern.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
