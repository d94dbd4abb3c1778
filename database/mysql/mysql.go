package mysql

import (
	"fmt"
	"time"

	"github.com/aisgo/ais-wms-core/database"
	"github.com/aisgo/ais-wms-core/logger"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

/* ========================================================================
 * MySQL - 关系型数据库连接
 * ========================================================================
 * 职责: 提供 MySQL 连接池、GORM 集成
 * 技术: gorm.io/driver/mysql
 * 说明: MySQL 下序列号分配使用 redis 或 none 锁策略（FOR UPDATE 锁读 + 死锁重试）
 * ======================================================================== */

// Config MySQL 配置
type Config struct {
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	User          string        `mapstructure:"user" yaml:"user"`
	Password      string        `mapstructure:"password" yaml:"password"`
	DBName        string        `mapstructure:"dbname" yaml:"dbname"`
	Charset       string        `mapstructure:"charset" yaml:"charset"` // 字符集，默认 utf8mb4
	Loc           string        `mapstructure:"loc" yaml:"loc"`         // 时区，默认 Local
	SlowThreshold time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`

	database.PoolConfig `mapstructure:",squash" yaml:",inline"`
}

// BuildDSN 生成连接串（始终 parseTime=true）
func (cfg Config) BuildDSN() string {
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}

	loc := cfg.Loc
	if loc == "" {
		loc = "Local"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, charset, loc)
}

// NewDB 初始化 MySQL 连接
func NewDB(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	gormLog := database.NewZapGormLogger(log.Logger).WithSlowThreshold(cfg.SlowThreshold)

	db, err := gorm.Open(mysql.Open(cfg.BuildDSN()), &gorm.Config{
		Logger: gormLog,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.DBName, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	database.ApplyPool(sqlDB, cfg.PoolConfig)

	log.Info("mysql connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.String("dbname", cfg.DBName),
	)
	return db, nil
}
