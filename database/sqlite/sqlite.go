package sqlite

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aisgo/ais-wms-core/database"
	"github.com/aisgo/ais-wms-core/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

/* ========================================================================
 * SQLite - 单机/测试数据库
 * ========================================================================
 * 职责: 本地开发与测试使用的 GORM 连接
 * 说明: ImmediateTx 开启后事务以 BEGIN IMMEDIATE 开始，写事务在库级别串行，
 *       对应序列号分配的 none 锁策略
 * ======================================================================== */

// Config SQLite 配置
type Config struct {
	Path        string        `mapstructure:"path" yaml:"path"` // 文件路径或 :memory:
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
	ImmediateTx bool          `mapstructure:"immediate_tx" yaml:"immediate_tx"`
	ForeignKeys bool          `mapstructure:"foreign_keys" yaml:"foreign_keys"`
}

// BuildDSN 生成 go-sqlite3 连接串
func (cfg Config) BuildDSN() string {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	params := url.Values{}
	if cfg.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprintf("%d", cfg.BusyTimeout.Milliseconds()))
	}
	if cfg.ImmediateTx {
		params.Set("_txlock", "immediate")
	}
	if cfg.ForeignKeys {
		params.Set("_foreign_keys", "on")
	}
	if len(params) == 0 {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}

// NewDB 打开 SQLite
// 内存库只保留一个连接，否则每个连接各自是一份独立的库
func NewDB(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	dsn := cfg.BuildDSN()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: database.NewZapGormLogger(log.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}

	if cfg.Path == "" || strings.HasPrefix(cfg.Path, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Debug("sqlite opened", zap.String("dsn", dsn))
	return db, nil
}
