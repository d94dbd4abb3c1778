package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

/* ========================================================================
 * Logger - 统一日志组件
 * ========================================================================
 * 职责: 提供结构化日志能力，支持 JSON / Console 格式
 * 技术: Uber Zap + lumberjack（文件滚动）
 * ======================================================================== */

// Config Logger 配置
type Config struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json, console
	Output     string `mapstructure:"output" yaml:"output"`           // stdout, stderr, 或文件路径
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"` // 单文件大小上限
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // 保留的历史文件数
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Logger 封装 Zap Logger
type Logger struct {
	*zap.Logger
}

type loggerCtxKey struct{}

// ValidateConfig 校验日志配置
func ValidateConfig(cfg Config) error {
	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	switch cfg.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q: must be json or console", cfg.Format)
	}
	return nil
}

// NewLogger 初始化 Logger
func NewLogger(cfg Config) *Logger {
	// 解析日志级别，非法值回退到 info
	level := zap.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = zap.InfoLevel
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, newWriter(cfg), level)
	return &Logger{Logger: zap.New(core, zap.AddCaller())}
}

// NewNop 返回不输出任何内容的 Logger（测试用）
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func newWriter(cfg Config) zapcore.WriteSyncer {
	switch cfg.Output {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout)
	case "stderr":
		return zapcore.AddSync(os.Stderr)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	})
}

// ToContext 把请求级字段绑定的 Logger 放入 Context
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, l)
}

// WithContext 优先返回 Context 中绑定的请求级 Logger
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if scoped, ok := ctx.Value(loggerCtxKey{}).(*zap.Logger); ok && scoped != nil {
			return scoped
		}
	}
	return l.Logger
}
