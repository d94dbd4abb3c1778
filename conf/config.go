package conf

import (
	"bytes"
	"os"
	"regexp"
	"strings"

	"github.com/aisgo/ais-wms-core/errors"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

/* ========================================================================
 * Config Loader - 配置加载器
 * ========================================================================
 * 职责: 统一配置加载，支持 YAML / JSON / 环境变量
 * 技术: Viper + mapstructure decode hooks（时长、逗号分隔列表）
 * 顺序: 默认值 < 配置文件（先展开 ${VAR} / ${VAR:-default}）< APP_ 环境变量
 * ======================================================================== */

// Loader 定义配置加载接口
type Loader interface {
	Load(config any) error
}

// Option 配置加载选项
type Option func(*viperLoader)

// WithEnvPrefix 设置环境变量前缀，默认 APP
func WithEnvPrefix(prefix string) Option {
	return func(l *viperLoader) { l.envPrefix = prefix }
}

// WithDefaults 设置默认值，键为点分路径（如 core.sequence.retries）
// 有默认值的键才能被环境变量单独覆盖
func WithDefaults(defaults map[string]any) Option {
	return func(l *viperLoader) {
		for k, v := range defaults {
			l.defaults[k] = v
		}
	}
}

type viperLoader struct {
	configPath string
	configName string
	configType string
	envPrefix  string
	defaults   map[string]any
}

// NewLoader 创建配置加载器
// configPath: 配置文件目录; configName: 文件名（不含扩展名）; configType: yaml, json 等
func NewLoader(configPath, configName, configType string, opts ...Option) Loader {
	l := &viperLoader{
		configPath: configPath,
		configName: configName,
		configType: configType,
		envPrefix:  "APP",
		defaults:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *viperLoader) Load(config any) error {
	v := l.newViper()
	for k, val := range l.defaults {
		v.SetDefault(k, val)
	}

	file, err := l.locate()
	if err != nil {
		return err
	}
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		v.SetConfigType(l.configType)
		if err := v.ReadConfig(bytes.NewBufferString(expandEnvPlaceholders(string(raw)))); err != nil {
			return err
		}
	}

	return v.Unmarshal(config, viper.DecodeHook(decodeHook()))
}

// locate 复用 viper 的目录搜索逻辑定位配置文件，文件不存在不是错误
func (l *viperLoader) locate() (string, error) {
	finder := viper.New()
	finder.AddConfigPath(l.configPath)
	finder.SetConfigName(l.configName)
	finder.SetConfigType(l.configType)
	if err := finder.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return "", nil
		}
		return "", err
	}
	return finder.ConfigFileUsed(), nil
}

func (l *viperLoader) newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

var envPlaceholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// expandEnvPlaceholders 兼容 bash 的 ${VAR:-default}: 未设置或为空时使用 default
func expandEnvPlaceholders(raw string) string {
	return envPlaceholderPattern.ReplaceAllStringFunc(raw, func(match string) string {
		sub := envPlaceholderPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok && val != "" {
			return val
		}
		return sub[2]
	})
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// LoadCore 加载 key 下的核心配置，补齐默认值并校验
func LoadCore(configPath, configName, configType, key string, opts ...Option) (CoreConfig, error) {
	opts = append([]Option{WithDefaults(coreDefaults(key))}, opts...)
	var all map[string]any
	if err := NewLoader(configPath, configName, configType, opts...).Load(&all); err != nil {
		return CoreConfig{}, errors.Wrap(errors.ErrCodeConfiguration, "load core config", err)
	}

	var cfg CoreConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		DecodeHook:       decodeHook(),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return CoreConfig{}, errors.Wrap(errors.ErrCodeConfiguration, "build core config decoder", err)
	}
	if err := dec.Decode(all[key]); err != nil {
		return CoreConfig{}, errors.Wrapf(errors.ErrCodeConfiguration, err, "decode %s config", key)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return CoreConfig{}, errors.Wrap(errors.ErrCodeConfiguration, "invalid core config", err)
	}
	return cfg, nil
}

func coreDefaults(key string) map[string]any {
	def := DefaultCoreConfig()
	return map[string]any{
		key + ".sequence.default_width":   def.Sequence.DefaultWidth,
		key + ".sequence.max_width":       def.Sequence.MaxWidth,
		key + ".sequence.lock_strategy":   def.Sequence.LockStrategy,
		key + ".sequence.retries":         def.Sequence.Retries,
		key + ".sequence.retry_delay":     def.Sequence.RetryDelay.String(),
		key + ".sequence.lock_ttl":        def.Sequence.LockTTL.String(),
		key + ".query.default_sort_field": def.Query.DefaultSortField,
		key + ".query.default_sort_desc":  def.Query.DefaultSortDesc,
		key + ".query.max_limit":          def.Query.MaxLimit,
		key + ".tx.max_attempts":          def.Tx.MaxAttempts,
		key + ".tx.retry_delay":           def.Tx.RetryDelay.String(),
		key + ".tx.isolation":             def.Tx.Isolation,
	}
}
