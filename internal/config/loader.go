package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultListenPort      = 5000
	defaultStoragePath     = "./storage/images"
	defaultRoutePrefix     = "/api"
	defaultMaxAge          = 24 * time.Hour
	defaultCleanupInterval = time.Hour
	defaultTempGrace       = time.Hour
	defaultCacheMaxAge     = 24 * time.Hour
	defaultMaxUploadSize   = 32 * 1024 * 1024
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyCacheDefaults(&cfg.Cache)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Cache.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Cache.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", defaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", defaultStoragePath)
	v.SetDefault("RoutePrefix", defaultRoutePrefix)
	v.SetDefault("PublicBaseURL", "")
	v.SetDefault("MaxAge", "24h")
	v.SetDefault("CleanupInterval", "1h")
	v.SetDefault("TempGracePeriod", "1h")
	v.SetDefault("CacheMaxAge", 86400)
	v.SetDefault("MaxUploadSize", defaultMaxUploadSize)
	v.SetDefault("EphemeralMode", false)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = defaultListenPort
	}
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = "info"
	}
}

func applyCacheDefaults(c *CacheConfig) {
	if c.MaxAge.DurationValue() == 0 {
		c.MaxAge = Duration(defaultMaxAge)
	}
	if c.CleanupInterval.DurationValue() == 0 {
		c.CleanupInterval = Duration(defaultCleanupInterval)
	}
	if c.TempGracePeriod.DurationValue() == 0 {
		c.TempGracePeriod = Duration(defaultTempGrace)
	}
	if c.CacheMaxAge.DurationValue() == 0 {
		c.CacheMaxAge = Duration(defaultCacheMaxAge)
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = defaultMaxUploadSize
	}
	c.PublicBaseURL = strings.TrimSuffix(strings.TrimSpace(c.PublicBaseURL), "/")
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
