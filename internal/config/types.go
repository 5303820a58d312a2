package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// CacheConfig 描述图片缓存目录、引用格式与淘汰策略。
type CacheConfig struct {
	StoragePath string `mapstructure:"StoragePath"`
	// RoutePrefix 决定引用 /{prefix}/images/{id} 与 HTTP 路由前缀。
	RoutePrefix string `mapstructure:"RoutePrefix"`
	// PublicBaseURL 用于生成绝对 URI，留空时使用请求的 BaseURL。
	PublicBaseURL string `mapstructure:"PublicBaseURL"`
	// MaxAge 是淘汰触发器使用的默认时长，Store 本身不强制。
	MaxAge          Duration `mapstructure:"MaxAge"`
	CleanupInterval Duration `mapstructure:"CleanupInterval"`
	TempGracePeriod Duration `mapstructure:"TempGracePeriod"`
	// CacheMaxAge 写入 Cache-Control: public, max-age=...
	CacheMaxAge   Duration `mapstructure:"CacheMaxAge"`
	MaxUploadSize int64    `mapstructure:"MaxUploadSize"`
	// EphemeralMode 为 true 时进程退出会删除整个缓存目录，默认关闭。
	EphemeralMode bool `mapstructure:"EphemeralMode"`
}

// Config 是 TOML 文件映射的整体结构，所有键均位于顶层。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Cache  CacheConfig  `mapstructure:",squash"`
}

// Summary 输出启动日志使用的关键字段。
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"listen_port":      c.Global.ListenPort,
		"storage_path":     c.Cache.StoragePath,
		"route_prefix":     c.Cache.RoutePrefix,
		"max_age":          c.Cache.MaxAge.DurationValue().String(),
		"cleanup_interval": c.Cache.CleanupInterval.DurationValue().String(),
		"ephemeral":        c.Cache.EphemeralMode,
	}
}
