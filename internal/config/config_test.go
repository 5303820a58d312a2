package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Cache.MaxAge.DurationValue() != 12*time.Hour {
		t.Fatalf("MaxAge 应解析为 12h，得到 %s", cfg.Cache.MaxAge.DurationValue())
	}
	if cfg.Cache.CleanupInterval.DurationValue() != 10*time.Minute {
		t.Fatalf("整数秒应解析为 Duration，得到 %s", cfg.Cache.CleanupInterval.DurationValue())
	}
	if cfg.Cache.TempGracePeriod.DurationValue() != time.Hour {
		t.Fatalf("TempGracePeriod 应该自动填充默认值")
	}
	if cfg.Cache.CacheMaxAge.DurationValue() != 24*time.Hour {
		t.Fatalf("CacheMaxAge 默认应为 86400 秒")
	}
	if cfg.Cache.StoragePath == "" {
		t.Fatalf("StoragePath 应该被保留")
	}
	if cfg.Cache.EphemeralMode {
		t.Fatalf("EphemeralMode 默认应关闭")
	}
	if cfg.Global.ListenPort == 0 {
		t.Fatalf("ListenPort 应当被解析")
	}
}

func TestValidateRejectsEmptyStoragePath(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Cache.StoragePath" {
		t.Fatalf("应返回 StoragePath 字段错误，得到 %v", err)
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateCacheFields(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty prefix ok", func(c *Config) { c.Cache.RoutePrefix = "" }, ""},
		{"prefix with space", func(c *Config) { c.Cache.RoutePrefix = "/my api" }, "Cache.RoutePrefix"},
		{"diagnostics prefix", func(c *Config) { c.Cache.RoutePrefix = "/-/x" }, "Cache.RoutePrefix"},
		{"base url ok", func(c *Config) { c.Cache.PublicBaseURL = "https://pix.example.com" }, ""},
		{"base url scheme", func(c *Config) { c.Cache.PublicBaseURL = "ftp://pix.example.com" }, "Cache.PublicBaseURL"},
		{"base url host", func(c *Config) { c.Cache.PublicBaseURL = "https://" }, "Cache.PublicBaseURL"},
		{"zero max age", func(c *Config) { c.Cache.MaxAge = 0 }, "Cache.MaxAge"},
		{"negative interval", func(c *Config) { c.Cache.CleanupInterval = Duration(-time.Second) }, "Cache.CleanupInterval"},
		{"zero upload size", func(c *Config) { c.Cache.MaxUploadSize = 0 }, "Cache.MaxUploadSize"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var fieldErr FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected FieldError for %s, got %v", tc.field, err)
			}
			if fieldErr.Field != tc.field {
				t.Fatalf("字段路径不匹配: want %s, got %s", tc.field, fieldErr.Field)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort: 5000,
			LogLevel:   "info",
		},
		Cache: CacheConfig{
			StoragePath:     "./data",
			RoutePrefix:     "/api",
			MaxAge:          Duration(time.Hour),
			CleanupInterval: Duration(time.Minute),
			TempGracePeriod: Duration(time.Hour),
			CacheMaxAge:     Duration(24 * time.Hour),
			MaxUploadSize:   1024,
		},
	}
}
