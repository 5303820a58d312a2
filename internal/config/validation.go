package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError(globalField("ListenPort"), "必须在 1-65535")
	}
	if g.LogMaxSize < 0 {
		return newFieldError(globalField("LogMaxSize"), "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError(globalField("LogMaxBackups"), "不能为负数")
	}

	cc := c.Cache
	if strings.TrimSpace(cc.StoragePath) == "" {
		return newFieldError(cacheField("StoragePath"), "不能为空")
	}
	if err := validateRoutePrefix(cc.RoutePrefix); err != nil {
		return newFieldError(cacheField("RoutePrefix"), err.Error())
	}
	if cc.PublicBaseURL != "" {
		if err := validateBaseURL(cc.PublicBaseURL); err != nil {
			return newFieldError(cacheField("PublicBaseURL"), err.Error())
		}
	}
	if cc.MaxAge.DurationValue() <= 0 {
		return newFieldError(cacheField("MaxAge"), "必须大于 0")
	}
	if cc.CleanupInterval.DurationValue() <= 0 {
		return newFieldError(cacheField("CleanupInterval"), "必须大于 0")
	}
	if cc.TempGracePeriod.DurationValue() <= 0 {
		return newFieldError(cacheField("TempGracePeriod"), "必须大于 0")
	}
	if cc.CacheMaxAge.DurationValue() <= 0 {
		return newFieldError(cacheField("CacheMaxAge"), "必须大于 0")
	}
	if cc.MaxUploadSize <= 0 {
		return newFieldError(cacheField("MaxUploadSize"), "必须大于 0")
	}

	return nil
}

func validateRoutePrefix(prefix string) error {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return nil
	}
	if strings.ContainsAny(trimmed, " ?#:") {
		return errors.New("RoutePrefix 只能包含路径字符")
	}
	if strings.HasPrefix(trimmed, "-") {
		return errors.New("RoutePrefix 不能以 - 开头（保留给诊断接口）")
	}
	return nil
}

func validateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
