package cache

import (
	"net/url"
	"path"
	"strings"
)

// DefaultRoutePrefix 是引用路径 /{prefix}/images/{id} 的默认前缀。
const DefaultRoutePrefix = "/api"

// NormalizePrefix 将 "api"、"/api/"、"" 等写法统一为 "/api" 或 "" 形式。
func NormalizePrefix(prefix string) string {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

// Reference 返回对外暴露的稳定引用，不包含扩展名。
func Reference(prefix, id string) string {
	return NormalizePrefix(prefix) + "/images/" + id
}

// ParseReference 从裸 id、/{prefix}/images/{id} 或完整 URL 中取出 id。
// 允许尾部扩展名与大写十六进制；无法解析时 ok=false。
func ParseReference(ref string) (string, bool) {
	raw := strings.TrimSpace(ref)
	if raw == "" {
		return "", false
	}

	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false
		}
		raw = parsed.Path
	} else if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		raw = raw[:idx]
	}

	raw = strings.TrimSuffix(raw, "/")
	candidate := path.Base("/" + raw)
	if ext := path.Ext(candidate); ext != "" {
		candidate = strings.TrimSuffix(candidate, ext)
	}
	candidate = strings.ToLower(candidate)

	if !NewHasher().Valid(candidate) {
		return "", false
	}
	return candidate, true
}
