package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// globalField 拼接 Global.xxx 形式的字段路径。
func globalField(field string) string {
	return "Global." + field
}

// cacheField 拼接 Cache.xxx 形式的字段路径；TOML 中二者都写在顶层。
func cacheField(field string) string {
	return "Cache." + field
}
