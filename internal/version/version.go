// Package version 保存构建时注入的版本信息。
package version

import "fmt"

// 通过 -ldflags "-X github.com/pixhub/pixcache/internal/version.Version=..." 注入。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

const binaryName = "pixcache"

// Full 返回 "pixcache <version> (<commit>)"，用于 --version 与启动日志。
func Full() string {
	return fmt.Sprintf("%s %s (%s)", binaryName, Version, Commit)
}

// Short 返回不含提交号的版本，用于诊断接口。
func Short() string {
	return Version
}
