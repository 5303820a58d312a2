package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggingFallbackToStdout(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	logPath := filepath.Join(blocked, "sub", "pixcache.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = "%s"
StoragePath = "%s"
ListenPort = 5000
`, logPath, filepath.Join(dir, "storage")))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, checkOnly: true})
	if code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "storage")); !os.IsNotExist(err) {
		t.Fatalf("check-config 模式不应创建缓存目录，stat err=%v", err)
	}
}

func TestCheckConfigWritesJSONLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "pixcache.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "debug"
LogFilePath = "%s"
LogCompress = false
`, filepath.ToSlash(logPath)))

	useBufferWriters(t)
	if code := run(cliOptions{configPath: configPath, checkOnly: true}); code != 0 {
		t.Fatalf("check-config 应成功，得到 %d", code)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("日志文件应被创建: %v", err)
	}
	content := string(data)
	for _, want := range []string{`"action":"check_config"`, `"service":"pixcache"`, `"result":"ok"`} {
		if !strings.Contains(content, want) {
			t.Fatalf("日志缺少 %s: %s", want, content)
		}
	}
}
