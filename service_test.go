package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixhub/pixcache/internal/cache"
	"github.com/pixhub/pixcache/internal/config"
	"github.com/pixhub/pixcache/internal/logging"
)

func TestServiceWiresImageAndDiagnosticsRoutes(t *testing.T) {
	cfg := testServiceConfig(t, false)
	svc, err := newService(context.Background(), cfg, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}
	t.Cleanup(func() { _ = svc.store.Close() })

	payload := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x01, 0x02}
	body, _ := json.Marshal(map[string]string{
		"data":        base64.StdEncoding.EncodeToString(payload),
		"contentType": "image/png",
	})
	req := httptest.NewRequest("POST", "/api/images", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := svc.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("上传应返回 200，得到 %d", resp.StatusCode)
	}

	resp, err = svc.app.Test(httptest.NewRequest("GET", "/-/cache", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	var stats struct {
		Entries int `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("解析诊断响应失败: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("期望 1 个条目，得到 %d", stats.Entries)
	}

	resp, err = svc.app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("/-/metrics 应返回 200，得到 %d", resp.StatusCode)
	}
}

func TestServiceRebuildsFromExistingDirectory(t *testing.T) {
	cfg := testServiceConfig(t, false)
	first, err := newService(context.Background(), cfg, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}
	if _, err := first.store.PutBytes(context.Background(), []byte("gif-bytes"), cache.PutOptions{ContentType: "image/gif"}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := first.store.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}

	second, err := newService(context.Background(), cfg, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("重新初始化失败: %v", err)
	}
	t.Cleanup(func() { _ = second.store.Close() })
	if got := second.store.Stats().Entries; got != 1 {
		t.Fatalf("重启后应恢复 1 个条目，得到 %d", got)
	}
}

func TestServiceEphemeralModeRemovesDirectory(t *testing.T) {
	cfg := testServiceConfig(t, true)
	svc, err := newService(context.Background(), cfg, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}
	if err := svc.store.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if _, err := os.Stat(cfg.Cache.StoragePath); !os.IsNotExist(err) {
		t.Fatalf("临时模式关闭后目录应被删除，stat err=%v", err)
	}
}

func TestUploadBodyLimit(t *testing.T) {
	if got := uploadBodyLimit(3 * 1024); got != 4*1024+64*1024 {
		t.Fatalf("unexpected limit: %d", got)
	}
	if got := uploadBodyLimit(-1); got != 0 {
		t.Fatalf("negative size should fall back to default, got %d", got)
	}
}

func testServiceConfig(t *testing.T, ephemeral bool) *config.Config {
	t.Helper()
	return &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, LogLevel: "info"},
		Cache: config.CacheConfig{
			StoragePath:     filepath.Join(t.TempDir(), "images"),
			RoutePrefix:     "/api",
			MaxAge:          config.Duration(24 * time.Hour),
			CleanupInterval: config.Duration(time.Hour),
			TempGracePeriod: config.Duration(time.Hour),
			CacheMaxAge:     config.Duration(time.Hour),
			MaxUploadSize:   1024 * 1024,
			EphemeralMode:   ephemeral,
		},
	}
}
