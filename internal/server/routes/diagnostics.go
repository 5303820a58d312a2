package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pixhub/pixcache/internal/cache"
	"github.com/pixhub/pixcache/internal/logging"
	"github.com/pixhub/pixcache/internal/server"
	"github.com/pixhub/pixcache/internal/version"
)

// StatsSource 提供缓存规模快照。
type StatsSource interface {
	Stats() cache.Stats
}

// CleanupRunner 按需执行一次淘汰周期，maxAge<=0 表示使用默认值。
type CleanupRunner interface {
	RunOnce(ctx context.Context, maxAge time.Duration) (cache.CleanupReport, error)
	MaxAge() time.Duration
}

// DiagnosticsOptions 描述 /-/ 诊断接口的依赖，任一字段为空时对应接口不注册。
type DiagnosticsOptions struct {
	Stats       StatsSource
	StoragePath string
	Cleanup     CleanupRunner
	Gatherer    prometheus.Gatherer
	Logger      *logrus.Logger
}

type cachePayload struct {
	Entries     int    `json:"entries"`
	Bytes       int64  `json:"bytes"`
	StoragePath string `json:"storage_path"`
	Version     string `json:"version"`
}

type cleanupPayload struct {
	cache.CleanupReport
	MaxAge     string `json:"max_age"`
	DurationMs int64  `json:"duration_ms"`
}

// RegisterDiagnosticsRoutes 暴露 /-/cache、/-/cache/cleanup 与 /-/metrics，供运维查询缓存状态。
func RegisterDiagnosticsRoutes(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil {
		return
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if opts.Stats != nil {
		app.Get("/-/cache", func(c fiber.Ctx) error {
			stats := opts.Stats.Stats()
			return c.JSON(cachePayload{
				Entries:     stats.Entries,
				Bytes:       stats.Bytes,
				StoragePath: opts.StoragePath,
				Version:     version.Short(),
			})
		})
	}

	if opts.Cleanup != nil {
		app.Post("/-/cache/cleanup", func(c fiber.Ctx) error {
			maxAge := opts.Cleanup.MaxAge()
			if raw := c.Query("maxAge"); raw != "" {
				parsed, err := time.ParseDuration(raw)
				if err != nil || parsed <= 0 {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_max_age"})
				}
				maxAge = parsed
			}

			started := time.Now()
			report, err := opts.Cleanup.RunOnce(c.Context(), maxAge)
			if err != nil {
				logger.WithFields(logging.ImageFields("cleanup_manual", server.RequestID(c), "")).
					WithError(err).Error("手动清理失败")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cleanup_failed"})
			}
			return c.JSON(cleanupPayload{
				CleanupReport: report,
				MaxAge:        maxAge.String(),
				DurationMs:    time.Since(started).Milliseconds(),
			})
		})
	}

	if opts.Gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
}
