package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pixhub/pixcache/internal/cache"
	"github.com/pixhub/pixcache/internal/config"
	"github.com/pixhub/pixcache/internal/eviction"
	"github.com/pixhub/pixcache/internal/logging"
	"github.com/pixhub/pixcache/internal/metrics"
	"github.com/pixhub/pixcache/internal/server"
	"github.com/pixhub/pixcache/internal/server/routes"
	"github.com/pixhub/pixcache/internal/version"
)

const shutdownTimeout = 10 * time.Second

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		fmt.Fprintln(stdOut, version.Full())
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		for k, v := range cfg.Summary() {
			fields[k] = v
		}
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动顺序：配置 → 指标 → 磁盘缓存（重建索引）→ 淘汰触发器 → Fiber server。
	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	for k, v := range cfg.Summary() {
		fields[k] = v
	}
	fields["entries"] = svc.store.Stats().Entries
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := svc.serve(ctx, cfg.Global.ListenPort); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务运行失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("pixcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PIXCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("PIXCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// service 持有进程生命周期内共享的缓存、淘汰触发器与 HTTP 应用。
type service struct {
	app     *fiber.App
	store   *cache.FileStore
	trigger *eviction.Trigger
	logger  *logrus.Logger
}

func newService(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*service, error) {
	collector := metrics.NewCollector()
	registry, err := metrics.NewRegistry(collector)
	if err != nil {
		return nil, fmt.Errorf("注册指标失败: %w", err)
	}

	store, err := cache.NewStore(ctx, cache.Options{
		Root:            cfg.Cache.StoragePath,
		RoutePrefix:     cfg.Cache.RoutePrefix,
		Clock:           clock.WallClock,
		Logger:          logger,
		Metrics:         collector,
		TempGracePeriod: cfg.Cache.TempGracePeriod.DurationValue(),
		Ephemeral:       cfg.Cache.EphemeralMode,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	trigger, err := eviction.NewTrigger(eviction.TriggerOptions{
		Cleaner:  store,
		Clock:    clock.WallClock,
		Logger:   logger,
		Interval: cfg.Cache.CleanupInterval.DurationValue(),
		MaxAge:   cfg.Cache.MaxAge.DurationValue(),
	})
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		ListenPort: cfg.Global.ListenPort,
		BodyLimit:  uploadBodyLimit(cfg.Cache.MaxUploadSize),
	})
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	routes.RegisterImageRoutes(app, routes.ImageRouteOptions{
		Store:         store,
		Logger:        logger,
		RoutePrefix:   cfg.Cache.RoutePrefix,
		PublicBaseURL: cfg.Cache.PublicBaseURL,
		CacheMaxAge:   cfg.Cache.CacheMaxAge.DurationValue(),
	})
	routes.RegisterDiagnosticsRoutes(app, routes.DiagnosticsOptions{
		Stats:       store,
		StoragePath: store.Root(),
		Cleanup:     trigger,
		Gatherer:    registry,
		Logger:      logger,
	})

	return &service{app: app, store: store, trigger: trigger, logger: logger}, nil
}

// serve 并行运行 HTTP 监听与淘汰循环，ctx 结束后优雅关闭并释放缓存目录。
func (s *service) serve(ctx context.Context, port int) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		return s.app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	})
	g.Go(func() error {
		return s.trigger.Run(gctx)
	})

	err := g.Wait()
	if closeErr := s.store.Close(); closeErr != nil {
		s.logger.WithError(closeErr).WithField("action", "shutdown").Warn("关闭缓存失败")
		err = errors.Join(err, closeErr)
	}
	s.logger.WithField("action", "shutdown").Info("服务已停止")
	return err
}

// uploadBodyLimit 为 base64 膨胀与 JSON 包装预留空间。
func uploadBodyLimit(maxUpload int64) int {
	if maxUpload <= 0 {
		return 0
	}
	limit := maxUpload*4/3 + 64*1024
	if limit > int64(^uint(0)>>1) {
		return 0
	}
	return int(limit)
}
