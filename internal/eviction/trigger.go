// Package eviction runs the periodic cleanup cycle for the image cache. The
// trigger owns only scheduling: what a cycle deletes is decided by the
// Cleaner it wraps. A failed or panicking cycle is logged and the loop waits
// for the next tick.
package eviction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/pixhub/pixcache/internal/cache"
)

// Cleaner 是 Trigger 依赖的最小接口，cache.Store 天然满足。
type Cleaner interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (cache.CleanupReport, error)
}

// TriggerOptions 控制清理周期。
type TriggerOptions struct {
	Cleaner  Cleaner
	Clock    clock.Clock
	Logger   *logrus.Logger
	Interval time.Duration
	MaxAge   time.Duration
	// RunOnStart 为 true 时启动后立即执行一次，而不是等待第一个 Interval。
	RunOnStart bool
}

// Trigger 周期性地调用 Cleaner.Cleanup。
type Trigger struct {
	cleaner    Cleaner
	clock      clock.Clock
	logger     *logrus.Logger
	interval   time.Duration
	maxAge     time.Duration
	runOnStart bool
}

// NewTrigger 校验参数并构造 Trigger。
func NewTrigger(opts TriggerOptions) (*Trigger, error) {
	if opts.Cleaner == nil {
		return nil, errors.New("cleaner is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("invalid cleanup interval: %s", opts.Interval)
	}
	t := &Trigger{
		cleaner:    opts.Cleaner,
		clock:      opts.Clock,
		logger:     opts.Logger,
		interval:   opts.Interval,
		maxAge:     opts.MaxAge,
		runOnStart: opts.RunOnStart,
	}
	if t.clock == nil {
		t.clock = clock.WallClock
	}
	if t.logger == nil {
		t.logger = logrus.StandardLogger()
	}
	return t, nil
}

// MaxAge 返回默认的淘汰时长。
func (t *Trigger) MaxAge() time.Duration {
	return t.maxAge
}

// Run 阻塞直到 ctx 结束；单个周期的错误不会终止循环。
func (t *Trigger) Run(ctx context.Context) error {
	t.logger.WithFields(logrus.Fields{
		"action":   "eviction_start",
		"interval": t.interval.String(),
		"max_age":  t.maxAge.String(),
	}).Info("eviction trigger started")

	if t.runOnStart {
		t.cycle(ctx, t.maxAge)
	}
	for {
		select {
		case <-ctx.Done():
			t.logger.WithField("action", "eviction_stop").Info("eviction trigger stopped")
			return nil
		case <-t.clock.After(t.interval):
			t.cycle(ctx, t.maxAge)
		}
	}
}

// RunOnce 立即执行一次清理，maxAge<=0 时使用默认值。
func (t *Trigger) RunOnce(ctx context.Context, maxAge time.Duration) (cache.CleanupReport, error) {
	if maxAge <= 0 {
		maxAge = t.maxAge
	}
	return t.cleanup(ctx, maxAge)
}

func (t *Trigger) cycle(ctx context.Context, maxAge time.Duration) {
	started := t.clock.Now()
	report, err := t.cleanup(ctx, maxAge)
	fields := logrus.Fields{
		"action":      "eviction_cycle",
		"expired":     report.Expired,
		"temp_swept":  report.TempSwept,
		"failures":    report.Failures,
		"duration_ms": t.clock.Now().Sub(started).Milliseconds(),
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			t.logger.WithFields(fields).Info("eviction cycle aborted by shutdown")
			return
		}
		t.logger.WithError(err).WithFields(fields).Warn("eviction_cycle_failed")
		return
	}
	t.logger.WithFields(fields).Debug("eviction cycle finished")
}

func (t *Trigger) cleanup(ctx context.Context, maxAge time.Duration) (report cache.CleanupReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panic: %v", r)
		}
	}()
	return t.cleaner.Cleanup(ctx, maxAge)
}
