package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pixhub/pixcache/internal/metrics"
)

// Cleanup 淘汰过期条目并回收遗弃的临时文件。单个条目失败只计数，不中断扫描；
// 仅当目录不可访问或 ctx 在条目之间被取消时返回错误（附带已完成部分的报告）。
func (s *FileStore) Cleanup(ctx context.Context, maxAge time.Duration) (CleanupReport, error) {
	var report CleanupReport

	if _, err := os.Stat(s.root); err != nil {
		return report, fmt.Errorf("stat storage path: %w", err)
	}

	now := s.clock.Now()
	if maxAge > 0 {
		cutoff := now.Add(-maxAge)
		for id, entry := range s.index.Scan() {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Scanned++
			if !entry.CreatedAt.Before(cutoff) {
				continue
			}
			if s.deleteIfExpired(id, cutoff) {
				report.Expired++
				s.metrics.ObserveEviction(metrics.EvictionExpired)
			}
		}
	}

	swept, failures, err := s.sweepTemp(ctx, now)
	report.TempSwept = swept
	report.Failures += failures
	if err != nil {
		return report, err
	}

	s.logger.WithFields(logrus.Fields{
		"action":     "cache_cleanup",
		"max_age":    maxAge.String(),
		"scanned":    report.Scanned,
		"expired":    report.Expired,
		"temp_swept": report.TempSwept,
		"failures":   report.Failures,
	}).Info("cache cleanup finished")
	return report, nil
}

// sweepTemp 删除 ModTime 早于宽限期的临时文件；宽限期内的文件可能仍在写入，绝不触碰。
func (s *FileStore) sweepTemp(ctx context.Context, now time.Time) (int, int, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, 0, fmt.Errorf("list storage path: %w", err)
	}

	cutoff := now.Add(-s.tempGrace)
	swept, failures := 0, 0
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return swept, failures, err
		}
		if !de.Type().IsRegular() || !isTempName(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				failures++
				s.metrics.ObserveCleanupFailure()
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.root, de.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failures++
			s.metrics.ObserveCleanupFailure()
			s.logger.WithError(err).
				WithFields(logrus.Fields{"action": "cache_cleanup", "path": path}).
				Warn("cache_temp_sweep_failed")
			continue
		}
		swept++
		s.metrics.ObserveEviction(metrics.EvictionTemp)
	}
	return swept, failures, nil
}
