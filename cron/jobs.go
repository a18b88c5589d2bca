package cron

import (
	"context"

	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

const (
	JobCacheSweep   = "cache-sweep"
	JobLinesPrewarm = "lines-prewarm"
)

type lineLister interface {
	GetBusLines(ctx context.Context) ([]types.Line, error)
}

// SweepJob removes expired cache entries.
func SweepJob(sweeper types.CacheSweeper, logger types.Logger) types.CronJob {
	return func(ctx context.Context) error {
		removed, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}

		logger.Info("Cache swept", zap.Int("removed", removed))
		return nil
	}
}

// PrewarmJob loads the line catalog so the first API caller hits the cache.
func PrewarmJob(lines lineLister, logger types.Logger) types.CronJob {
	return func(ctx context.Context) error {
		catalog, err := lines.GetBusLines(ctx)
		if err != nil {
			return err
		}

		logger.Debug("Line catalog prewarmed", zap.Int("lines", len(catalog)))
		return nil
	}
}

// RegisterJobs adds every configured maintenance job. Jobs without a spec stay disabled.
func (m *Manager) RegisterJobs(specs map[string]string, store types.CacheStore, lines lineLister) error {
	if spec := specs[JobCacheSweep]; spec != "" {
		sweeper, ok := store.(types.CacheSweeper)
		if !ok {
			m.logger.Warn("Cache backend does not support sweeping, skipping job", zap.String("job_name", JobCacheSweep))
		} else if err := m.Add(JobCacheSweep, spec, SweepJob(sweeper, m.logger)); err != nil {
			return err
		}
	}

	if spec := specs[JobLinesPrewarm]; spec != "" {
		if err := m.Add(JobLinesPrewarm, spec, PrewarmJob(lines, m.logger)); err != nil {
			return err
		}
	}

	return nil
}
