package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

// Manager schedules maintenance jobs with second-resolution cron specs in the
// configured timezone. Overlapping runs of the same job are skipped.
type Manager struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     types.Logger
	metrics    types.MetricsManager
	cron       *cron.Cron
	timezone   *time.Location
	jobs       map[string]*types.JobEntry
	mu         sync.RWMutex
	running    atomic.Bool
	jobTimeout time.Duration
}

func NewManager(config *types.CronConfig, logger types.Logger, metrics types.MetricsManager) *Manager {
	timezone := time.UTC
	if config != nil && config.Timezone != "" {
		loc, err := time.LoadLocation(config.Timezone)
		if err != nil {
			logger.Warn("Unknown cron timezone, using UTC", zap.String("timezone", config.Timezone), zap.Error(err))
		} else {
			timezone = loc
		}
	}

	cronL := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronL), cron.SkipIfStillRunning(cronL)),
		),
		timezone:   timezone,
		jobs:       make(map[string]*types.JobEntry),
		jobTimeout: 10 * time.Minute,
	}
}

func (m *Manager) Add(jobName, spec string, job types.CronJob) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.Errorf(types.ErrCronJobExists, "%s", jobName)
	}

	entryID, err := m.cron.AddFunc(spec, func() { _ = m.run(m.ctx, jobName) })
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	entry := &types.JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		Job:     job,
		AddedAt: time.Now(),
	}

	if cronEntry := m.cron.Entry(entryID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}

	m.jobs[jobName] = entry

	m.logger.Info("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

// Run executes jobName immediately, outside the schedule.
func (m *Manager) Run(ctx context.Context, jobName string) error {
	m.mu.RLock()
	_, exists := m.jobs[jobName]
	m.mu.RUnlock()

	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "%s", jobName)
	}

	return m.run(ctx, jobName)
}

func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return types.ErrCronIsRunning
	}

	m.cron.Start()
	m.setSchedulerStatus(1)

	m.mu.Lock()
	for _, entry := range m.jobs {
		if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
			entry.NextRun = cronEntry.Next
		}
	}
	m.mu.Unlock()

	m.logger.Info("Cron manager started", zap.String("timezone", m.timezone.String()))
	return nil
}

// Stop cancels running jobs and waits for them until ctx ends.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.running.CompareAndSwap(true, false) {
		return types.ErrCronIsNotRunning
	}

	m.cancel()
	stopped := m.cron.Stop()
	m.setSchedulerStatus(0)

	select {
	case <-stopped.Done():
		m.logger.Info("Cron scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Cron manager stop timeout, some jobs may still be running")
		return ctx.Err()
	}
}

func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// Jobs returns a snapshot of registered jobs ordered by name.
func (m *Manager) Jobs() []types.JobEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]types.JobEntry, 0, len(m.jobs))
	for _, entry := range m.jobs {
		jobs = append(jobs, *entry)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

func (m *Manager) run(ctx context.Context, jobName string) (err error) {
	m.mu.RLock()
	entry, exists := m.jobs[jobName]
	m.mu.RUnlock()
	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "%s", jobName)
	}

	jobCtx, cancel := context.WithTimeout(ctx, m.jobTimeout)
	defer cancel()

	start := time.Now()
	m.setActive(1)
	m.logger.Debug("Cron job started", zap.String("job_name", jobName))

	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrCronJobFailed, "job panic: %v", r)
		}

		m.setActive(-1)
		duration := time.Since(start)
		m.finish(entry, start, duration, err)

		if err != nil {
			m.logger.Error("Cron job failed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration),
				zap.Error(err))
		} else {
			m.logger.Info("Cron job completed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration))
		}
	}()

	return entry.Job(jobCtx)
}

func (m *Manager) finish(entry *types.JobEntry, start time.Time, duration time.Duration, err error) {
	m.mu.Lock()
	entry.LastRun = start
	entry.LastDuration = duration
	entry.RunCount++
	entry.Error = err
	if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
	m.mu.Unlock()

	if m.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
		m.metrics.Counter("cron_job_errors_total", map[string]string{"job_name": entry.Name}).Inc()
	}

	m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": entry.Name,
		"result":   result,
	}).Inc()
	m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.1, 1.0, 10.0, 60.0, 300.0},
		map[string]string{"job_name": entry.Name},
	).Observe(duration.Seconds())
}

func (m *Manager) setActive(delta int) {
	if m.metrics == nil {
		return
	}
	if delta > 0 {
		m.metrics.Gauge("cron_active_jobs", nil).Inc()
	} else {
		m.metrics.Gauge("cron_active_jobs", nil).Dec()
	}
}

func (m *Manager) setSchedulerStatus(value float64) {
	if m.metrics == nil {
		return
	}
	m.metrics.Gauge("cron_scheduler_running", nil).Set(value)
}

// cronLogger adapts types.Logger to cron.Logger.
type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
