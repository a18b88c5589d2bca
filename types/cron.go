package types

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

type CronJob func(ctx context.Context) error

type JobEntry struct {
	ID           cron.EntryID
	Name         string
	Spec         string
	Job          CronJob
	AddedAt      time.Time
	LastRun      time.Time
	NextRun      time.Time
	LastDuration time.Duration
	RunCount     int64
	Error        error
}
