// Package reports feeds recurring report tasks into the scheduler on a
// cron timetable.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tuapuikia/dispatch/internal/lifecycle"
	"github.com/tuapuikia/dispatch/internal/scheduler"
)

// DefaultDailySummarySchedule fires at 09:00 UTC every day.
const DefaultDailySummarySchedule = "0 9 * * *"

// DefaultTokenCleanupSchedule sweeps expired refresh tokens nightly,
// off-peak.
const DefaultTokenCleanupSchedule = "30 3 * * *"

// Submitter is the scheduler surface the reporter needs.
type Submitter interface {
	Submit(ctx context.Context, task *scheduler.Task) error
}

// Pruner removes expired refresh tokens and reports how many went.
type Pruner interface {
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// Config holds report scheduling configuration.
type Config struct {
	DailySummaryEnabled  bool
	DailySummarySchedule string // standard 5-field cron expression, UTC
	TokenCleanupSchedule string
}

// Reporter owns the cron entries that produce recurring tasks.
type Reporter struct {
	config    Config
	scheduler Submitter
	pruner    Pruner
	cron      *cron.Cron
}

// New creates a reporter. Call Start to arm the schedules. A nil pruner
// skips the token cleanup entry.
func New(config Config, sched Submitter, pruner Pruner) *Reporter {
	if config.DailySummarySchedule == "" {
		config.DailySummarySchedule = DefaultDailySummarySchedule
	}
	if config.TokenCleanupSchedule == "" {
		config.TokenCleanupSchedule = DefaultTokenCleanupSchedule
	}

	return &Reporter{
		config:    config,
		scheduler: sched,
		pruner:    pruner,
		cron:      cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers the configured entries and starts the cron runner.
// A bad cron expression surfaces here, before anything is armed.
func (r *Reporter) Start() error {
	if r.config.DailySummaryEnabled {
		if _, err := r.cron.AddFunc(r.config.DailySummarySchedule, r.runDailySummary); err != nil {
			return fmt.Errorf("add daily summary entry: %w", err)
		}
		slog.Info("daily summary scheduled", "schedule", r.config.DailySummarySchedule)
	}

	if r.pruner != nil {
		if _, err := r.cron.AddFunc(r.config.TokenCleanupSchedule, r.runTokenCleanup); err != nil {
			return fmt.Errorf("add token cleanup entry: %w", err)
		}
		slog.Info("token cleanup scheduled", "schedule", r.config.TokenCleanupSchedule)
	}

	r.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for any running entry to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
	slog.Info("report schedules stopped")
}

func (r *Reporter) runDailySummary() {
	task, err := lifecycle.NewDailySummaryTask(time.Now().UTC())
	if err != nil {
		slog.Error("failed to build daily summary task", "error", err)
		return
	}

	if err := r.scheduler.Submit(context.Background(), task); err != nil {
		// The next firing produces a fresh digest, so a dropped one is
		// only worth a warning.
		slog.Warn("daily summary dropped", "error", err)
		return
	}

	slog.Info("daily summary queued", "task_id", task.ID)
}

func (r *Reporter) runTokenCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := r.pruner.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		slog.Error("token cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		slog.Info("expired refresh tokens removed", "count", deleted)
	}
}
