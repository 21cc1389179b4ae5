package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuapuikia/dispatch/internal/lifecycle"
	"github.com/tuapuikia/dispatch/internal/scheduler"
)

type captureSubmitter struct {
	mu    sync.Mutex
	tasks []*scheduler.Task
	err   error
}

func (c *captureSubmitter) Submit(_ context.Context, task *scheduler.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.tasks = append(c.tasks, task)
	return nil
}

func (c *captureSubmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

type capturePruner struct {
	mu      sync.Mutex
	calls   int
	deleted int64
	err     error
}

func (c *capturePruner) DeleteExpiredRefreshTokens(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.deleted, c.err
}

func (c *capturePruner) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestNew_DefaultSchedules(t *testing.T) {
	r := New(Config{DailySummaryEnabled: true}, &captureSubmitter{}, nil)
	assert.Equal(t, DefaultDailySummarySchedule, r.config.DailySummarySchedule)
	assert.Equal(t, DefaultTokenCleanupSchedule, r.config.TokenCleanupSchedule)
}

func TestStart_InvalidSchedule(t *testing.T) {
	r := New(Config{
		DailySummaryEnabled:  true,
		DailySummarySchedule: "not a cron expression",
	}, &captureSubmitter{}, nil)

	err := r.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add daily summary entry")
}

func TestStart_DisabledArmsNothing(t *testing.T) {
	r := New(Config{DailySummaryEnabled: false}, &captureSubmitter{}, nil)

	require.NoError(t, r.Start())
	assert.Empty(t, r.cron.Entries())
	r.Stop()
}

func TestStart_NilPrunerSkipsCleanup(t *testing.T) {
	r := New(Config{DailySummaryEnabled: false}, &captureSubmitter{}, nil)

	require.NoError(t, r.Start())
	defer r.Stop()
	assert.Empty(t, r.cron.Entries())
}

func TestStart_PrunerArmsCleanupEntry(t *testing.T) {
	r := New(Config{DailySummaryEnabled: false}, &captureSubmitter{}, &capturePruner{})

	require.NoError(t, r.Start())
	defer r.Stop()
	assert.Len(t, r.cron.Entries(), 1)
}

func TestRunDailySummary_SubmitsTask(t *testing.T) {
	sub := &captureSubmitter{}
	r := New(Config{DailySummaryEnabled: true}, sub, nil)

	r.runDailySummary()

	require.Equal(t, 1, sub.count())
	task := sub.tasks[0]
	assert.Equal(t, lifecycle.TaskKindDailySummary, task.Kind)

	var payload lifecycle.DailySummaryPayload
	require.NoError(t, task.DecodePayload(&payload))

	day, err := time.Parse("2006-01-02", payload.Date)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), day, 24*time.Hour)
}

func TestRunDailySummary_DropsOnFullQueue(t *testing.T) {
	sub := &captureSubmitter{err: scheduler.ErrQueueFull}
	r := New(Config{DailySummaryEnabled: true}, sub, nil)

	// Must not panic or retry, the next firing covers it.
	r.runDailySummary()
	assert.Equal(t, 0, sub.count())
}

func TestRunTokenCleanup_CallsPruner(t *testing.T) {
	pruner := &capturePruner{deleted: 3}
	r := New(Config{}, &captureSubmitter{}, pruner)

	r.runTokenCleanup()
	assert.Equal(t, 1, pruner.callCount())
}

func TestRunTokenCleanup_SurvivesPrunerError(t *testing.T) {
	pruner := &capturePruner{err: errors.New("connection refused")}
	r := New(Config{}, &captureSubmitter{}, pruner)

	// Logged, not fatal; the nightly sweep tries again tomorrow.
	r.runTokenCleanup()
	assert.Equal(t, 1, pruner.callCount())
}

func TestStart_FiresOnSchedule(t *testing.T) {
	sub := &captureSubmitter{}
	r := New(Config{
		DailySummaryEnabled:  true,
		DailySummarySchedule: "@every 10ms",
	}, sub, nil)

	require.NoError(t, r.Start())
	defer r.Stop()

	require.Eventually(t, func() bool {
		return sub.count() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}
