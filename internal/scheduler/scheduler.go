// Package scheduler runs submitted tasks asynchronously on a bounded
// in-memory queue. Each accepted task gets exactly one processing attempt;
// handler failures are logged and counted, never propagated to the
// submitter. Durability is out of scope: a restart loses queued tasks.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Submission errors.
var (
	ErrQueueFull = errors.New("task queue is full")
	ErrStopped   = errors.New("scheduler is stopped")
)

// Handler processes tasks of a single kind.
type Handler interface {
	Handle(ctx context.Context, task *Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *Task) error

// Handle calls f(ctx, task).
func (f HandlerFunc) Handle(ctx context.Context, task *Task) error {
	return f(ctx, task)
}

// Config contains scheduler configuration.
type Config struct {
	QueueSize  int
	NumWorkers int
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:  256,
		NumWorkers: 4,
	}
}

// Scheduler dispatches tasks to registered handlers from a pool of workers.
type Scheduler struct {
	config   Config
	handlers map[string]Handler

	queue  chan *Task
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a scheduler. Handlers are registered before Start.
func New(config Config) *Scheduler {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = DefaultConfig().NumWorkers
	}

	return &Scheduler{
		config:   config,
		handlers: make(map[string]Handler),
		queue:    make(chan *Task, config.QueueSize),
		stopCh:   make(chan struct{}),
	}
}

// Register binds a handler to a task kind, replacing any previous binding.
// Register must not be called after Start.
func (s *Scheduler) Register(kind string, h Handler) {
	s.handlers[kind] = h
}

// Start launches the worker goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting task scheduler",
		"workers", s.config.NumWorkers,
		"queue_size", s.config.QueueSize,
	)

	for i := 0; i < s.config.NumWorkers; i++ {
		s.wg.Add(1)
		go s.run(ctx, i)
	}
}

// Stop prevents further submissions, waits for workers to drain the queue
// and returns once all in-flight tasks have finished.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("task scheduler stopped")
}

// Submit enqueues a task without blocking. It returns ErrQueueFull when the
// queue has no room and ErrStopped after Stop has been called. A nil return
// means the task will get exactly one processing attempt.
func (s *Scheduler) Submit(ctx context.Context, task *Task) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case s.queue <- task:
		recordTaskSubmitted(task.Kind)
		recordQueueDepth(len(s.queue))
		return nil
	default:
		recordTaskRejected(task.Kind)
		return ErrQueueFull
	}
}

func (s *Scheduler) run(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.queue:
			s.process(ctx, task)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			s.drain(ctx, workerID)
			return
		}
	}
}

// drain empties the queue after Stop so accepted tasks still get their
// processing attempt.
func (s *Scheduler) drain(ctx context.Context, workerID int) {
	for {
		select {
		case task := <-s.queue:
			s.process(ctx, task)
		default:
			slog.Debug("worker drained", "worker", workerID)
			return
		}
	}
}

func (s *Scheduler) process(ctx context.Context, task *Task) {
	defer recordQueueDepth(len(s.queue))
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task handler panicked",
				"task_id", task.ID,
				"kind", task.Kind,
				"panic", r,
			)
			recordTaskProcessed(task.Kind, "panic")
		}
	}()

	handler, ok := s.handlers[task.Kind]
	if !ok {
		slog.Warn("no handler for task kind", "task_id", task.ID, "kind", task.Kind)
		recordTaskProcessed(task.Kind, "unhandled")
		return
	}

	start := time.Now()
	if err := handler.Handle(ctx, task); err != nil {
		attrs := []any{
			"task_id", task.ID,
			"kind", task.Kind,
			"error", err,
		}
		var classified interface{ IsRetryable() bool }
		if errors.As(err, &classified) {
			attrs = append(attrs, "retryable", classified.IsRetryable())
		}
		slog.Error("task failed", attrs...)
		recordTaskProcessed(task.Kind, "failed")
		return
	}

	recordTaskProcessed(task.Kind, "success")
	recordTaskDuration(task.Kind, time.Since(start))

	slog.Debug("task processed",
		"task_id", task.ID,
		"kind", task.Kind,
		"wait", start.Sub(task.EnqueuedAt),
	)
}
