// SPDX-License-Identifier: MIT

// Package queue implements the bounded FIFO task queue with per-task status
// tracking and bounded retry.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidpipe/internal/log"
	"vidpipe/internal/metrics"
	"vidpipe/internal/types"
	"vidpipe/internal/vperrors"
)

var (
	// ErrInvalidCapacity is returned when the queue is constructed with a
	// non-positive capacity.
	ErrInvalidCapacity = fmt.Errorf("%w: queue capacity must be greater than 0", vperrors.ErrProcessing)

	// ErrQueueFull is returned by Enqueue when the FIFO channel is at
	// capacity.
	ErrQueueFull = fmt.Errorf("%w: queue full", vperrors.ErrProcessing)

	// ErrUnknownTask is returned when a task id is not registered.
	ErrUnknownTask = fmt.Errorf("%w: unknown task", vperrors.ErrProcessing)
)

// Task is a unit of queued work. The queue owns the canonical Task; Dequeue
// and Status hand out value copies.
type Task struct {
	ID           string            `json:"task_id"`
	Type         types.TaskType    `json:"task_type"`
	InputData    map[string]string `json:"input_data"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	Status       types.TaskStatus  `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// clone returns a value copy safe to hand to callers. InputData is copied
// shallowly; consumers treat it as read-only.
func (t *Task) clone() Task {
	cp := *t
	cp.InputData = make(map[string]string, len(t.InputData))
	for k, v := range t.InputData {
		cp.InputData[k] = v
	}
	return cp
}

// Stats is a snapshot of queue counters.
type Stats struct {
	QueueLength    int `json:"queue_length"`
	MaxSize        int `json:"max_size"`
	TotalTasks     int `json:"total_tasks"`
	PendingTasks   int `json:"pending_tasks"`
	RunningTasks   int `json:"running_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	CompletedCount int `json:"completed_count"`
	FailedCount    int `json:"failed_count"`
}

// Queue is a capacity-bounded FIFO with a side table tracking every task
// ever enqueued. The channel is the only wait point; all metadata mutations
// happen under a single mutex.
type Queue struct {
	maxSize    int
	maxRetries int
	ch         chan *Task

	mu             sync.Mutex
	tasks          map[string]*Task
	completedCount int
	failedCount    int

	logger zerolog.Logger
	now    func() time.Time
}

// Option customises queue construction.
type Option func(*Queue)

// WithClock injects a clock, used by tests to control timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithMaxRetries sets the per-task retry budget (default 3).
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// New creates a bounded FIFO queue. Returns ErrInvalidCapacity when
// maxSize is not positive.
func New(maxSize int, opts ...Option) (*Queue, error) {
	if maxSize <= 0 {
		return nil, ErrInvalidCapacity
	}
	q := &Queue{
		maxSize:    maxSize,
		maxRetries: 3,
		ch:         make(chan *Task, maxSize),
		tasks:      make(map[string]*Task),
		logger:     log.WithComponent("queue"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue mints a task id, registers a PENDING task and pushes it onto the
// FIFO. Fails with ErrQueueFull when the channel is at capacity.
func (q *Queue) Enqueue(taskType types.TaskType, input map[string]string) (string, error) {
	if !taskType.IsValid() {
		return "", fmt.Errorf("%w: invalid task type %q", vperrors.ErrProcessing, taskType)
	}

	now := q.now()
	task := &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		InputData:  input,
		MaxRetries: q.maxRetries,
		Status:     types.TaskPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Register before the channel push so a consumer that dequeues the
	// task immediately can already resolve it by id.
	q.mu.Lock()
	q.tasks[task.ID] = task
	q.mu.Unlock()

	select {
	case q.ch <- task:
	default:
		q.mu.Lock()
		delete(q.tasks, task.ID)
		q.mu.Unlock()
		return "", fmt.Errorf("enqueue %s: %w", taskType, ErrQueueFull)
	}

	metrics.QueueDepth.Set(float64(len(q.ch)))
	metrics.QueueTasks.WithLabelValues(taskType.String(), "enqueued").Inc()
	q.logger.Info().
		Str(log.FieldTaskID, task.ID).
		Str(log.FieldStage, taskType.String()).
		Str(log.FieldEvent, "queue.enqueue").
		Msg("task enqueued")
	return task.ID, nil
}

// Dequeue pops the next task, blocking up to timeout. On success the task
// transitions to RUNNING and a value copy is returned. A non-positive
// timeout polls without blocking.
func (q *Queue) Dequeue(timeout time.Duration) (Task, bool) {
	var task *Task
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case task = <-q.ch:
		case <-timer.C:
			return Task{}, false
		}
	} else {
		select {
		case task = <-q.ch:
		default:
			return Task{}, false
		}
	}

	q.mu.Lock()
	task.Status = types.TaskRunning
	task.UpdatedAt = q.now()
	snapshot := task.clone()
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(len(q.ch)))
	q.logger.Debug().
		Str(log.FieldTaskID, task.ID).
		Str(log.FieldEvent, "queue.dequeue").
		Msg("task dequeued")
	return snapshot, true
}

// MarkCompleted transitions a RUNNING task to COMPLETED.
func (q *Queue) MarkCompleted(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return fmt.Errorf("mark completed %s: %w", taskID, ErrUnknownTask)
	}
	task.Status = types.TaskCompleted
	task.UpdatedAt = q.now()
	q.completedCount++

	metrics.QueueTasks.WithLabelValues(task.Type.String(), "completed").Inc()
	q.logger.Info().
		Str(log.FieldTaskID, taskID).
		Str(log.FieldEvent, "queue.completed").
		Msg("task completed")
	return nil
}

// MarkFailed records the failure and increments the retry counter. While
// retries remain the task goes back to PENDING and is re-pushed onto the
// FIFO; otherwise (or when the re-push finds the channel full) it
// terminates in FAILED.
//
// The counter is incremented on every call, so a task that exhausts its
// budget ends with retry_count == max_retries + 1. Workers observe the
// task at most max_retries + 1 times.
func (q *Queue) MarkFailed(taskID, errorMessage string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return fmt.Errorf("mark failed %s: %w", taskID, ErrUnknownTask)
	}
	task.ErrorMessage = errorMessage
	task.UpdatedAt = q.now()
	task.RetryCount++

	if task.RetryCount <= task.MaxRetries {
		task.Status = types.TaskPending
		select {
		case q.ch <- task:
			metrics.QueueTasks.WithLabelValues(task.Type.String(), "retried").Inc()
			q.logger.Info().
				Str(log.FieldTaskID, taskID).
				Int(log.FieldRetry, task.RetryCount).
				Int("max_retries", task.MaxRetries).
				Str(log.FieldEvent, "queue.retry").
				Msg("task re-enqueued for retry")
			metrics.QueueDepth.Set(float64(len(q.ch)))
			return nil
		default:
			// Channel full: the retry is lost, terminate the task.
			q.logger.Error().
				Str(log.FieldTaskID, taskID).
				Str(log.FieldEvent, "queue.retry_dropped").
				Msg("re-enqueue failed, queue full")
		}
	}

	task.Status = types.TaskFailed
	q.failedCount++
	metrics.QueueTasks.WithLabelValues(task.Type.String(), "failed").Inc()
	q.logger.Error().
		Str(log.FieldTaskID, taskID).
		Int(log.FieldRetry, task.RetryCount).
		Str(log.FieldEvent, "queue.failed").
		Msg("task failed terminally")
	return nil
}

// Status returns a snapshot of the task, or false if the id is unknown.
func (q *Queue) Status(taskID string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return task.clone(), true
}

// Length returns the number of tasks waiting in the FIFO channel.
func (q *Queue) Length() int {
	return len(q.ch)
}

// PendingCount returns the number of registered tasks in PENDING state.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, task := range q.tasks {
		if task.Status == types.TaskPending {
			n++
		}
	}
	return n
}

// GetStats returns a snapshot of the queue counters.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		QueueLength:    len(q.ch),
		MaxSize:        q.maxSize,
		TotalTasks:     len(q.tasks),
		CompletedCount: q.completedCount,
		FailedCount:    q.failedCount,
	}
	for _, task := range q.tasks {
		switch task.Status {
		case types.TaskPending:
			stats.PendingTasks++
		case types.TaskRunning:
			stats.RunningTasks++
		case types.TaskCompleted:
			stats.CompletedTasks++
		case types.TaskFailed:
			stats.FailedTasks++
		}
	}
	return stats
}

// Clear drains the FIFO and drops all task state and counters.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		select {
		case <-q.ch:
		default:
			q.tasks = make(map[string]*Task)
			q.completedCount = 0
			q.failedCount = 0
			metrics.QueueDepth.Set(0)
			q.logger.Info().Str(log.FieldEvent, "queue.cleared").Msg("queue cleared")
			return
		}
	}
}
