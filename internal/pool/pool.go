// SPDX-License-Identifier: MIT

// Package pool provides a bounded worker set with handle-based result
// retrieval.
package pool

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidpipe/internal/log"
	"vidpipe/internal/metrics"
	"vidpipe/internal/vperrors"
)

var (
	// ErrShutdown is returned by Submit after the pool has been shut down.
	ErrShutdown = fmt.Errorf("%w: worker pool is shut down", vperrors.ErrProcessing)

	// ErrQueueFull is returned by Submit when the internal job queue is at
	// capacity.
	ErrQueueFull = fmt.Errorf("%w: worker pool queue full", vperrors.ErrProcessing)

	// ErrDuplicateTask is returned when a task id is submitted twice.
	ErrDuplicateTask = fmt.Errorf("%w: duplicate task id", vperrors.ErrProcessing)
)

// Fn is a unit of work executed by the pool.
type Fn func() (any, error)

// handle tracks one submitted job. done is closed exactly once, when the
// job finishes, fails, or is cancelled.
type handle struct {
	done      chan struct{}
	result    any
	err       error
	started   bool
	cancelled bool
}

type job struct {
	id string
	fn Fn
	h  *handle
}

// Stats is a snapshot of pool counters.
type Stats struct {
	MaxWorkers     int  `json:"max_workers"`
	TotalTasks     int  `json:"total_tasks"`
	ActiveTasks    int  `json:"active_tasks"`
	PendingTasks   int  `json:"pending_tasks"`
	CompletedTasks int  `json:"completed_tasks"`
	CancelledTasks int  `json:"cancelled_tasks"`
	SubmittedCount int  `json:"submitted_count"`
	CompletedCount int  `json:"completed_count"`
	FailedCount    int  `json:"failed_count"`
	IsShutdown     bool `json:"is_shutdown"`
}

// Pool is a fixed set of workers draining an internal job channel. Results
// are retrieved by task id through the handle table.
type Pool struct {
	maxWorkers int
	jobs       chan job
	wg         sync.WaitGroup

	mu             sync.Mutex
	handles        map[string]*handle
	submittedCount int
	completedCount int
	failedCount    int
	shutdown       bool

	logger zerolog.Logger
	once   sync.Once
}

// Option customises pool construction.
type Option func(*config)

type config struct {
	maxWorkers int
	queueSize  int
}

// WithQueueSize bounds the internal job queue (default 4096).
func WithQueueSize(n int) Option {
	return func(c *config) { c.queueSize = n }
}

// New creates a worker pool. maxWorkers defaults to GOMAXPROCS when not
// positive. Workers start immediately.
func New(maxWorkers int, opts ...Option) *Pool {
	cfg := config{maxWorkers: maxWorkers, queueSize: 4096}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxWorkers <= 0 {
		cfg.maxWorkers = runtime.GOMAXPROCS(0)
	}
	if cfg.queueSize <= 0 {
		cfg.queueSize = 4096
	}

	p := &Pool{
		maxWorkers: cfg.maxWorkers,
		jobs:       make(chan job, cfg.queueSize),
		handles:    make(map[string]*handle),
		logger:     log.WithComponent("pool"),
	}
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Debug().Int("workers", p.maxWorkers).Msg("worker pool started")
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	p.mu.Lock()
	if j.h.cancelled {
		p.mu.Unlock()
		return
	}
	j.h.started = true
	p.mu.Unlock()

	metrics.PoolActiveWorkers.Inc()
	result, err := p.invoke(j)
	metrics.PoolActiveWorkers.Dec()

	p.mu.Lock()
	j.h.result = result
	j.h.err = err
	if err != nil {
		p.failedCount++
	} else {
		p.completedCount++
	}
	p.mu.Unlock()
	close(j.h.done)
}

// invoke runs the job function, converting panics into errors so a broken
// job cannot take down a worker.
func (p *Pool) invoke(j job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: job %s panicked: %v", vperrors.ErrProcessing, j.id, r)
			p.logger.Error().
				Str(log.FieldTaskID, j.id).
				Interface("panic", r).
				Msg("job panicked")
		}
	}()
	return j.fn()
}

// Submit schedules fn for execution under the given task id. Fails with
// ErrShutdown after Shutdown and ErrQueueFull when the job queue is at
// capacity.
func (p *Pool) Submit(taskID string, fn Fn) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return fmt.Errorf("submit %s: %w", taskID, ErrShutdown)
	}
	if _, exists := p.handles[taskID]; exists {
		p.mu.Unlock()
		return fmt.Errorf("submit %s: %w", taskID, ErrDuplicateTask)
	}
	h := &handle{done: make(chan struct{})}
	p.handles[taskID] = h
	p.submittedCount++
	p.mu.Unlock()

	select {
	case p.jobs <- job{id: taskID, fn: fn, h: h}:
	default:
		p.mu.Lock()
		delete(p.handles, taskID)
		p.submittedCount--
		p.mu.Unlock()
		return fmt.Errorf("submit %s: %w", taskID, ErrQueueFull)
	}

	p.logger.Debug().
		Str(log.FieldTaskID, taskID).
		Str(log.FieldEvent, "pool.submit").
		Msg("job submitted")
	return nil
}

// GetResult blocks up to timeout for the job's result. A non-positive
// timeout waits indefinitely. Returns false on an unknown id, timeout,
// cancellation, or job failure.
func (p *Pool) GetResult(taskID string, timeout time.Duration) (any, bool) {
	p.mu.Lock()
	h, ok := p.handles[taskID]
	p.mu.Unlock()
	if !ok {
		p.logger.Warn().Str(log.FieldTaskID, taskID).Msg("unknown task")
		return nil, false
	}

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-h.done:
		case <-timer.C:
			return nil, false
		}
	} else {
		<-h.done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if h.cancelled || h.err != nil {
		return nil, false
	}
	return h.result, true
}

// IsDone reports whether the job has reached a terminal state.
func (p *Pool) IsDone(taskID string) bool {
	p.mu.Lock()
	h, ok := p.handles[taskID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Cancel cancels a job that has not started executing yet. Started or
// finished jobs cannot be cancelled.
func (p *Pool) Cancel(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.handles[taskID]
	if !ok || h.started || h.cancelled {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
	}
	h.cancelled = true
	close(h.done)
	p.logger.Debug().Str(log.FieldTaskID, taskID).Msg("job cancelled")
	return true
}

// WaitAll blocks until every submitted job has finished, or the timeout
// elapses. A non-positive timeout waits indefinitely.
func (p *Pool) WaitAll(timeout time.Duration) bool {
	p.mu.Lock()
	pending := make([]*handle, 0, len(p.handles))
	for _, h := range p.handles {
		pending = append(pending, h)
	}
	p.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for _, h := range pending {
		select {
		case <-h.done:
		case <-deadline:
			return false
		}
	}
	return true
}

// ActiveCount returns the number of jobs that have not finished yet.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, h := range p.handles {
		select {
		case <-h.done:
		default:
			n++
		}
	}
	return n
}

// PendingCount returns the number of jobs not yet picked up by a worker.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, h := range p.handles {
		if h.started {
			continue
		}
		select {
		case <-h.done:
		default:
			n++
		}
	}
	return n
}

// GetStats returns a snapshot of the pool counters.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{
		MaxWorkers:     p.maxWorkers,
		TotalTasks:     len(p.handles),
		SubmittedCount: p.submittedCount,
		CompletedCount: p.completedCount,
		FailedCount:    p.failedCount,
		IsShutdown:     p.shutdown,
	}
	for _, h := range p.handles {
		done := false
		select {
		case <-h.done:
			done = true
		default:
		}
		switch {
		case h.cancelled:
			stats.CancelledTasks++
		case done:
			stats.CompletedTasks++
		case h.started:
			stats.ActiveTasks++
		default:
			stats.PendingTasks++
		}
	}
	return stats
}

// Shutdown stops accepting submissions and closes the job channel. With
// wait=true it blocks until all workers have drained and exited.
func (p *Pool) Shutdown(wait bool) {
	p.mu.Lock()
	already := p.shutdown
	p.shutdown = true
	p.mu.Unlock()
	if already {
		p.logger.Warn().Msg("worker pool already shut down")
		return
	}

	p.once.Do(func() { close(p.jobs) })
	if wait {
		p.wg.Wait()
	}
	p.logger.Info().Str(log.FieldEvent, "pool.shutdown").Msg("worker pool shut down")
}
