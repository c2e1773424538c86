// SPDX-License-Identifier: MIT

// Package pipeline coordinates the four processing stages over the cache,
// task queue, worker pool and result store.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vidpipe/internal/cache"
	"vidpipe/internal/log"
	"vidpipe/internal/media"
	"vidpipe/internal/metrics"
	"vidpipe/internal/pool"
	"vidpipe/internal/queue"
	"vidpipe/internal/results"
	"vidpipe/internal/stage"
	"vidpipe/internal/telemetry"
	"vidpipe/internal/types"
	"vidpipe/internal/vperrors"
)

// MetadataProber supplies best-effort video metadata. The production
// implementation is the download stage's Info probe.
type MetadataProber interface {
	Info(ctx context.Context, url string) media.Metadata
}

// Deps carries the orchestrator's collaborators. Download, Extract,
// Transcribe, Summarize and Results are required; the rest are optional.
type Deps struct {
	Download   stage.Worker
	Extract    stage.Worker
	Transcribe stage.Worker
	Summarize  stage.Worker

	Queue   *queue.Queue
	Pool    *pool.Pool
	Results *results.Aggregator

	// Cache is the shared artifact store, referenced for stats only.
	Cache cache.Store

	// Prober populates video metadata; nil degrades to URL-only metadata.
	Prober MetadataProber

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// pipelineState is the per-pipeline metadata record.
type pipelineState struct {
	videoURL  string
	startTime time.Time
	endTime   time.Time
	status    types.PipelineStatus
	err       string

	// queueTasks maps stage names to their queue task ids (queue mode).
	queueTasks map[string]string

	// Artifacts accumulated across queue-mode handlers.
	videoPath  string
	audioPath  string
	transcript string
}

// Status is the externally visible snapshot of a pipeline's metadata.
type Status struct {
	PipelineID     string               `json:"task_id"`
	VideoURL       string               `json:"video_url"`
	Status         types.PipelineStatus `json:"status"`
	StartTime      time.Time            `json:"start_time"`
	EndTime        *time.Time           `json:"end_time,omitempty"`
	Error          string               `json:"error,omitempty"`
	ProcessingTime *float64             `json:"processing_time,omitempty"`
	QueueTasks     map[string]string    `json:"queue_tasks,omitempty"`
}

// Orchestrator drives URLs through download, extract, transcribe and
// summarize, synchronously or via the task queue.
type Orchestrator struct {
	deps Deps

	mu      sync.Mutex
	results map[string]*media.ProcessingResult
	states  map[string]*pipelineState

	stop     chan struct{}
	stopOnce sync.Once

	tracer         trace.Tracer
	logger         zerolog.Logger
	now            func() time.Time
	dequeueTimeout time.Duration
}

// Option customises orchestrator construction.
type Option func(*Orchestrator)

// WithDequeueTimeout sets how long queue workers block per dequeue
// (default 1s).
func WithDequeueTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.dequeueTimeout = d }
}

// New creates an orchestrator. The four stage workers and the result
// aggregator are required.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Download == nil, deps.Extract == nil, deps.Transcribe == nil, deps.Summarize == nil:
		return nil, fmt.Errorf("%w: all four stage workers are required", vperrors.ErrProcessing)
	case deps.Results == nil:
		return nil, fmt.Errorf("%w: result aggregator is required", vperrors.ErrProcessing)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	o := &Orchestrator{
		deps:           deps,
		results:        make(map[string]*media.ProcessingResult),
		states:         make(map[string]*pipelineState),
		stop:           make(chan struct{}),
		tracer:         telemetry.Tracer("vidpipe/pipeline"),
		logger:         log.WithComponent("orchestrator"),
		now:            deps.Clock,
		dequeueTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ProcessVideo runs the full pipeline for url and returns the pipeline id.
// With useQueue=false the four stages run inline and any stage error is
// returned; with useQueue=true the download task is enqueued and the
// pipeline completes asynchronously.
func (o *Orchestrator) ProcessVideo(ctx context.Context, url string, useQueue bool) (string, error) {
	pipelineID := uuid.NewString()
	o.initState(pipelineID, url)

	o.logger.Info().
		Str(log.FieldPipelineID, pipelineID).
		Str(log.FieldURL, url).
		Bool("use_queue", useQueue).
		Str(log.FieldEvent, "pipeline.start").
		Msg("processing video")

	if useQueue {
		if err := o.enqueuePipeline(ctx, pipelineID, url); err != nil {
			o.failPipeline(pipelineID, err)
			return pipelineID, err
		}
		return pipelineID, nil
	}
	if err := o.runSync(ctx, pipelineID, url); err != nil {
		return pipelineID, err
	}
	return pipelineID, nil
}

// runSync executes the four stages inline and records the terminal state.
func (o *Orchestrator) runSync(ctx context.Context, pipelineID, url string) error {
	ctx = log.ContextWithPipelineID(ctx, pipelineID)
	ctx, span := o.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(telemetry.PipelineAttributes(pipelineID, url, "sync")...))
	defer span.End()

	start := o.now()
	err := func() error {
		videoPath, err := o.runStage(ctx, o.deps.Download, pipelineID, url)
		if err != nil {
			return err
		}
		audioPath, err := o.runStage(ctx, o.deps.Extract, pipelineID, videoPath)
		if err != nil {
			return err
		}
		transcript, err := o.runStage(ctx, o.deps.Transcribe, pipelineID, audioPath)
		if err != nil {
			return err
		}
		summary, err := o.runStage(ctx, o.deps.Summarize, pipelineID, transcript)
		if err != nil {
			return err
		}

		meta := o.probeMetadata(ctx, url)
		elapsed := o.now().Sub(start).Seconds()
		o.finishPipeline(pipelineID, meta, videoPath, audioPath, transcript, summary, elapsed)
		return nil
	}()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		o.failPipeline(pipelineID, err)
		return fmt.Errorf("pipeline %s: %w", pipelineID, err)
	}
	return nil
}

// runStage serves the stage from cache when possible, executing the worker
// only on a miss. The split exists so logs distinguish "served from cache"
// from "executed".
func (o *Orchestrator) runStage(ctx context.Context, w stage.Worker, pipelineID, input string) (string, error) {
	name := w.Stage().String()
	ctx, span := o.tracer.Start(ctx, "stage."+name)
	defer span.End()
	start := o.now()

	if output, ok := w.GetCached(input); ok {
		span.SetAttributes(telemetry.StageAttributes(name, true, 0)...)
		o.logger.Info().
			Str(log.FieldPipelineID, pipelineID).
			Str(log.FieldStage, name).
			Msg("stage served from cache")
		return output, nil
	}

	output, err := w.Execute(ctx, input)
	durationMS := o.now().Sub(start).Milliseconds()
	span.SetAttributes(telemetry.StageAttributes(name, false, durationMS)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		return "", err
	}
	o.logger.Info().
		Str(log.FieldPipelineID, pipelineID).
		Str(log.FieldStage, name).
		Int64("duration_ms", durationMS).
		Msg("stage executed")
	return output, nil
}

// ProcessBatch runs each URL through a synchronous pipeline in order.
// Failed URLs yield an empty id placeholder at their position.
func (o *Orchestrator) ProcessBatch(ctx context.Context, urls []string) []string {
	ids := make([]string, 0, len(urls))
	for _, url := range urls {
		id, err := o.ProcessVideo(ctx, url, false)
		if err != nil {
			o.logger.Error().Err(err).Str(log.FieldURL, url).Msg("batch entry failed")
			ids = append(ids, "")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ProcessBatchConcurrent runs one isolated synchronous pipeline per URL on
// the worker pool and waits for all of them. Failures surface in the
// pipeline states, never in the returned id list.
func (o *Orchestrator) ProcessBatchConcurrent(ctx context.Context, urls []string) []string {
	if o.deps.Pool == nil {
		return o.ProcessBatch(ctx, urls)
	}

	ids := make([]string, len(urls))
	jobIDs := make([]string, 0, len(urls))
	for i, url := range urls {
		pipelineID := uuid.NewString()
		ids[i] = pipelineID
		o.initState(pipelineID, url)

		jobID := "pipeline-" + pipelineID
		u := url
		if err := o.deps.Pool.Submit(jobID, func() (any, error) {
			// runSync records failures in the pipeline state itself.
			return nil, o.runSync(ctx, pipelineID, u)
		}); err != nil {
			o.logger.Error().Err(err).Str(log.FieldPipelineID, pipelineID).Msg("batch submission failed")
			o.failPipeline(pipelineID, err)
			continue
		}
		jobIDs = append(jobIDs, jobID)
	}

	for _, jobID := range jobIDs {
		o.deps.Pool.GetResult(jobID, 0)
	}
	return ids
}

// SubmitBatchToQueue enqueues one queue-mode pipeline per URL. Failed
// submissions yield an empty id placeholder.
func (o *Orchestrator) SubmitBatchToQueue(ctx context.Context, urls []string) []string {
	ids := make([]string, 0, len(urls))
	for _, url := range urls {
		id, err := o.ProcessVideo(ctx, url, true)
		if err != nil {
			o.logger.Error().Err(err).Str(log.FieldURL, url).Msg("queue submission failed")
			ids = append(ids, "")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// probeMetadata resolves video metadata, degrading to URL-only metadata
// without a prober.
func (o *Orchestrator) probeMetadata(ctx context.Context, url string) media.Metadata {
	if o.deps.Prober != nil {
		return o.deps.Prober.Info(ctx, url)
	}
	return media.Metadata{URL: url, Platform: types.DetectPlatform(url)}
}

// finishPipeline stores the terminal result and flips the state to
// completed.
func (o *Orchestrator) finishPipeline(pipelineID string, meta media.Metadata, videoPath, audioPath, transcript, summary string, elapsed float64) {
	result := o.deps.Results.Aggregate(pipelineID, meta, videoPath, audioPath, transcript, summary, elapsed)
	if err := o.deps.Results.Save(result); err != nil {
		o.logger.Error().Err(err).Str(log.FieldPipelineID, pipelineID).Msg("result persistence failed")
	}

	o.mu.Lock()
	o.results[pipelineID] = result
	if state, ok := o.states[pipelineID]; ok {
		state.status = types.PipelineCompleted
		state.endTime = o.now()
	}
	o.mu.Unlock()

	metrics.PipelinesCompleted.WithLabelValues(types.PipelineCompleted.String()).Inc()
	metrics.PipelineDuration.Observe(elapsed)
	o.logger.Info().
		Str(log.FieldPipelineID, pipelineID).
		Float64("processing_time", elapsed).
		Str(log.FieldEvent, "pipeline.completed").
		Msg("pipeline completed")
}

// failPipeline flips the state to failed and records the error.
func (o *Orchestrator) failPipeline(pipelineID string, err error) {
	o.mu.Lock()
	if state, ok := o.states[pipelineID]; ok && !state.status.IsTerminal() {
		state.status = types.PipelineFailed
		state.err = err.Error()
		state.endTime = o.now()
	}
	o.mu.Unlock()

	metrics.PipelinesCompleted.WithLabelValues(types.PipelineFailed.String()).Inc()
	o.logger.Error().
		Err(err).
		Str(log.FieldPipelineID, pipelineID).
		Str(log.FieldEvent, "pipeline.failed").
		Msg("pipeline failed")
}

func (o *Orchestrator) initState(pipelineID, url string) {
	o.mu.Lock()
	o.states[pipelineID] = &pipelineState{
		videoURL:   url,
		startTime:  o.now(),
		status:     types.PipelineProcessing,
		queueTasks: make(map[string]string),
	}
	o.mu.Unlock()
}

// GetResult returns the ProcessingResult for a completed pipeline.
func (o *Orchestrator) GetResult(pipelineID string) (*media.ProcessingResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result, ok := o.results[pipelineID]
	return result, ok
}

// GetStatus returns the pipeline's metadata snapshot.
func (o *Orchestrator) GetStatus(pipelineID string) (Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.states[pipelineID]
	if !ok {
		return Status{}, false
	}
	status := Status{
		PipelineID: pipelineID,
		VideoURL:   state.videoURL,
		Status:     state.status,
		StartTime:  state.startTime,
		Error:      state.err,
	}
	if !state.endTime.IsZero() {
		end := state.endTime
		status.EndTime = &end
		elapsed := end.Sub(state.startTime).Seconds()
		status.ProcessingTime = &elapsed
	}
	if len(state.queueTasks) > 0 {
		status.QueueTasks = make(map[string]string, len(state.queueTasks))
		for k, v := range state.queueTasks {
			status.QueueTasks[k] = v
		}
	}
	return status, true
}

// GetCacheStats returns the shared artifact store's counters.
func (o *Orchestrator) GetCacheStats() cache.Stats {
	if o.deps.Cache == nil {
		return cache.Stats{}
	}
	return o.deps.Cache.Stats()
}

// GetQueueStats returns the task queue's counters.
func (o *Orchestrator) GetQueueStats() queue.Stats {
	if o.deps.Queue == nil {
		return queue.Stats{}
	}
	return o.deps.Queue.GetStats()
}

// GetPoolStats returns the worker pool's counters.
func (o *Orchestrator) GetPoolStats() pool.Stats {
	if o.deps.Pool == nil {
		return pool.Stats{}
	}
	return o.deps.Pool.GetStats()
}

// ResultStats returns the aggregator's storage counters.
func (o *Orchestrator) ResultStats() results.Stats {
	return o.deps.Results.GetStats()
}

// Shutdown stops queue workers, drains the pool and clears the queue.
func (o *Orchestrator) Shutdown() {
	o.stopOnce.Do(func() { close(o.stop) })
	if o.deps.Pool != nil {
		o.deps.Pool.Shutdown(true)
	}
	if o.deps.Queue != nil {
		o.deps.Queue.Clear()
	}
	o.logger.Info().Str(log.FieldEvent, "pipeline.shutdown").Msg("orchestrator shut down")
}
