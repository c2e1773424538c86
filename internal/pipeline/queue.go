// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"vidpipe/internal/log"
	"vidpipe/internal/queue"
	"vidpipe/internal/telemetry"
	"vidpipe/internal/types"
	"vidpipe/internal/vperrors"
)

// enqueuePipeline starts a queue-mode pipeline by enqueueing its download
// task. The remaining stages chain through the task handlers.
func (o *Orchestrator) enqueuePipeline(ctx context.Context, pipelineID, url string) error {
	if o.deps.Queue == nil {
		return fmt.Errorf("%w: no task queue configured", vperrors.ErrProcessing)
	}
	_, span := o.tracer.Start(ctx, "pipeline.enqueue",
		trace.WithAttributes(telemetry.PipelineAttributes(pipelineID, url, "queue")...))
	defer span.End()

	taskID, err := o.deps.Queue.Enqueue(types.TaskDownload, map[string]string{
		"parent_task_id": pipelineID,
		"video_url":      url,
	})
	if err != nil {
		return fmt.Errorf("enqueue pipeline %s: %w", pipelineID, err)
	}
	o.recordQueueTask(pipelineID, types.TaskDownload, taskID)

	o.logger.Info().
		Str(log.FieldPipelineID, pipelineID).
		Str(log.FieldTaskID, taskID).
		Str(log.FieldEvent, "pipeline.enqueued").
		Msg("download task enqueued")
	return nil
}

// StartQueueWorkers submits n long-running queue consumers to the worker
// pool. Each loops dequeue and ProcessQueueTask until the context is
// cancelled or the orchestrator shuts down.
func (o *Orchestrator) StartQueueWorkers(ctx context.Context, n int) ([]string, error) {
	if o.deps.Queue == nil || o.deps.Pool == nil {
		return nil, fmt.Errorf("%w: queue workers need both a queue and a pool", vperrors.ErrProcessing)
	}

	workerIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		workerID := fmt.Sprintf("queue-worker-%d", i)
		if err := o.deps.Pool.Submit(workerID, func() (any, error) {
			o.queueWorkerLoop(ctx, workerID)
			return nil, nil
		}); err != nil {
			return workerIDs, fmt.Errorf("start %s: %w", workerID, err)
		}
		workerIDs = append(workerIDs, workerID)
	}
	o.logger.Info().
		Int("workers", len(workerIDs)).
		Str(log.FieldEvent, "pipeline.workers_started").
		Msg("queue workers started")
	return workerIDs, nil
}

func (o *Orchestrator) queueWorkerLoop(ctx context.Context, workerID string) {
	logger := o.logger.With().Str(log.FieldWorkerID, workerID).Logger()
	logger.Debug().Msg("queue worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("queue worker stopped")
			return
		case <-o.stop:
			logger.Debug().Msg("queue worker stopped")
			return
		default:
		}

		task, ok := o.deps.Queue.Dequeue(o.dequeueTimeout)
		if !ok {
			continue
		}
		if err := o.ProcessQueueTask(ctx, task); err != nil {
			logger.Error().Err(err).Str(log.FieldTaskID, task.ID).Msg("queue task failed")
		}
	}
}

// ProcessQueueTask dispatches one dequeued task to its stage handler. On
// handler failure the queue task is marked failed (triggering retry); when
// the retry budget is exhausted the parent pipeline fails with it.
func (o *Orchestrator) ProcessQueueTask(ctx context.Context, task queue.Task) error {
	parentID := task.InputData["parent_task_id"]
	ctx = log.ContextWithPipelineID(ctx, parentID)

	var err error
	switch task.Type {
	case types.TaskDownload:
		err = o.handleDownloadTask(ctx, task, parentID)
	case types.TaskExtract:
		err = o.handleExtractTask(ctx, task, parentID)
	case types.TaskTranscribe:
		err = o.handleTranscribeTask(ctx, task, parentID)
	case types.TaskSummarize:
		err = o.handleSummarizeTask(ctx, task, parentID)
	default:
		err = fmt.Errorf("%w: unknown task type %q", vperrors.ErrProcessing, task.Type)
	}

	if err != nil {
		if markErr := o.deps.Queue.MarkFailed(task.ID, err.Error()); markErr != nil {
			o.logger.Error().Err(markErr).Str(log.FieldTaskID, task.ID).Msg("mark failed rejected")
		}
		o.handleRetryExhaustion(task.ID, parentID, err)
		return err
	}
	if markErr := o.deps.Queue.MarkCompleted(task.ID); markErr != nil {
		o.logger.Error().Err(markErr).Str(log.FieldTaskID, task.ID).Msg("mark completed rejected")
	}
	return nil
}

// handleRetryExhaustion fails the parent pipeline once the queue task has
// terminally failed, recording the last stage error.
func (o *Orchestrator) handleRetryExhaustion(taskID, parentID string, err error) {
	status, ok := o.deps.Queue.Status(taskID)
	if !ok || status.Status != types.TaskFailed {
		return
	}
	o.logger.Error().
		Str(log.FieldTaskID, taskID).
		Str(log.FieldPipelineID, parentID).
		Int(log.FieldRetry, status.RetryCount).
		Str(log.FieldEvent, "pipeline.retries_exhausted").
		Msg("queue task exhausted its retries")
	o.failPipeline(parentID, err)
}

func (o *Orchestrator) handleDownloadTask(ctx context.Context, task queue.Task, parentID string) error {
	url := task.InputData["video_url"]
	videoPath, err := o.runStage(ctx, o.deps.Download, parentID, url)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if state, ok := o.states[parentID]; ok {
		state.videoPath = videoPath
	}
	o.mu.Unlock()

	nextID, err := o.deps.Queue.Enqueue(types.TaskExtract, map[string]string{
		"parent_task_id": parentID,
		"video_path":     videoPath,
	})
	if err != nil {
		return fmt.Errorf("chain extract: %w", err)
	}
	o.recordQueueTask(parentID, types.TaskExtract, nextID)
	return nil
}

func (o *Orchestrator) handleExtractTask(ctx context.Context, task queue.Task, parentID string) error {
	videoPath := task.InputData["video_path"]
	audioPath, err := o.runStage(ctx, o.deps.Extract, parentID, videoPath)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if state, ok := o.states[parentID]; ok {
		state.audioPath = audioPath
	}
	o.mu.Unlock()

	nextID, err := o.deps.Queue.Enqueue(types.TaskTranscribe, map[string]string{
		"parent_task_id": parentID,
		"audio_path":     audioPath,
	})
	if err != nil {
		return fmt.Errorf("chain transcribe: %w", err)
	}
	o.recordQueueTask(parentID, types.TaskTranscribe, nextID)
	return nil
}

func (o *Orchestrator) handleTranscribeTask(ctx context.Context, task queue.Task, parentID string) error {
	audioPath := task.InputData["audio_path"]
	transcript, err := o.runStage(ctx, o.deps.Transcribe, parentID, audioPath)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if state, ok := o.states[parentID]; ok {
		state.transcript = transcript
	}
	o.mu.Unlock()

	nextID, err := o.deps.Queue.Enqueue(types.TaskSummarize, map[string]string{
		"parent_task_id": parentID,
		"transcript":     transcript,
	})
	if err != nil {
		return fmt.Errorf("chain summarize: %w", err)
	}
	o.recordQueueTask(parentID, types.TaskSummarize, nextID)
	return nil
}

func (o *Orchestrator) handleSummarizeTask(ctx context.Context, task queue.Task, parentID string) error {
	transcript := task.InputData["transcript"]
	summary, err := o.runStage(ctx, o.deps.Summarize, parentID, transcript)
	if err != nil {
		return err
	}

	o.mu.Lock()
	state, ok := o.states[parentID]
	var url, videoPath, audioPath string
	var elapsed float64
	if ok {
		url = state.videoURL
		videoPath = state.videoPath
		audioPath = state.audioPath
		elapsed = o.now().Sub(state.startTime).Seconds()
	}
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown pipeline %s", vperrors.ErrProcessing, parentID)
	}

	meta := o.probeMetadata(ctx, url)
	o.finishPipeline(parentID, meta, videoPath, audioPath, transcript, summary, elapsed)
	return nil
}

func (o *Orchestrator) recordQueueTask(pipelineID string, stage types.TaskType, taskID string) {
	o.mu.Lock()
	if state, ok := o.states[pipelineID]; ok {
		state.queueTasks[stage.String()] = taskID
	}
	o.mu.Unlock()
}
