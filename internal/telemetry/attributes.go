// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Pipeline attributes
	PipelineIDKey       = "pipeline.id"
	PipelineURLKey      = "pipeline.url"
	PipelinePlatformKey = "pipeline.platform"
	PipelineModeKey     = "pipeline.mode"

	// Stage attributes
	StageNameKey     = "stage.name"
	StageCachedKey   = "stage.cached"
	StageDurationKey = "stage.duration_ms"

	// Queue attributes
	QueueTaskIDKey = "queue.task_id"
	QueueRetryKey  = "queue.retry_count"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// PipelineAttributes creates pipeline-level span attributes.
func PipelineAttributes(pipelineID, url, mode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PipelineIDKey, pipelineID),
		attribute.String(PipelineURLKey, url),
		attribute.String(PipelineModeKey, mode),
	}
}

// StageAttributes creates stage-level span attributes.
func StageAttributes(stage string, cached bool, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StageNameKey, stage),
		attribute.Bool(StageCachedKey, cached),
		attribute.Int64(StageDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
