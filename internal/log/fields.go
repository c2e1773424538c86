// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldPipelineID = "pipeline_id"
	FieldTaskID     = "task_id"
	FieldWorkerID   = "worker_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldStatus    = "status"
	FieldRetry     = "retry_count"

	// Media fields
	FieldURL      = "url"
	FieldPlatform = "platform"
	FieldModel    = "model"

	// Path fields
	FieldPath      = "path"
	FieldVideoPath = "video_path"
	FieldAudioPath = "audio_path"

	// Cache fields
	FieldCacheKey = "cache_key"
)
