// SPDX-License-Identifier: MIT

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	pipelineIDKey ctxKey = "pipeline_id"
	taskIDKey     ctxKey = "task_id"
)

// ContextWithPipelineID stores the provided pipeline ID in the context.
func ContextWithPipelineID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, pipelineIDKey, id)
}

// ContextWithTaskID stores the provided queue task ID in the context.
func ContextWithTaskID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// PipelineIDFromContext extracts the pipeline ID from context if present.
func PipelineIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(pipelineIDKey).(string); ok {
		return v
	}
	return ""
}

// TaskIDFromContext extracts the queue task ID from context if present.
func TaskIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(taskIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the base logger enriched with any pipeline identifiers
// carried by the context.
func FromContext(ctx context.Context) zerolog.Logger {
	builder := logger().With()
	if id := PipelineIDFromContext(ctx); id != "" {
		builder = builder.Str(FieldPipelineID, id)
	}
	if id := TaskIDFromContext(ctx); id != "" {
		builder = builder.Str(FieldTaskID, id)
	}
	return builder.Logger()
}

// WithComponentFromContext combines FromContext with a component annotation.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := FromContext(ctx).With().Str(FieldComponent, component).Logger()
	return l
}
