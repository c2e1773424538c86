// SPDX-License-Identifier: MIT

package stage

import (
	"fmt"

	"vidpipe/internal/types"
	"vidpipe/internal/vperrors"
)

var (
	// ErrDownload marks failures of the download stage.
	ErrDownload = fmt.Errorf("%w: download failed", vperrors.ErrProcessing)

	// ErrExtraction marks failures of the audio extraction stage.
	ErrExtraction = fmt.Errorf("%w: audio extraction failed", vperrors.ErrProcessing)

	// ErrTranscription marks failures of the transcription stage.
	ErrTranscription = fmt.Errorf("%w: transcription failed", vperrors.ErrProcessing)

	// ErrSummarization marks failures of the summarization stage.
	ErrSummarization = fmt.Errorf("%w: summarization failed", vperrors.ErrProcessing)

	// ErrEmptyTranscript is returned before any back-end call when the
	// summarizer input is empty or whitespace.
	ErrEmptyTranscript = fmt.Errorf("%w: transcript must not be empty", vperrors.ErrProcessing)

	// ErrUnknownModel is returned for model names outside the closed table.
	ErrUnknownModel = fmt.Errorf("%w: unsupported model", ErrSummarization)
)

// Error is a stage-typed failure. Err wraps the matching stage sentinel, so
// errors.Is works against both the sentinel and the processing supertype.
type Error struct {
	Stage types.TaskType
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// sentinelFor maps a task type to its stage sentinel.
func sentinelFor(stage types.TaskType) error {
	switch stage {
	case types.TaskDownload:
		return ErrDownload
	case types.TaskExtract:
		return ErrExtraction
	case types.TaskTranscribe:
		return ErrTranscription
	case types.TaskSummarize:
		return ErrSummarization
	default:
		return vperrors.ErrProcessing
	}
}

// failf builds a stage-typed error wrapping the stage sentinel.
func failf(stage types.TaskType, format string, args ...any) *Error {
	args = append([]any{sentinelFor(stage)}, args...)
	return &Error{Stage: stage, Err: fmt.Errorf("%w: "+format, args...)}
}

// fail wraps a back-end error as a stage-typed failure.
func fail(stage types.TaskType, err error) *Error {
	return &Error{Stage: stage, Err: fmt.Errorf("%w: %w", sentinelFor(stage), err)}
}
