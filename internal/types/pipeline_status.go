// SPDX-License-Identifier: MIT

package types

// PipelineStatus represents the lifecycle state of a whole pipeline run.
type PipelineStatus string

const (
	PipelineProcessing PipelineStatus = "processing"
	PipelineCompleted  PipelineStatus = "completed"
	PipelineFailed     PipelineStatus = "failed"
)

// String returns the string representation of the pipeline status.
func (s PipelineStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the pipeline reached a final state.
func (s PipelineStatus) IsTerminal() bool {
	return s == PipelineCompleted || s == PipelineFailed
}
