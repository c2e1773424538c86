// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// TaskType identifies which pipeline stage a queue task belongs to.
type TaskType string

const (
	TaskDownload   TaskType = "download"
	TaskExtract    TaskType = "extract"
	TaskTranscribe TaskType = "transcribe"
	TaskSummarize  TaskType = "summarize"
)

// String returns the string representation of the task type.
func (t TaskType) String() string {
	return string(t)
}

// IsValid checks whether the task type is one of the defined constants.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskDownload, TaskExtract, TaskTranscribe, TaskSummarize:
		return true
	default:
		return false
	}
}

// Next returns the stage that follows this one in the pipeline, or "" for
// the final stage.
func (t TaskType) Next() TaskType {
	switch t {
	case TaskDownload:
		return TaskExtract
	case TaskExtract:
		return TaskTranscribe
	case TaskTranscribe:
		return TaskSummarize
	default:
		return ""
	}
}

// MarshalJSON implements json.Marshaler for TaskType.
func (t TaskType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

// UnmarshalJSON implements json.Unmarshaler for TaskType.
func (t *TaskType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	typ := TaskType(str)
	if !typ.IsValid() {
		return fmt.Errorf("invalid task type: %q", str)
	}
	*t = typ
	return nil
}

// AllTaskTypes returns the four pipeline stages in execution order.
func AllTaskTypes() []TaskType {
	return []TaskType{TaskDownload, TaskExtract, TaskTranscribe, TaskSummarize}
}
