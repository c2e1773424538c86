// SPDX-License-Identifier: MIT

// Package types provides type-safe enumerations shared across the pipeline.
//
// This package centralizes typed constants and state enums to prevent
// string-based bugs and enable exhaustive switch statements.
package types

import (
	"encoding/json"
	"fmt"
)

// TaskStatus represents the current state of a queue task.
type TaskStatus string

// Task status constants define all possible states of a queue task.
const (
	// TaskPending indicates the task is queued but not yet started.
	TaskPending TaskStatus = "pending"

	// TaskRunning indicates the task is currently executing.
	TaskRunning TaskStatus = "running"

	// TaskCompleted indicates the task finished successfully.
	TaskCompleted TaskStatus = "completed"

	// TaskFailed indicates the task exhausted its retries and terminated.
	TaskFailed TaskStatus = "failed"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid checks whether the task status is one of the defined constants.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// IsTerminal checks whether the task status represents a final state.
// A task in a terminal state will not transition to another state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransitionTo checks whether this status can transition to the target.
//
// Valid transitions:
//   - Pending → Running
//   - Running → Completed, Failed, Pending (re-enqueue on retry)
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case TaskPending:
		return target == TaskRunning
	case TaskRunning:
		return target == TaskCompleted || target == TaskFailed || target == TaskPending
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler for TaskStatus.
func (s TaskStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler for TaskStatus.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status := TaskStatus(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid task status: %q", str)
	}
	*s = status
	return nil
}

// ParseTaskStatus parses a string into a TaskStatus, returning an error if invalid.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid task status: %q (valid: pending, running, completed, failed)", s)
	}
	return status, nil
}
