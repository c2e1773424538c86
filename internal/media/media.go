// SPDX-License-Identifier: MIT

// Package media defines the data model carried through the pipeline:
// video metadata and the terminal processing result.
package media

import (
	"time"

	"vidpipe/internal/types"
)

// Metadata describes a video once its source has been probed. Only URL is
// required; the remaining fields are best-effort and may be absent.
type Metadata struct {
	URL        string         `json:"url"`
	Title      *string        `json:"title"`
	Duration   *int           `json:"duration"`
	Platform   types.Platform `json:"platform"`
	UploadDate *string        `json:"upload_date"`
	Channel    *string        `json:"channel"`
}

// ProcessingResult is the terminal artifact of a pipeline run. All fields
// are required; it is constructed once at summarize completion and is
// immutable afterwards.
type ProcessingResult struct {
	TaskID         string    `json:"task_id"`
	VideoMetadata  Metadata  `json:"video_metadata"`
	VideoPath      string    `json:"video_path"`
	AudioPath      string    `json:"audio_path"`
	Transcript     string    `json:"transcript"`
	Summary        string    `json:"summary"`
	ProcessingTime float64   `json:"processing_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResultSummary is the reduced projection of a ProcessingResult exposed by
// the orchestrator's summary endpoint.
type ResultSummary struct {
	TaskID           string  `json:"task_id"`
	VideoURL         string  `json:"video_url"`
	VideoTitle       *string `json:"video_title"`
	TranscriptLength int     `json:"transcript_length"`
	SummaryLength    int     `json:"summary_length"`
	ProcessingTime   float64 `json:"processing_time"`
	CreatedAt        string  `json:"created_at"`
}

// Summarize reduces the result to its summary projection.
func (r *ProcessingResult) Summarize() ResultSummary {
	return ResultSummary{
		TaskID:           r.TaskID,
		VideoURL:         r.VideoMetadata.URL,
		VideoTitle:       r.VideoMetadata.Title,
		TranscriptLength: len(r.Transcript),
		SummaryLength:    len(r.Summary),
		ProcessingTime:   r.ProcessingTime,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339Nano),
	}
}
