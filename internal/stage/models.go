// SPDX-License-Identifier: MIT

package stage

import (
	"fmt"
	"unicode/utf8"
)

// ContentType steers model selection for summaries.
type ContentType string

const (
	ContentGeneral       ContentType = "general"
	ContentTechnical     ContentType = "technical"
	ContentNews          ContentType = "news"
	ContentEntertainment ContentType = "entertainment"
)

// ModelInfo describes one entry of the closed model table.
type ModelInfo struct {
	Name      string  `json:"name"`
	MaxTokens int     `json:"max_tokens"`
	CostPer1K float64 `json:"cost_per_1k"`
	Tier      string  `json:"tier"`
}

var modelTable = map[string]ModelInfo{
	"gpt-3.5-turbo": {Name: "gpt-3.5-turbo", MaxTokens: 4096, CostPer1K: 0.0015, Tier: "light"},
	"gpt-4":         {Name: "gpt-4", MaxTokens: 8192, CostPer1K: 0.03, Tier: "standard"},
	"gpt-4-turbo":   {Name: "gpt-4-turbo", MaxTokens: 128000, CostPer1K: 0.01, Tier: "advanced"},
}

// Transcript length thresholds in characters.
const (
	shortThreshold  = 1000
	mediumThreshold = 5000
	longThreshold   = 10000
)

// ModelSelector picks a summarization model from transcript length and
// content type. A user preference short-circuits the policy but must name
// a model from the table.
type ModelSelector struct{}

// NewModelSelector creates a model selector.
func NewModelSelector() *ModelSelector { return &ModelSelector{} }

// Select returns the model to use for the given transcript.
func (s *ModelSelector) Select(transcript string, contentType ContentType, preference string) (string, error) {
	if preference != "" {
		if _, ok := modelTable[preference]; !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownModel, preference)
		}
		return preference, nil
	}

	length := utf8.RuneCountInString(transcript)
	switch contentType {
	case ContentTechnical:
		return technicalModel(length), nil
	case ContentNews:
		return newsModel(length), nil
	case ContentEntertainment:
		return entertainmentModel(length), nil
	default:
		return generalModel(length), nil
	}
}

func generalModel(length int) string {
	switch {
	case length < shortThreshold:
		return "gpt-3.5-turbo"
	case length < mediumThreshold:
		return "gpt-4"
	default:
		return "gpt-4-turbo"
	}
}

// Technical content skips the light tier entirely.
func technicalModel(length int) string {
	if length < shortThreshold {
		return "gpt-4"
	}
	return "gpt-4-turbo"
}

func newsModel(length int) string {
	if length < mediumThreshold {
		return "gpt-3.5-turbo"
	}
	return "gpt-4"
}

func entertainmentModel(length int) string {
	if length < longThreshold {
		return "gpt-3.5-turbo"
	}
	return "gpt-4"
}

// Info returns the table entry for the given model name.
func (s *ModelSelector) Info(name string) (ModelInfo, error) {
	info, ok := modelTable[name]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return info, nil
}
