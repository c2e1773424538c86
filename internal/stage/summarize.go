// SPDX-License-Identifier: MIT

package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidpipe/internal/cache"
	"vidpipe/internal/log"
	"vidpipe/internal/types"
)

// SummaryRequest carries one summarization call to the back-end.
type SummaryRequest struct {
	Transcript string
	Model      string
	MaxLength  int
}

// SummarizeBackend turns a transcript into a summary.
type SummarizeBackend interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// SummaryOptions tune a single Generate call. Zero values fall back to the
// summarizer defaults.
type SummaryOptions struct {
	// Model overrides automatic selection when non-empty.
	Model       string
	ContentType ContentType
	MaxLength   int
}

// Summarizer is the summarize stage: transcript in, summary out. Model
// choice is delegated to the ModelSelector unless the caller pins one.
type Summarizer struct {
	backend   SummarizeBackend
	selector  *ModelSelector
	maxLength int

	// model pins a default model; empty means automatic selection.
	model   string
	content ContentType

	artifacts artifacts
	logger    zerolog.Logger
}

// SummarizerOption customises summarizer construction.
type SummarizerOption func(*Summarizer)

// WithSummaryStore wires a cache store for summaries.
func WithSummaryStore(store cache.Store) SummarizerOption {
	return func(s *Summarizer) { s.artifacts.store = store }
}

// WithMaxLength sets the default summary length bound in characters
// (default 500).
func WithMaxLength(n int) SummarizerOption {
	return func(s *Summarizer) { s.maxLength = n }
}

// WithModel pins a default model, bypassing automatic selection. Unknown
// models surface as ErrUnknownModel at generation time.
func WithModel(model string) SummarizerOption {
	return func(s *Summarizer) { s.model = model }
}

// WithContentType sets the default content type used by automatic model
// selection (default general).
func WithContentType(ct ContentType) SummarizerOption {
	return func(s *Summarizer) { s.content = ct }
}

// NewSummarizer creates the summarize stage worker.
func NewSummarizer(backend SummarizeBackend, opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{
		backend:   backend,
		selector:  NewModelSelector(),
		maxLength: 500,
		logger:    log.WithComponent("stage.summarize"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage identifies this worker as the summarize stage.
func (s *Summarizer) Stage() types.TaskType { return types.TaskSummarize }

// Execute summarizes the transcript with automatic model selection and the
// default length bound.
func (s *Summarizer) Execute(ctx context.Context, transcript string) (string, error) {
	return s.Generate(ctx, transcript, SummaryOptions{})
}

// Generate summarizes the transcript under the given options.
func (s *Summarizer) Generate(ctx context.Context, transcript string, opts SummaryOptions) (string, error) {
	start := time.Now()
	summary, err := s.generate(ctx, transcript, opts)
	observe(types.TaskSummarize, start, err)
	return summary, err
}

func (s *Summarizer) generate(ctx context.Context, transcript string, opts SummaryOptions) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("summarize: %w", ErrEmptyTranscript)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = s.contentType()
	}
	preference := opts.Model
	if preference == "" {
		preference = s.model
	}
	model, err := s.selector.Select(transcript, contentType, preference)
	if err != nil {
		return "", &Error{Stage: types.TaskSummarize, Err: err}
	}
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = s.maxLength
	}

	key := cache.SummaryKey(transcript, model)
	if s.artifacts.store != nil {
		if summary, ok := s.artifacts.store.Get(key); ok {
			s.logger.Info().
				Str(log.FieldModel, model).
				Int("length", len(summary)).
				Msg("summary served from cache")
			return summary, nil
		}
	}

	summary, err := s.backend.Summarize(ctx, SummaryRequest{
		Transcript: transcript,
		Model:      model,
		MaxLength:  maxLength,
	})
	if err != nil {
		return "", fail(types.TaskSummarize, err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", failf(types.TaskSummarize, "back-end returned an empty summary")
	}

	if s.artifacts.store != nil {
		s.artifacts.store.Set(key, summary)
	}
	s.logger.Info().
		Str(log.FieldModel, model).
		Int("length", len(summary)).
		Str(log.FieldEvent, "stage.summarize.done").
		Msg("summary generated")
	return summary, nil
}

// IsCached reports whether a summary is cached for the transcript/model
// pair. An empty model means the table default used by SummaryKey.
func (s *Summarizer) IsCachedFor(transcript, model string) bool {
	if s.artifacts.store == nil {
		return false
	}
	return s.artifacts.store.Contains(cache.SummaryKey(transcript, model))
}

// IsCached reports whether a summary is cached under the default model
// selection for the transcript.
func (s *Summarizer) IsCached(transcript string) bool {
	model, err := s.selector.Select(transcript, s.contentType(), s.model)
	if err != nil {
		return false
	}
	return s.IsCachedFor(transcript, model)
}

// GetCached returns the cached summary under the default model selection,
// if any.
func (s *Summarizer) GetCached(transcript string) (string, bool) {
	if s.artifacts.store == nil {
		return "", false
	}
	model, err := s.selector.Select(transcript, s.contentType(), s.model)
	if err != nil {
		return "", false
	}
	return s.artifacts.store.Get(cache.SummaryKey(transcript, model))
}

// DeleteCached drops the cached summary under the default model selection.
func (s *Summarizer) DeleteCached(transcript string) {
	if s.artifacts.store == nil {
		return
	}
	model, err := s.selector.Select(transcript, s.contentType(), s.model)
	if err != nil {
		return
	}
	s.artifacts.store.Delete(cache.SummaryKey(transcript, model))
}

func (s *Summarizer) contentType() ContentType {
	if s.content == "" {
		return ContentGeneral
	}
	return s.content
}
