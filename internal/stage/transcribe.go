// SPDX-License-Identifier: MIT

package stage

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidpipe/internal/cache"
	"vidpipe/internal/log"
	"vidpipe/internal/types"
)

// TranscribeBackend turns an audio file into transcript text. language is
// "auto" when the caller wants the back-end to detect it.
type TranscribeBackend interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// Transcriber is the transcribe stage: audio file path in, transcript out.
type Transcriber struct {
	backend   TranscribeBackend
	language  string
	artifacts artifacts
	logger    zerolog.Logger
}

// TranscriberOption customises transcriber construction.
type TranscriberOption func(*Transcriber)

// WithTranscriptStore wires a cache store for transcripts.
func WithTranscriptStore(store cache.Store) TranscriberOption {
	return func(t *Transcriber) { t.artifacts.store = store }
}

// WithLanguage sets the transcription language (default "auto").
func WithLanguage(language string) TranscriberOption {
	return func(t *Transcriber) { t.language = language }
}

// NewTranscriber creates the transcribe stage worker.
func NewTranscriber(backend TranscribeBackend, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{
		backend:  backend,
		language: "auto",
		logger:   log.WithComponent("stage.transcribe"),
	}
	t.artifacts.key = cache.TranscriptKey
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stage identifies this worker as the transcribe stage.
func (t *Transcriber) Stage() types.TaskType { return types.TaskTranscribe }

// Execute transcribes the audio file at audioPath using the configured
// language.
func (t *Transcriber) Execute(ctx context.Context, audioPath string) (string, error) {
	return t.Generate(ctx, audioPath, t.language)
}

// Generate transcribes the audio file at audioPath in the given language.
func (t *Transcriber) Generate(ctx context.Context, audioPath, language string) (string, error) {
	start := time.Now()
	transcript, err := t.generate(ctx, audioPath, language)
	observe(types.TaskTranscribe, start, err)
	return transcript, err
}

func (t *Transcriber) generate(ctx context.Context, audioPath, language string) (string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return "", failf(types.TaskTranscribe, "audio file not found: %s", audioPath)
	}

	if transcript, ok := t.artifacts.lookup(audioPath); ok {
		t.logger.Info().
			Str(log.FieldAudioPath, audioPath).
			Int("length", len(transcript)).
			Msg("transcript served from cache")
		return transcript, nil
	}

	transcript, err := t.backend.Transcribe(ctx, audioPath, language)
	if err != nil {
		return "", fail(types.TaskTranscribe, err)
	}
	if strings.TrimSpace(transcript) == "" {
		return "", failf(types.TaskTranscribe, "back-end returned an empty transcript")
	}

	t.artifacts.put(audioPath, transcript)
	t.logger.Info().
		Str(log.FieldAudioPath, audioPath).
		Int("length", len(transcript)).
		Str(log.FieldEvent, "stage.transcribe.done").
		Msg("transcript generated")
	return transcript, nil
}

// IsCached reports whether a transcript is cached for audioPath.
func (t *Transcriber) IsCached(audioPath string) bool {
	return t.artifacts.cached(audioPath)
}

// GetCached returns the cached transcript, if any.
func (t *Transcriber) GetCached(audioPath string) (string, bool) {
	return t.artifacts.lookup(audioPath)
}

// DeleteCached drops the cached transcript.
func (t *Transcriber) DeleteCached(audioPath string) {
	t.artifacts.drop(audioPath)
}
