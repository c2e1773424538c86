// SPDX-License-Identifier: MIT

package stage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidpipe/internal/cache"
	"vidpipe/internal/log"
	"vidpipe/internal/types"
	"vidpipe/internal/vperrors"
	"vidpipe/internal/watchdog"
)

// ExtractBackend turns a video file into an audio file at audioPath.
type ExtractBackend interface {
	Extract(ctx context.Context, videoPath, audioPath string) error
}

// FFmpegBackend extracts the audio stream by shelling out to ffmpeg. A
// progress watchdog aborts runs that never start or stop making progress
// before the overall timeout fires.
type FFmpegBackend struct {
	// Binary is the ffmpeg executable (default "ffmpeg").
	Binary string
	// Timeout bounds a single extraction (default 5m).
	Timeout time.Duration
	// StartTimeout bounds the wait for the first progress record
	// (default 30s).
	StartTimeout time.Duration
	// StallTimeout bounds the gap between progress records (default 60s).
	StallTimeout time.Duration
}

// NewFFmpegBackend creates an ffmpeg extract back-end with defaults applied.
func NewFFmpegBackend(binary string, timeout time.Duration) *FFmpegBackend {
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &FFmpegBackend{
		Binary:       binary,
		Timeout:      timeout,
		StartTimeout: 30 * time.Second,
		StallTimeout: time.Minute,
	}
}

// Extract copies the audio stream of videoPath into audioPath.
func (b *FFmpegBackend) Extract(ctx context.Context, videoPath, audioPath string) error {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.Binary,
		"-i", videoPath,
		"-q:a", "0",
		"-map", "a",
		"-progress", "pipe:1",
		"-nostats",
		"-y",
		audioPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach progress pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%s not installed or not in PATH", b.Binary)
		}
		return fmt.Errorf("start %s: %w", b.Binary, err)
	}

	dog := watchdog.New(b.StartTimeout, b.StallTimeout)
	watchErr := make(chan error, 1)
	go func() { watchErr <- dog.Run(ctx) }()
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			dog.ParseLine(scanner.Text())
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- cmd.Wait() }()

	select {
	case err := <-watchErr:
		if err != nil {
			_ = cmd.Process.Kill()
			<-runErr
			return fmt.Errorf("extraction stalled (state %d)", dog.State())
		}
		err = <-runErr
		return b.runResult(ctx, err, &stderr)
	case err := <-runErr:
		return b.runResult(ctx, err, &stderr)
	}
}

func (b *FFmpegBackend) runResult(ctx context.Context, err error, stderr *bytes.Buffer) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("extraction timed out after %s", b.Timeout)
	}
	return fmt.Errorf("%s failed: %s", b.Binary, strings.TrimSpace(stderr.String()))
}

// Extractor is the extract stage: video file path in, audio file path out.
type Extractor struct {
	dir       string
	format    string
	backend   ExtractBackend
	artifacts artifacts
	logger    zerolog.Logger
}

// ExtractorOption customises extractor construction.
type ExtractorOption func(*Extractor)

// WithExtractStore wires a cache store for extraction results.
func WithExtractStore(store cache.Store) ExtractorOption {
	return func(e *Extractor) { e.artifacts.store = store }
}

// WithAudioFormat sets the output audio format (default mp3).
func WithAudioFormat(format string) ExtractorOption {
	return func(e *Extractor) { e.format = format }
}

// NewExtractor creates the extract stage worker. dir is created when
// missing.
func NewExtractor(dir string, backend ExtractBackend, opts ...ExtractorOption) (*Extractor, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create audio dir: %w", vperrors.ErrProcessing, err)
	}
	e := &Extractor{
		dir:     dir,
		format:  "mp3",
		backend: backend,
		logger:  log.WithComponent("stage.extract"),
	}
	e.artifacts.key = cache.ExtractKey
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Stage identifies this worker as the extract stage.
func (e *Extractor) Stage() types.TaskType { return types.TaskExtract }

// Execute extracts the audio stream of videoPath and returns the audio
// file path.
func (e *Extractor) Execute(ctx context.Context, videoPath string) (string, error) {
	start := time.Now()
	path, err := e.execute(ctx, videoPath)
	observe(types.TaskExtract, start, err)
	return path, err
}

func (e *Extractor) execute(ctx context.Context, videoPath string) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", failf(types.TaskExtract, "video file not found: %s", videoPath)
	}

	if path, ok := e.artifacts.lookup(videoPath); ok {
		e.logger.Info().
			Str(log.FieldVideoPath, videoPath).
			Str(log.FieldAudioPath, path).
			Msg("audio served from cache")
		return path, nil
	}

	audioPath := filepath.Join(e.dir, cache.Fingerprint(videoPath)+"."+e.format)
	if err := e.backend.Extract(ctx, videoPath, audioPath); err != nil {
		return "", fail(types.TaskExtract, err)
	}

	e.artifacts.put(videoPath, audioPath)
	e.logger.Info().
		Str(log.FieldVideoPath, videoPath).
		Str(log.FieldAudioPath, audioPath).
		Str(log.FieldEvent, "stage.extract.done").
		Msg("audio extracted")
	return audioPath, nil
}

// IsCached reports whether an extraction result is cached for videoPath.
func (e *Extractor) IsCached(videoPath string) bool {
	return e.artifacts.cached(videoPath)
}

// GetCached returns the cached audio path, if any.
func (e *Extractor) GetCached(videoPath string) (string, bool) {
	return e.artifacts.lookup(videoPath)
}

// DeleteCached drops the cached extraction result.
func (e *Extractor) DeleteCached(videoPath string) {
	e.artifacts.drop(videoPath)
}
