// SPDX-License-Identifier: MIT

package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidpipe/internal/log"
	"vidpipe/internal/media"
)

// YtDlpBackend fetches videos by shelling out to yt-dlp.
type YtDlpBackend struct {
	// Binary is the yt-dlp executable (default "yt-dlp").
	Binary string
	// Timeout bounds a single fetch or probe (default 10m).
	Timeout time.Duration

	logger zerolog.Logger
}

// NewYtDlpBackend creates a yt-dlp fetch back-end with defaults applied.
func NewYtDlpBackend(binary string, timeout time.Duration) *YtDlpBackend {
	if binary == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &YtDlpBackend{
		Binary:  binary,
		Timeout: timeout,
		logger:  log.WithComponent("backend.ytdlp"),
	}
}

// Fetch downloads the video into destDir under the given stem and returns
// the final file path as printed by yt-dlp.
func (b *YtDlpBackend) Fetch(ctx context.Context, url, destDir, stem string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	template := filepath.Join(destDir, stem+".%(ext)s")
	cmd := exec.CommandContext(ctx, b.Binary,
		"--no-progress",
		"-f", "best",
		"-o", template,
		"--print", "after_move:filepath",
		url,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%s not installed or not in PATH", b.Binary)
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("download timed out after %s", b.Timeout)
		}
		return "", fmt.Errorf("%s failed: %s", b.Binary, strings.TrimSpace(stderr.String()))
	}

	lines := strings.Fields(strings.TrimSpace(stdout.String()))
	if len(lines) == 0 {
		return "", fmt.Errorf("%s produced no output path", b.Binary)
	}
	path := lines[len(lines)-1]
	b.logger.Debug().Str(log.FieldURL, url).Str(log.FieldPath, path).Msg("fetch finished")
	return path, nil
}

// probeInfo is the subset of yt-dlp -J output the pipeline consumes.
type probeInfo struct {
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	UploadDate string  `json:"upload_date"`
}

// Probe asks yt-dlp for video metadata without downloading.
func (b *YtDlpBackend) Probe(ctx context.Context, url string) (media.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.Binary, "-J", "--no-download", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return media.Metadata{}, fmt.Errorf("%s not installed or not in PATH", b.Binary)
		}
		return media.Metadata{}, fmt.Errorf("%s probe failed: %s", b.Binary, strings.TrimSpace(stderr.String()))
	}

	var info probeInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return media.Metadata{}, fmt.Errorf("decode probe output: %w", err)
	}

	meta := media.Metadata{URL: url}
	if info.Title != "" {
		meta.Title = &info.Title
	}
	if info.Duration > 0 {
		duration := int(info.Duration)
		meta.Duration = &duration
	}
	if info.Uploader != "" {
		meta.Channel = &info.Uploader
	}
	if info.UploadDate != "" {
		meta.UploadDate = &info.UploadDate
	}
	return meta, nil
}
