// SPDX-License-Identifier: MIT

package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vidpipe/internal/cache"
	"vidpipe/internal/log"
	"vidpipe/internal/media"
	"vidpipe/internal/types"
	"vidpipe/internal/vperrors"
)

// FetchBackend retrieves a video and probes its metadata. Fetch writes the
// file into destDir using stem as the extension-less file name and returns
// the final path.
type FetchBackend interface {
	Fetch(ctx context.Context, url, destDir, stem string) (string, error)
	Probe(ctx context.Context, url string) (media.Metadata, error)
}

// Downloader is the download stage: URL in, local video file path out.
// Besides the cache store it honors a filesystem-level cache, any file in
// the videos dir whose stem is the MD5 of the URL counts as a hit.
type Downloader struct {
	dir       string
	backend   FetchBackend
	limiter   *rate.Limiter
	artifacts artifacts
	logger    zerolog.Logger
}

// DownloaderOption customises downloader construction.
type DownloaderOption func(*Downloader)

// WithDownloadStore wires a cache store for download results.
func WithDownloadStore(store cache.Store) DownloaderOption {
	return func(d *Downloader) { d.artifacts.store = store }
}

// WithRateLimit throttles back-end fetches to r requests per second with
// the given burst.
func WithRateLimit(r rate.Limit, burst int) DownloaderOption {
	return func(d *Downloader) { d.limiter = rate.NewLimiter(r, burst) }
}

// NewDownloader creates the download stage worker. dir is created when
// missing.
func NewDownloader(dir string, backend FetchBackend, opts ...DownloaderOption) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create videos dir: %w", vperrors.ErrProcessing, err)
	}
	d := &Downloader{
		dir:     dir,
		backend: backend,
		logger:  log.WithComponent("stage.download"),
	}
	d.artifacts.key = cache.DownloadKey
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Stage identifies this worker as the download stage.
func (d *Downloader) Stage() types.TaskType { return types.TaskDownload }

// Execute downloads the video at url and returns the local file path.
func (d *Downloader) Execute(ctx context.Context, url string) (string, error) {
	start := time.Now()
	path, err := d.execute(ctx, url)
	observe(types.TaskDownload, start, err)
	return path, err
}

func (d *Downloader) execute(ctx context.Context, url string) (string, error) {
	platform := types.DetectPlatform(url)
	if platform == types.PlatformUnknown {
		return "", failf(types.TaskDownload, "unsupported platform: %s", url)
	}
	d.logger.Debug().
		Str(log.FieldURL, url).
		Str(log.FieldPlatform, platform.String()).
		Msg("platform detected")

	if path, ok := d.artifacts.lookup(url); ok {
		d.logger.Info().Str(log.FieldURL, url).Str(log.FieldPath, path).Msg("download served from cache")
		return path, nil
	}
	if path, ok := d.cachedFile(url); ok {
		d.artifacts.put(url, path)
		d.logger.Info().Str(log.FieldURL, url).Str(log.FieldPath, path).Msg("download served from disk")
		return path, nil
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return "", fail(types.TaskDownload, err)
		}
	}

	path, err := d.backend.Fetch(ctx, url, d.dir, cache.Fingerprint(url))
	if err != nil {
		return "", fail(types.TaskDownload, err)
	}
	d.artifacts.put(url, path)
	d.logger.Info().
		Str(log.FieldURL, url).
		Str(log.FieldPath, path).
		Str(log.FieldEvent, "stage.download.done").
		Msg("video downloaded")
	return path, nil
}

// Info probes video metadata without downloading. Probe failures degrade to
// URL-only metadata, they never fail the pipeline.
func (d *Downloader) Info(ctx context.Context, url string) media.Metadata {
	platform := types.DetectPlatform(url)
	meta, err := d.backend.Probe(ctx, url)
	if err != nil {
		d.logger.Warn().Err(err).Str(log.FieldURL, url).Msg("metadata probe failed")
		return media.Metadata{URL: url, Platform: platform}
	}
	meta.URL = url
	meta.Platform = platform
	return meta
}

// IsCached reports whether the URL's video is available without a fetch.
func (d *Downloader) IsCached(url string) bool {
	if d.artifacts.cached(url) {
		return true
	}
	_, ok := d.cachedFile(url)
	return ok
}

// GetCached returns the cached video path, if any.
func (d *Downloader) GetCached(url string) (string, bool) {
	if path, ok := d.artifacts.lookup(url); ok {
		return path, true
	}
	return d.cachedFile(url)
}

// DeleteCached drops the cache entry and removes matching files on disk.
func (d *Downloader) DeleteCached(url string) {
	d.artifacts.drop(url)
	stem := cache.Fingerprint(url)
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		d.logger.Warn().Err(err).Msg("videos dir scan failed")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !matchesStem(entry.Name(), stem) {
			continue
		}
		path := filepath.Join(d.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			d.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("cached video removal failed")
			continue
		}
		d.logger.Info().Str(log.FieldPath, path).Msg("cached video removed")
	}
}

// cachedFile returns the first file in the videos dir whose stem equals
// the URL's fingerprint.
func (d *Downloader) cachedFile(url string) (string, bool) {
	stem := cache.Fingerprint(url)
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.IsDir() && matchesStem(entry.Name(), stem) {
			return filepath.Join(d.dir, entry.Name()), true
		}
	}
	return "", false
}

// matchesStem reports whether a file name minus its extension equals stem,
// so "<stem>.mp4" matches but "<stem>extra.mp4" does not.
func matchesStem(name, stem string) bool {
	return strings.TrimSuffix(name, filepath.Ext(name)) == stem
}
