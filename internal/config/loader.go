// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"vidpipe/internal/vperrors"
)

// Loader loads configuration with the precedence ENV > file > defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty configPath means ENV-only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load builds the effective configuration: defaults, then the YAML file
// when configured, then environment overrides, then validation.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.mergeFile(&cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	l.mergeEnv(&cfg)

	for _, dir := range []*string{&cfg.Storage.VideosDir, &cfg.Storage.AudioDir, &cfg.Storage.ResultsDir} {
		if abs, err := filepath.Abs(*dir); err == nil {
			*dir = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeFile overlays the YAML file onto cfg. Unknown keys are rejected.
func (l *Loader) mergeFile(cfg *Config) error {
	raw, err := os.ReadFile(l.configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", vperrors.ErrProcessing, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: parse %s: %w", vperrors.ErrProcessing, l.configPath, err)
	}
	return nil
}

// mergeEnv overlays VIDPIPE_ environment variables onto cfg.
func (l *Loader) mergeEnv(cfg *Config) {
	cfg.Log.Level = ParseString("VIDPIPE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = ParseString("VIDPIPE_LOG_SERVICE", cfg.Log.Service)
	cfg.Log.Pretty = ParseBool("VIDPIPE_LOG_PRETTY", cfg.Log.Pretty)

	cfg.Server.ListenAddr = ParseString("VIDPIPE_LISTEN", cfg.Server.ListenAddr)
	cfg.Server.ReadTimeout = ParseDuration("VIDPIPE_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = ParseDuration("VIDPIPE_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = ParseDuration("VIDPIPE_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.RateLimit = ParseInt("VIDPIPE_RATE_LIMIT", cfg.Server.RateLimit)

	cfg.Storage.VideosDir = ParseString("VIDPIPE_VIDEOS_DIR", cfg.Storage.VideosDir)
	cfg.Storage.AudioDir = ParseString("VIDPIPE_AUDIO_DIR", cfg.Storage.AudioDir)
	cfg.Storage.ResultsDir = ParseString("VIDPIPE_RESULTS_DIR", cfg.Storage.ResultsDir)

	cfg.Cache.Backend = ParseString("VIDPIPE_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.MaxSize = ParseInt("VIDPIPE_CACHE_MAX_SIZE", cfg.Cache.MaxSize)
	cfg.Cache.TTL = ParseDuration("VIDPIPE_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.RedisAddr = ParseString("VIDPIPE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString("VIDPIPE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt("VIDPIPE_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Queue.MaxSize = ParseInt("VIDPIPE_QUEUE_MAX_SIZE", cfg.Queue.MaxSize)
	cfg.Queue.MaxRetries = ParseInt("VIDPIPE_QUEUE_MAX_RETRIES", cfg.Queue.MaxRetries)
	cfg.Queue.Workers = ParseInt("VIDPIPE_QUEUE_WORKERS", cfg.Queue.Workers)
	cfg.Queue.DequeueTimeout = ParseDuration("VIDPIPE_QUEUE_DEQUEUE_TIMEOUT", cfg.Queue.DequeueTimeout)
	cfg.Queue.RetryBackoff = ParseDuration("VIDPIPE_QUEUE_RETRY_BACKOFF", cfg.Queue.RetryBackoff)

	cfg.Pool.MaxWorkers = ParseInt("VIDPIPE_POOL_MAX_WORKERS", cfg.Pool.MaxWorkers)
	cfg.Pool.QueueSize = ParseInt("VIDPIPE_POOL_QUEUE_SIZE", cfg.Pool.QueueSize)

	cfg.Stages.Download.Binary = ParseString("VIDPIPE_YTDLP_BIN", cfg.Stages.Download.Binary)
	cfg.Stages.Download.Timeout = ParseDuration("VIDPIPE_DOWNLOAD_TIMEOUT", cfg.Stages.Download.Timeout)
	cfg.Stages.Download.RateLimit = ParseFloat("VIDPIPE_DOWNLOAD_RATE_LIMIT", cfg.Stages.Download.RateLimit)
	cfg.Stages.Download.RateBurst = ParseInt("VIDPIPE_DOWNLOAD_RATE_BURST", cfg.Stages.Download.RateBurst)

	cfg.Stages.Extract.Binary = ParseString("VIDPIPE_FFMPEG_BIN", cfg.Stages.Extract.Binary)
	cfg.Stages.Extract.Timeout = ParseDuration("VIDPIPE_EXTRACT_TIMEOUT", cfg.Stages.Extract.Timeout)
	cfg.Stages.Extract.Format = ParseString("VIDPIPE_AUDIO_FORMAT", cfg.Stages.Extract.Format)

	cfg.Stages.Transcribe.Endpoint = ParseString("VIDPIPE_TRANSCRIBE_ENDPOINT", cfg.Stages.Transcribe.Endpoint)
	cfg.Stages.Transcribe.APIKey = ParseString("VIDPIPE_TRANSCRIBE_API_KEY", cfg.Stages.Transcribe.APIKey)
	cfg.Stages.Transcribe.Model = ParseString("VIDPIPE_TRANSCRIBE_MODEL", cfg.Stages.Transcribe.Model)
	cfg.Stages.Transcribe.Language = ParseString("VIDPIPE_TRANSCRIBE_LANGUAGE", cfg.Stages.Transcribe.Language)

	cfg.Stages.Summarize.Endpoint = ParseString("VIDPIPE_SUMMARIZE_ENDPOINT", cfg.Stages.Summarize.Endpoint)
	cfg.Stages.Summarize.APIKey = ParseString("VIDPIPE_SUMMARIZE_API_KEY", cfg.Stages.Summarize.APIKey)
	cfg.Stages.Summarize.Model = ParseString("VIDPIPE_SUMMARIZE_MODEL", cfg.Stages.Summarize.Model)
	cfg.Stages.Summarize.ContentType = ParseString("VIDPIPE_SUMMARIZE_CONTENT_TYPE", cfg.Stages.Summarize.ContentType)
	cfg.Stages.Summarize.MaxLength = ParseInt("VIDPIPE_SUMMARIZE_MAX_LENGTH", cfg.Stages.Summarize.MaxLength)

	cfg.Stages.ProcessingTimeout = ParseDuration("VIDPIPE_PROCESSING_TIMEOUT", cfg.Stages.ProcessingTimeout)

	cfg.Telemetry.Enabled = ParseBool("VIDPIPE_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = ParseString("VIDPIPE_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Environment = ParseString("VIDPIPE_OTEL_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = ParseFloat("VIDPIPE_OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
