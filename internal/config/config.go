// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration with the precedence
// ENV > file > defaults. All environment keys carry the VIDPIPE_ prefix.
package config

import "time"

// Config is the full daemon configuration.
type Config struct {
	Log       Log       `yaml:"log"`
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Cache     Cache     `yaml:"cache"`
	Queue     Queue     `yaml:"queue"`
	Pool      Pool      `yaml:"pool"`
	Stages    Stages    `yaml:"stages"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Log configures the zerolog output.
type Log struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Pretty  bool   `yaml:"pretty"`
}

// Server configures the HTTP API.
type Server struct {
	ListenAddr      string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RateLimit caps requests per client IP per minute. 0 disables it.
	RateLimit int `yaml:"rate_limit"`
}

// Storage configures the artifact directories.
type Storage struct {
	VideosDir  string `yaml:"videos_dir"`
	AudioDir   string `yaml:"audio_dir"`
	ResultsDir string `yaml:"results_dir"`
}

// Cache configures the shared artifact store.
type Cache struct {
	// Backend selects the store implementation: "memory" or "redis".
	Backend string        `yaml:"backend"`
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// Queue configures the task queue and its consumers.
type Queue struct {
	MaxSize        int           `yaml:"max_size"`
	MaxRetries     int           `yaml:"max_retries"`
	Workers        int           `yaml:"workers"`
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`

	// RetryBackoff is accepted for forward compatibility; retries are
	// currently re-enqueued immediately.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// Pool configures the worker pool.
type Pool struct {
	MaxWorkers int `yaml:"max_workers"`
	QueueSize  int `yaml:"queue_size"`
}

// Stages configures the four stage back-ends.
type Stages struct {
	Download   Download   `yaml:"download"`
	Extract    Extract    `yaml:"extract"`
	Transcribe Transcribe `yaml:"transcribe"`
	Summarize  Summarize  `yaml:"summarize"`

	// ProcessingTimeout is accepted for forward compatibility; stages
	// currently bound their own back-end timeouts.
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
}

// Download configures the yt-dlp back-end.
type Download struct {
	Binary    string        `yaml:"binary"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	RateBurst int           `yaml:"rate_burst"`
}

// Extract configures the ffmpeg back-end.
type Extract struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
	Format  string        `yaml:"format"`
}

// Transcribe configures the transcription API back-end.
type Transcribe struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// Summarize configures the summarization API back-end.
type Summarize struct {
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	ContentType string `yaml:"content_type"`
	MaxLength   int    `yaml:"max_length"`
}

// Telemetry configures trace export.
type Telemetry struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Log: Log{
			Level:   "info",
			Service: "vidpipe",
		},
		Server: Server{
			ListenAddr:      ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       120,
		},
		Storage: Storage{
			VideosDir:  "data/videos",
			AudioDir:   "data/audio",
			ResultsDir: "data/results",
		},
		Cache: Cache{
			Backend: "memory",
			MaxSize: 1024,
			TTL:     0,
		},
		Queue: Queue{
			MaxSize:        256,
			MaxRetries:     3,
			Workers:        2,
			DequeueTimeout: time.Second,
		},
		Pool: Pool{
			MaxWorkers: 8,
			QueueSize:  4096,
		},
		Stages: Stages{
			Download: Download{
				Binary:  "yt-dlp",
				Timeout: 10 * time.Minute,
			},
			Extract: Extract{
				Binary:  "ffmpeg",
				Timeout: 5 * time.Minute,
				Format:  "mp3",
			},
			Transcribe: Transcribe{
				Model:    "whisper-1",
				Language: "auto",
			},
			Summarize: Summarize{
				ContentType: "general",
				MaxLength:   500,
			},
		},
		Telemetry: Telemetry{
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}
