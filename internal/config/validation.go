// SPDX-License-Identifier: MIT

package config

import (
	"fmt"

	"vidpipe/internal/vperrors"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = fmt.Errorf("%w: invalid configuration", vperrors.ErrProcessing)

// Validate checks the effective configuration for contradictions.
func Validate(cfg Config) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("%w: server.listen must not be empty", ErrInvalidConfig)
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("%w: server.rate_limit must be >= 0", ErrInvalidConfig)
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("%w: cache.redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, cfg.Cache.Backend)
	}
	if cfg.Cache.MaxSize <= 0 {
		return fmt.Errorf("%w: cache.max_size must be > 0", ErrInvalidConfig)
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache.ttl must be >= 0", ErrInvalidConfig)
	}

	if cfg.Queue.MaxSize <= 0 {
		return fmt.Errorf("%w: queue.max_size must be > 0", ErrInvalidConfig)
	}
	if cfg.Queue.MaxRetries < 0 {
		return fmt.Errorf("%w: queue.max_retries must be >= 0", ErrInvalidConfig)
	}
	if cfg.Queue.Workers < 0 {
		return fmt.Errorf("%w: queue.workers must be >= 0", ErrInvalidConfig)
	}
	if cfg.Queue.DequeueTimeout <= 0 {
		return fmt.Errorf("%w: queue.dequeue_timeout must be > 0", ErrInvalidConfig)
	}

	if cfg.Pool.MaxWorkers <= 0 {
		return fmt.Errorf("%w: pool.max_workers must be > 0", ErrInvalidConfig)
	}
	if cfg.Queue.Workers >= cfg.Pool.MaxWorkers {
		return fmt.Errorf("%w: queue.workers (%d) must leave pool capacity free (pool.max_workers %d)",
			ErrInvalidConfig, cfg.Queue.Workers, cfg.Pool.MaxWorkers)
	}

	if cfg.Stages.Download.RateLimit < 0 {
		return fmt.Errorf("%w: stages.download.rate_limit must be >= 0", ErrInvalidConfig)
	}
	if cfg.Stages.Extract.Format == "" {
		return fmt.Errorf("%w: stages.extract.format must not be empty", ErrInvalidConfig)
	}
	if cfg.Stages.Summarize.MaxLength <= 0 {
		return fmt.Errorf("%w: stages.summarize.max_length must be > 0", ErrInvalidConfig)
	}

	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("%w: telemetry.sampling_rate must be within [0, 1]", ErrInvalidConfig)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("%w: telemetry.endpoint is required when telemetry is enabled", ErrInvalidConfig)
	}
	return nil
}
