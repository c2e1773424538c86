// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"vidpipe/internal/api"
	"vidpipe/internal/cache"
	"vidpipe/internal/config"
	"vidpipe/internal/log"
	"vidpipe/internal/pipeline"
	"vidpipe/internal/pool"
	"vidpipe/internal/queue"
	"vidpipe/internal/results"
	"vidpipe/internal/stage"
	"vidpipe/internal/telemetry"
	"vidpipe/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	log.Configure(log.Config{
		Level:   "info",
		Service: "vidpipe",
		Version: version.Version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str(log.FieldPath, *configPath).
			Msg("failed to load configuration")
	}

	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Service: cfg.Log.Service,
		Version: version.Version,
		Pretty:  cfg.Log.Pretty,
	})

	if err := run(ctx, cfg, loader, *configPath, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, loader *config.Loader, configPath string, logger zerolog.Logger) error {
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "vidpipe",
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	store, err := newStore(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}

	orch, err := buildOrchestrator(cfg, store)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer orch.Shutdown()

	if cfg.Queue.Workers > 0 {
		if _, err := orch.StartQueueWorkers(ctx, cfg.Queue.Workers); err != nil {
			return fmt.Errorf("start queue workers: %w", err)
		}
	}

	apiServer := api.New(orch,
		api.WithVersion(version.Version),
		api.WithRateLimit(cfg.Server.RateLimit),
	)
	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	holder := config.NewHolder(cfg, loader, configPath)
	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort; startup survives a failed watcher.
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("config watcher not started")
	}
	defer holder.Stop()

	// SIGHUP triggers a manual reload.
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				logger.Info().Str(log.FieldEvent, "config.reload_signal").Msg("reloading config on SIGHUP")
				if err := holder.Reload(ctx); err != nil {
					logger.Warn().Err(err).Msg("config reload failed")
				}
			}
		}
	})

	// Reloads adjust the log level at runtime; structural changes need a
	// restart.
	g.Go(func() error {
		updates := make(chan config.Config, 1)
		holder.RegisterListener(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-updates:
				log.Configure(log.Config{Level: next.Log.Level})
			}
		}
	})

	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.Server.ListenAddr).
			Str(log.FieldEvent, "daemon.started").
			Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newStore builds the shared artifact store from the cache configuration.
func newStore(cfg config.Cache) (cache.Store, error) {
	if cfg.Backend == "redis" {
		store, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		}, log.WithComponent("cache.redis"))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := cache.NewLRU(cfg.MaxSize, cfg.TTL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// buildOrchestrator wires the four stage workers, queue, pool and result
// aggregator into the orchestrator.
func buildOrchestrator(cfg config.Config, store cache.Store) (*pipeline.Orchestrator, error) {
	downloadOpts := []stage.DownloaderOption{stage.WithDownloadStore(store)}
	if cfg.Stages.Download.RateLimit > 0 {
		burst := cfg.Stages.Download.RateBurst
		if burst <= 0 {
			burst = 1
		}
		downloadOpts = append(downloadOpts,
			stage.WithRateLimit(rate.Limit(cfg.Stages.Download.RateLimit), burst))
	}
	downloader, err := stage.NewDownloader(
		cfg.Storage.VideosDir,
		stage.NewYtDlpBackend(cfg.Stages.Download.Binary, cfg.Stages.Download.Timeout),
		downloadOpts...,
	)
	if err != nil {
		return nil, err
	}

	extractor, err := stage.NewExtractor(
		cfg.Storage.AudioDir,
		stage.NewFFmpegBackend(cfg.Stages.Extract.Binary, cfg.Stages.Extract.Timeout),
		stage.WithExtractStore(store),
		stage.WithAudioFormat(cfg.Stages.Extract.Format),
	)
	if err != nil {
		return nil, err
	}

	whisper := stage.NewWhisperBackend(cfg.Stages.Transcribe.Endpoint, cfg.Stages.Transcribe.APIKey)
	if cfg.Stages.Transcribe.Model != "" {
		whisper.Model = cfg.Stages.Transcribe.Model
	}
	transcriber := stage.NewTranscriber(whisper,
		stage.WithTranscriptStore(store),
		stage.WithLanguage(cfg.Stages.Transcribe.Language),
	)

	summarizerOpts := []stage.SummarizerOption{
		stage.WithSummaryStore(store),
		stage.WithMaxLength(cfg.Stages.Summarize.MaxLength),
		stage.WithContentType(stage.ContentType(cfg.Stages.Summarize.ContentType)),
	}
	if cfg.Stages.Summarize.Model != "" {
		summarizerOpts = append(summarizerOpts, stage.WithModel(cfg.Stages.Summarize.Model))
	}
	summarizer := stage.NewSummarizer(
		stage.NewChatBackend(cfg.Stages.Summarize.Endpoint, cfg.Stages.Summarize.APIKey),
		summarizerOpts...,
	)

	taskQueue, err := queue.New(cfg.Queue.MaxSize, queue.WithMaxRetries(cfg.Queue.MaxRetries))
	if err != nil {
		return nil, err
	}
	workerPool := pool.New(cfg.Pool.MaxWorkers, pool.WithQueueSize(cfg.Pool.QueueSize))

	aggregator, err := results.New(cfg.Storage.ResultsDir)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Deps{
		Download:   downloader,
		Extract:    extractor,
		Transcribe: transcriber,
		Summarize:  summarizer,
		Queue:      taskQueue,
		Pool:       workerPool,
		Results:    aggregator,
		Cache:      store,
		Prober:     downloader,
	}, pipeline.WithDequeueTimeout(cfg.Queue.DequeueTimeout))
}
