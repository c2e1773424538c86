// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidpipe/internal/cache"
	"vidpipe/internal/media"
	"vidpipe/internal/pool"
	"vidpipe/internal/queue"
	"vidpipe/internal/results"
	"vidpipe/internal/stage"
	"vidpipe/internal/types"
)

// fetchStub writes the URL into the fetched file so downstream stubs can
// key behavior off it. failures>0 makes the next fetches fail.
type fetchStub struct {
	calls    atomic.Int32
	failures atomic.Int32
}

func (s *fetchStub) Fetch(_ context.Context, url, destDir, stem string) (string, error) {
	s.calls.Add(1)
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return "", errors.New("fetch refused")
	}
	path := filepath.Join(destDir, stem+".mp4")
	if err := os.WriteFile(path, []byte(url), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (s *fetchStub) Probe(context.Context, string) (media.Metadata, error) {
	return media.Metadata{}, nil
}

// extractStub copies the video file content into the audio file.
type extractStub struct {
	calls atomic.Int32
	err   error
}

func (s *extractStub) Extract(_ context.Context, videoPath, audioPath string) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	content, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	return os.WriteFile(audioPath, content, 0o600)
}

// transcribeStub returns fixed text, failing when the audio content
// contains failMarker.
type transcribeStub struct {
	calls      atomic.Int32
	text       string
	failMarker string
}

func (s *transcribeStub) Transcribe(_ context.Context, audioPath, _ string) (string, error) {
	s.calls.Add(1)
	content, err := os.ReadFile(audioPath)
	if err != nil {
		return "", err
	}
	if s.failMarker != "" && strings.Contains(string(content), s.failMarker) {
		return "", errors.New("transcription backend refused")
	}
	return s.text, nil
}

type summarizeStub struct {
	calls atomic.Int32
	text  string
	last  atomic.Pointer[stage.SummaryRequest]
}

func (s *summarizeStub) Summarize(_ context.Context, req stage.SummaryRequest) (string, error) {
	s.calls.Add(1)
	s.last.Store(&req)
	return s.text, nil
}

type testEnv struct {
	orch       *Orchestrator
	store      cache.Store
	fetch      *fetchStub
	extract    *extractStub
	transcribe *transcribeStub
	summarize  *summarizeStub
	queue      *queue.Queue
	pool       *pool.Pool
	aggr       *results.Aggregator
}

func newEnv(t *testing.T, queueOpts ...queue.Option) *testEnv {
	t.Helper()

	store, err := cache.NewLRU(128, 0)
	require.NoError(t, err)

	env := &testEnv{
		store:      store,
		fetch:      &fetchStub{},
		extract:    &extractStub{},
		transcribe: &transcribeStub{text: "hello world"},
		summarize:  &summarizeStub{text: "hi"},
	}

	downloader, err := stage.NewDownloader(t.TempDir(), env.fetch, stage.WithDownloadStore(store))
	require.NoError(t, err)
	extractor, err := stage.NewExtractor(t.TempDir(), env.extract, stage.WithExtractStore(store))
	require.NoError(t, err)
	transcriber := stage.NewTranscriber(env.transcribe, stage.WithTranscriptStore(store))
	summarizer := stage.NewSummarizer(env.summarize, stage.WithSummaryStore(store))

	env.queue, err = queue.New(64, queueOpts...)
	require.NoError(t, err)
	env.pool = pool.New(4)
	env.aggr, err = results.New(t.TempDir())
	require.NoError(t, err)

	env.orch, err = New(Deps{
		Download:   downloader,
		Extract:    extractor,
		Transcribe: transcriber,
		Summarize:  summarizer,
		Queue:      env.queue,
		Pool:       env.pool,
		Results:    env.aggr,
		Cache:      store,
		Prober:     downloader,
	}, WithDequeueTimeout(20*time.Millisecond))
	require.NoError(t, err)

	t.Cleanup(env.orch.Shutdown)
	return env
}

func TestOrchestrator_RequiresWorkersAndAggregator(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestOrchestrator_SyncPipelineColdCache(t *testing.T) {
	env := newEnv(t)
	const url = "https://www.youtube.com/watch?v=abc"

	pid, err := env.orch.ProcessVideo(context.Background(), url, false)
	require.NoError(t, err)

	result, ok := env.orch.GetResult(pid)
	require.True(t, ok)
	assert.Equal(t, pid, result.TaskID)
	assert.Equal(t, url, result.VideoMetadata.URL)
	assert.Equal(t, types.PlatformYouTube, result.VideoMetadata.Platform)
	assert.FileExists(t, result.VideoPath)
	assert.FileExists(t, result.AudioPath)
	assert.Equal(t, "hello world", result.Transcript)
	assert.Equal(t, "hi", result.Summary)
	assert.GreaterOrEqual(t, result.ProcessingTime, 0.0)

	// Every back-end ran exactly once; nothing was served from cache.
	assert.Equal(t, int32(1), env.fetch.calls.Load())
	assert.Equal(t, int32(1), env.extract.calls.Load())
	assert.Equal(t, int32(1), env.transcribe.calls.Load())
	assert.Equal(t, int32(1), env.summarize.calls.Load())
	assert.Zero(t, env.orch.GetCacheStats().Hits)

	status, ok := env.orch.GetStatus(pid)
	require.True(t, ok)
	assert.Equal(t, types.PipelineCompleted, status.Status)
	require.NotNil(t, status.ProcessingTime)

	// The result document is persisted.
	assert.FileExists(t, filepath.Join(env.aggr.StorageDir(), pid+".json"))
}

func TestOrchestrator_SyncPipelineWarmCache(t *testing.T) {
	env := newEnv(t)
	const url = "https://www.youtube.com/watch?v=abc"

	first, err := env.orch.ProcessVideo(context.Background(), url, false)
	require.NoError(t, err)
	second, err := env.orch.ProcessVideo(context.Background(), url, false)
	require.NoError(t, err)

	// No back-end ran again; all four stages hit the cache.
	assert.Equal(t, int32(1), env.fetch.calls.Load())
	assert.Equal(t, int32(1), env.extract.calls.Load())
	assert.Equal(t, int32(1), env.transcribe.calls.Load())
	assert.Equal(t, int32(1), env.summarize.calls.Load())
	assert.EqualValues(t, 4, env.orch.GetCacheStats().Hits)

	r1, ok := env.orch.GetResult(first)
	require.True(t, ok)
	r2, ok := env.orch.GetResult(second)
	require.True(t, ok)
	assert.Equal(t, r1.VideoPath, r2.VideoPath)
	assert.Equal(t, r1.AudioPath, r2.AudioPath)
	assert.Equal(t, r1.Transcript, r2.Transcript)
	assert.Equal(t, r1.Summary, r2.Summary)
}

func TestOrchestrator_SyncPipelineFailure(t *testing.T) {
	env := newEnv(t)

	pid, err := env.orch.ProcessVideo(context.Background(), "https://example.com/nope", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, stage.ErrDownload)

	status, ok := env.orch.GetStatus(pid)
	require.True(t, ok)
	assert.Equal(t, types.PipelineFailed, status.Status)
	assert.NotEmpty(t, status.Error)

	_, ok = env.orch.GetResult(pid)
	assert.False(t, ok)
}

func TestOrchestrator_QueueModeSuccess(t *testing.T) {
	env := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := env.orch.StartQueueWorkers(ctx, 2)
	require.NoError(t, err)

	const url = "https://www.youtube.com/watch?v=qm"
	pid, err := env.orch.ProcessVideo(ctx, url, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, ok := env.orch.GetStatus(pid)
		return ok && status.Status == types.PipelineCompleted
	}, 5*time.Second, 10*time.Millisecond)

	stats := env.queue.GetStats()
	assert.Equal(t, 4, stats.CompletedCount, "all four stage tasks completed")

	status, _ := env.orch.GetStatus(pid)
	assert.Len(t, status.QueueTasks, 4)

	// The summarize back-end saw the transcribe output verbatim.
	last := env.summarize.last.Load()
	require.NotNil(t, last)
	assert.Equal(t, "hello world", last.Transcript)

	result, ok := env.orch.GetResult(pid)
	require.True(t, ok)
	assert.Equal(t, "hi", result.Summary)
	assert.FileExists(t, result.VideoPath)
}

func TestOrchestrator_QueueModeRetryThenSuccess(t *testing.T) {
	env := newEnv(t, queue.WithMaxRetries(3))
	env.fetch.failures.Store(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := env.orch.StartQueueWorkers(ctx, 2)
	require.NoError(t, err)

	pid, err := env.orch.ProcessVideo(ctx, "https://youtu.be/retry", true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, ok := env.orch.GetStatus(pid)
		return ok && status.Status == types.PipelineCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(3), env.fetch.calls.Load(), "two failures then one success")
	assert.Equal(t, int32(1), env.extract.calls.Load(), "downstream stages run once")
	assert.Equal(t, int32(1), env.transcribe.calls.Load())
}

func TestOrchestrator_QueueModeRetryExhaustion(t *testing.T) {
	env := newEnv(t, queue.WithMaxRetries(2))
	env.extract.err = errors.New("codec failure")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := env.orch.StartQueueWorkers(ctx, 2)
	require.NoError(t, err)

	pid, err := env.orch.ProcessVideo(ctx, "https://youtu.be/doomed", true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, ok := env.orch.GetStatus(pid)
		return ok && status.Status == types.PipelineFailed
	}, 5*time.Second, 10*time.Millisecond)

	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), env.extract.calls.Load())
	assert.Zero(t, env.transcribe.calls.Load(), "transcribe is never reached")

	status, _ := env.orch.GetStatus(pid)
	extractTaskID := status.QueueTasks[types.TaskExtract.String()]
	require.NotEmpty(t, extractTaskID)
	task, ok := env.queue.Status(extractTaskID)
	require.True(t, ok)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, 3, task.RetryCount)
}

func TestOrchestrator_ConcurrentBatchIsolation(t *testing.T) {
	env := newEnv(t)
	env.transcribe.failMarker = "poisoned"

	urls := []string{
		"https://www.youtube.com/watch?v=u1",
		"https://www.youtube.com/watch?v=poisoned",
		"https://www.bilibili.com/video/u3",
	}
	ids := env.orch.ProcessBatchConcurrent(context.Background(), urls)
	require.Len(t, ids, 3)

	for _, i := range []int{0, 2} {
		result, ok := env.orch.GetResult(ids[i])
		require.True(t, ok, "pipeline %d must complete", i)
		assert.Equal(t, "hello world", result.Transcript)
		assert.Equal(t, "hi", result.Summary)

		status, _ := env.orch.GetStatus(ids[i])
		assert.Equal(t, types.PipelineCompleted, status.Status)
	}

	status, ok := env.orch.GetStatus(ids[1])
	require.True(t, ok)
	assert.Equal(t, types.PipelineFailed, status.Status)
	_, ok = env.orch.GetResult(ids[1])
	assert.False(t, ok)
}

func TestOrchestrator_ProcessBatchPlaceholders(t *testing.T) {
	env := newEnv(t)

	ids := env.orch.ProcessBatch(context.Background(), []string{
		"https://www.youtube.com/watch?v=ok",
		"https://example.com/unsupported",
	})
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Empty(t, ids[1], "failed URL leaves a placeholder")
}

func TestOrchestrator_SubmitBatchToQueue(t *testing.T) {
	env := newEnv(t)

	ids := env.orch.SubmitBatchToQueue(context.Background(), []string{
		"https://youtu.be/a",
		"https://youtu.be/b",
	})
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEmpty(t, ids[1])
	assert.Equal(t, 2, env.queue.Length(), "one download task per URL")
}

func TestOrchestrator_ResultAccessAndExport(t *testing.T) {
	env := newEnv(t)
	pid, err := env.orch.ProcessVideo(context.Background(), "https://youtu.be/export", false)
	require.NoError(t, err)

	doc, ok := env.orch.GetResultDict(pid)
	require.True(t, ok)
	assert.Equal(t, pid, doc["task_id"])
	assert.Equal(t, "hello world", doc["transcript"])

	summary, ok := env.orch.GetResultSummary(pid)
	require.True(t, ok)
	assert.Equal(t, pid, summary.TaskID)
	assert.Equal(t, len("hello world"), summary.TranscriptLength)
	assert.Equal(t, len("hi"), summary.SummaryLength)

	all := env.orch.GetAllResults()
	assert.Contains(t, all, pid)

	batch := env.orch.GetBatchResults([]string{pid, "", "ghost"})
	require.Len(t, batch, 3)
	assert.NotNil(t, batch[0])
	assert.Nil(t, batch[1])
	assert.Nil(t, batch[2])

	payload, ok := env.orch.ExportResultJSON(pid)
	require.True(t, ok)
	assert.Contains(t, payload, "\n  \"task_id\"")

	outPath := filepath.Join(t.TempDir(), "result.json")
	require.True(t, env.orch.SaveResultToFile(pid, outPath))
	assert.FileExists(t, outPath)

	batchPath := filepath.Join(t.TempDir(), "batch.json")
	require.True(t, env.orch.SaveBatchResultsToFile([]string{pid}, batchPath))
	assert.FileExists(t, batchPath)

	_, ok = env.orch.GetResultDict("ghost")
	assert.False(t, ok)
}

func TestOrchestrator_StatsSurfaces(t *testing.T) {
	env := newEnv(t)
	_, err := env.orch.ProcessVideo(context.Background(), "https://youtu.be/stats", false)
	require.NoError(t, err)

	cacheStats := env.orch.GetCacheStats()
	assert.Equal(t, 4, cacheStats.Size, "one artifact per stage")

	queueStats := env.orch.GetQueueStats()
	assert.Zero(t, queueStats.QueueLength)

	poolStats := env.orch.GetPoolStats()
	assert.Equal(t, 4, poolStats.MaxWorkers)

	resultStats := env.orch.ResultStats()
	assert.Equal(t, 1, resultStats.TotalResults)
}

func TestOrchestrator_ShutdownStopsSubmissions(t *testing.T) {
	env := newEnv(t)
	env.orch.Shutdown()

	err := env.pool.Submit("late", func() (any, error) { return nil, nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, pool.ErrShutdown)

	// Shutdown is idempotent; the test cleanup calls it again.
	env.orch.Shutdown()
}
