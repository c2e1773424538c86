// SPDX-License-Identifier: MIT

package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidpipe/internal/cache"
	"vidpipe/internal/media"
	"vidpipe/internal/pool"
	"vidpipe/internal/types"
	"vidpipe/internal/vperrors"
)

type stubFetch struct {
	calls    atomic.Int32
	fetchErr error
	probeErr error
	meta     media.Metadata
}

func (s *stubFetch) Fetch(_ context.Context, _ string, destDir, stem string) (string, error) {
	s.calls.Add(1)
	if s.fetchErr != nil {
		return "", s.fetchErr
	}
	path := filepath.Join(destDir, stem+".mp4")
	if err := os.WriteFile(path, []byte("video"), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (s *stubFetch) Probe(context.Context, string) (media.Metadata, error) {
	if s.probeErr != nil {
		return media.Metadata{}, s.probeErr
	}
	return s.meta, nil
}

func newStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewLRU(64, 0)
	require.NoError(t, err)
	return store
}

func TestDownloader_UnsupportedPlatform(t *testing.T) {
	d, err := NewDownloader(t.TempDir(), &stubFetch{})
	require.NoError(t, err)

	_, err = d.Execute(context.Background(), "https://example.com/watch?v=1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, vperrors.ErrProcessing)

	var stageErr *Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, types.TaskDownload, stageErr.Stage)
}

func TestDownloader_FetchAndCache(t *testing.T) {
	backend := &stubFetch{}
	d, err := NewDownloader(t.TempDir(), backend, WithDownloadStore(newStore(t)))
	require.NoError(t, err)

	const url = "https://www.youtube.com/watch?v=abc"
	path, err := d.Execute(context.Background(), url)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, int32(1), backend.calls.Load())

	// Second run is served from the cache store.
	again, err := d.Execute(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), backend.calls.Load())

	assert.True(t, d.IsCached(url))
	cached, ok := d.GetCached(url)
	require.True(t, ok)
	assert.Equal(t, path, cached)
}

func TestDownloader_DiskCacheByURLStem(t *testing.T) {
	dir := t.TempDir()
	backend := &stubFetch{}
	d, err := NewDownloader(dir, backend)
	require.NoError(t, err)

	const url = "https://youtu.be/xyz"
	existing := filepath.Join(dir, cache.Fingerprint(url)+".webm")
	require.NoError(t, os.WriteFile(existing, []byte("v"), 0o600))

	path, err := d.Execute(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, existing, path)
	assert.Zero(t, backend.calls.Load(), "disk hit must not invoke the back-end")
	assert.True(t, d.IsCached(url))
}

func TestDownloader_DiskCacheRequiresExactStem(t *testing.T) {
	dir := t.TempDir()
	backend := &stubFetch{}
	d, err := NewDownloader(dir, backend)
	require.NoError(t, err)

	const url = "https://youtu.be/exact"
	impostor := filepath.Join(dir, cache.Fingerprint(url)+"extra.mp4")
	require.NoError(t, os.WriteFile(impostor, []byte("v"), 0o600))

	assert.False(t, d.IsCached(url))

	path, err := d.Execute(context.Background(), url)
	require.NoError(t, err)
	assert.NotEqual(t, impostor, path)
	assert.Equal(t, int32(1), backend.calls.Load(), "extended stem must not count as a disk hit")
}

func TestDownloader_DeleteCached(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDownloader(dir, &stubFetch{}, WithDownloadStore(newStore(t)))
	require.NoError(t, err)

	const url = "https://www.bilibili.com/video/BV1"
	path, err := d.Execute(context.Background(), url)
	require.NoError(t, err)
	require.FileExists(t, path)

	d.DeleteCached(url)
	assert.NoFileExists(t, path)
	assert.False(t, d.IsCached(url))
}

func TestDownloader_BackendFailure(t *testing.T) {
	backend := &stubFetch{fetchErr: errors.New("network down")}
	d, err := NewDownloader(t.TempDir(), backend)
	require.NoError(t, err)

	_, err = d.Execute(context.Background(), "https://www.youtube.com/watch?v=x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, err.Error(), "network down")
}

func TestDownloader_InfoDegradesOnProbeFailure(t *testing.T) {
	backend := &stubFetch{probeErr: errors.New("probe refused")}
	d, err := NewDownloader(t.TempDir(), backend)
	require.NoError(t, err)

	const url = "https://www.youtube.com/watch?v=x"
	meta := d.Info(context.Background(), url)
	assert.Equal(t, url, meta.URL)
	assert.Equal(t, types.PlatformYouTube, meta.Platform)
	assert.Nil(t, meta.Title)
}

func TestDownloader_InfoPopulatesMetadata(t *testing.T) {
	title := "a talk"
	duration := 90
	backend := &stubFetch{meta: media.Metadata{Title: &title, Duration: &duration}}
	d, err := NewDownloader(t.TempDir(), backend)
	require.NoError(t, err)

	const url = "https://www.bilibili.com/video/BV2"
	meta := d.Info(context.Background(), url)
	assert.Equal(t, url, meta.URL)
	assert.Equal(t, types.PlatformBilibili, meta.Platform)
	require.NotNil(t, meta.Title)
	assert.Equal(t, "a talk", *meta.Title)
}

type stubExtract struct {
	calls atomic.Int32
	err   error
}

func (s *stubExtract) Extract(_ context.Context, _, audioPath string) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(audioPath, []byte("audio"), 0o600)
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExtractor_MissingVideoFile(t *testing.T) {
	e, err := NewExtractor(t.TempDir(), &stubExtract{})
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), "/nonexistent/video.mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestExtractor_ExtractAndCache(t *testing.T) {
	backend := &stubExtract{}
	e, err := NewExtractor(t.TempDir(), backend, WithExtractStore(newStore(t)))
	require.NoError(t, err)

	videoPath := writeTempFile(t, "v.mp4", "video")
	audioPath, err := e.Execute(context.Background(), videoPath)
	require.NoError(t, err)
	assert.FileExists(t, audioPath)
	assert.Equal(t, cache.Fingerprint(videoPath)+".mp3", filepath.Base(audioPath))

	again, err := e.Execute(context.Background(), videoPath)
	require.NoError(t, err)
	assert.Equal(t, audioPath, again)
	assert.Equal(t, int32(1), backend.calls.Load())

	assert.True(t, e.IsCached(videoPath))
	e.DeleteCached(videoPath)
	assert.False(t, e.IsCached(videoPath))
}

func TestExtractor_AudioFormat(t *testing.T) {
	e, err := NewExtractor(t.TempDir(), &stubExtract{}, WithAudioFormat("wav"))
	require.NoError(t, err)

	videoPath := writeTempFile(t, "v.mp4", "video")
	audioPath, err := e.Execute(context.Background(), videoPath)
	require.NoError(t, err)
	assert.Equal(t, ".wav", filepath.Ext(audioPath))
}

func TestExtractor_BackendFailure(t *testing.T) {
	backend := &stubExtract{err: errors.New("ffmpeg not installed or not in PATH")}
	e, err := NewExtractor(t.TempDir(), backend)
	require.NoError(t, err)

	videoPath := writeTempFile(t, "v.mp4", "video")
	_, err = e.Execute(context.Background(), videoPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "ffmpeg")
}

type stubTranscribe struct {
	calls    atomic.Int32
	text     string
	err      error
	language string
}

func (s *stubTranscribe) Transcribe(_ context.Context, _, language string) (string, error) {
	s.calls.Add(1)
	s.language = language
	return s.text, s.err
}

func TestTranscriber_MissingAudioFile(t *testing.T) {
	tr := NewTranscriber(&stubTranscribe{text: "hi"})

	_, err := tr.Execute(context.Background(), "/nonexistent/a.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscription)
}

func TestTranscriber_EmptyResponse(t *testing.T) {
	tr := NewTranscriber(&stubTranscribe{text: "   "})

	audioPath := writeTempFile(t, "a.mp3", "audio")
	_, err := tr.Execute(context.Background(), audioPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscription)
	assert.Contains(t, err.Error(), "empty transcript")
}

func TestTranscriber_GenerateAndCache(t *testing.T) {
	backend := &stubTranscribe{text: "hello world"}
	tr := NewTranscriber(backend, WithTranscriptStore(newStore(t)))

	audioPath := writeTempFile(t, "a.mp3", "audio")
	transcript, err := tr.Execute(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Equal(t, "hello world", transcript)
	assert.Equal(t, "auto", backend.language)

	_, err = tr.Execute(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.calls.Load())

	assert.True(t, tr.IsCached(audioPath))
	got, ok := tr.GetCached(audioPath)
	require.True(t, ok)
	assert.Equal(t, "hello world", got)

	tr.DeleteCached(audioPath)
	assert.False(t, tr.IsCached(audioPath))
}

func TestTranscriber_LanguagePassthrough(t *testing.T) {
	backend := &stubTranscribe{text: "bonjour"}
	tr := NewTranscriber(backend, WithLanguage("fr"))

	audioPath := writeTempFile(t, "a.mp3", "audio")
	_, err := tr.Execute(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Equal(t, "fr", backend.language)
}

type stubSummarize struct {
	calls atomic.Int32
	text  string
	err   error
	last  SummaryRequest
}

func (s *stubSummarize) Summarize(_ context.Context, req SummaryRequest) (string, error) {
	s.calls.Add(1)
	s.last = req
	return s.text, s.err
}

func TestSummarizer_EmptyTranscript(t *testing.T) {
	s := NewSummarizer(&stubSummarize{text: "sum"})

	for _, transcript := range []string{"", "   \n\t"} {
		_, err := s.Execute(context.Background(), transcript)
		require.Error(t, err, "transcript %q", transcript)
		assert.ErrorIs(t, err, ErrEmptyTranscript)
		assert.ErrorIs(t, err, vperrors.ErrProcessing)
	}
}

func TestSummarizer_UnknownModelPreference(t *testing.T) {
	s := NewSummarizer(&stubSummarize{text: "sum"})

	_, err := s.Generate(context.Background(), "some transcript", SummaryOptions{Model: "gpt-99"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.ErrorIs(t, err, ErrSummarization)
}

func TestSummarizer_EmptyResponse(t *testing.T) {
	s := NewSummarizer(&stubSummarize{text: "  "})

	_, err := s.Execute(context.Background(), "some transcript")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSummarization)
	assert.Contains(t, err.Error(), "empty summary")
}

func TestSummarizer_GenerateAndCache(t *testing.T) {
	backend := &stubSummarize{text: "a short summary"}
	s := NewSummarizer(backend, WithSummaryStore(newStore(t)))

	transcript := "short transcript"
	summary, err := s.Execute(context.Background(), transcript)
	require.NoError(t, err)
	assert.Equal(t, "a short summary", summary)
	assert.Equal(t, "gpt-3.5-turbo", backend.last.Model)
	assert.Equal(t, 500, backend.last.MaxLength)

	_, err = s.Execute(context.Background(), transcript)
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.calls.Load())

	assert.True(t, s.IsCached(transcript))
	s.DeleteCached(transcript)
	assert.False(t, s.IsCached(transcript))
}

func TestSummarizer_Options(t *testing.T) {
	backend := &stubSummarize{text: "sum"}
	s := NewSummarizer(backend, WithMaxLength(200))

	_, err := s.Generate(context.Background(), "t", SummaryOptions{
		Model:     "gpt-4-turbo",
		MaxLength: 80,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4-turbo", backend.last.Model)
	assert.Equal(t, 80, backend.last.MaxLength)

	// Zero MaxLength falls back to the configured default.
	_, err = s.Generate(context.Background(), "another t", SummaryOptions{Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, 200, backend.last.MaxLength)
}

func TestExecuteConcurrent_Sequential(t *testing.T) {
	backend := &stubTranscribe{text: "text"}
	tr := NewTranscriber(backend)

	good := writeTempFile(t, "a.mp3", "audio")
	results := ExecuteConcurrent(context.Background(), tr, []string{good, "/missing.mp3"}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "text", results[good])
}

func TestExecuteConcurrent_WithPool(t *testing.T) {
	backend := &stubTranscribe{text: "text"}
	tr := NewTranscriber(backend)

	p := pool.New(4)
	defer p.Shutdown(true)

	inputs := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		inputs = append(inputs, writeTempFile(t, fmt.Sprintf("a%d.mp3", i), "audio"))
	}
	inputs = append(inputs, "/missing.mp3")

	done := make(chan map[string]string, 1)
	go func() { done <- ExecuteConcurrent(context.Background(), tr, inputs, p) }()

	select {
	case results := <-done:
		require.Len(t, results, 5)
		for _, input := range inputs[:5] {
			assert.Equal(t, "text", results[input])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent execution did not finish")
	}
}
