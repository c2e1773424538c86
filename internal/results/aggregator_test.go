// SPDX-License-Identifier: MIT

package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidpipe/internal/media"
	"vidpipe/internal/types"
)

func testMetadata(url string, platform types.Platform) media.Metadata {
	title := "some title"
	duration := 120
	return media.Metadata{
		URL:      url,
		Title:    &title,
		Duration: &duration,
		Platform: platform,
	}
}

func newAggregator(t *testing.T, opts ...Option) *Aggregator {
	t.Helper()
	a, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return a
}

func TestAggregator_AggregateStampsCreatedAt(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	a := newAggregator(t, WithClock(func() time.Time { return now }))

	result := a.Aggregate("t1", testMetadata("u", types.PlatformYouTube), "v.mp4", "a.mp3", "transcript", "summary", 1.5)
	assert.Equal(t, "t1", result.TaskID)
	assert.Equal(t, now, result.CreatedAt)
	assert.Equal(t, 1.5, result.ProcessingTime)

	got, ok := a.Retrieve("t1")
	require.True(t, ok)
	assert.Same(t, result, got)
}

func TestAggregator_SaveRetrieveRoundTrip(t *testing.T) {
	a := newAggregator(t)
	result := a.Aggregate("t1", testMetadata("https://youtu.be/x", types.PlatformYouTube), "v.mp4", "a.mp3", "hello", "hi", 2.25)
	require.NoError(t, a.Save(result))

	// Fresh aggregator over the same directory, cold cache.
	fresh, err := New(a.StorageDir())
	require.NoError(t, err)

	got, ok := fresh.Retrieve("t1")
	require.True(t, ok)
	if diff := cmp.Diff(result, got); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregator_SaveWritesIndentedJSON(t *testing.T) {
	a := newAggregator(t)
	result := a.Aggregate("t1", testMetadata("u", types.PlatformBilibili), "v", "au", "tr", "su", 0.5)
	require.NoError(t, a.Save(result))

	payload, err := os.ReadFile(filepath.Join(a.StorageDir(), "t1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(payload), "\n  \"task_id\": \"t1\"")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(payload, &doc))
	created, ok := doc["created_at"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, created)
	assert.NoError(t, err, "created_at must be ISO-8601")
}

func TestAggregator_RetrieveMissing(t *testing.T) {
	a := newAggregator(t)

	_, ok := a.Retrieve("ghost")
	assert.False(t, ok)
	_, ok = a.Query("ghost")
	assert.False(t, ok)
}

func TestAggregator_Query(t *testing.T) {
	a := newAggregator(t)
	result := a.Aggregate("t1", testMetadata("u", types.PlatformYouTube), "v", "au", "tr", "su", 3)
	require.NoError(t, a.Save(result))

	doc, ok := a.Query("t1")
	require.True(t, ok)
	assert.Equal(t, "t1", doc["task_id"])
	meta, ok := doc["video_metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "youtube", meta["platform"])
}

func TestAggregator_ListAllSkipsUnreadable(t *testing.T) {
	a := newAggregator(t)
	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, a.Save(a.Aggregate(id, testMetadata("u", types.PlatformYouTube), "v", "au", "tr", "su", 1)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(a.StorageDir(), "junk.json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(a.StorageDir(), "notes.txt"), []byte("ignored"), 0o600))

	results := a.ListAll()
	assert.Len(t, results, 2, "malformed and non-JSON files are skipped")
}

func TestAggregator_FilterByDate(t *testing.T) {
	a := newAggregator(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		stamp := base.AddDate(0, 0, i*10)
		ag, err := New(a.StorageDir(), WithClock(func() time.Time { return stamp }))
		require.NoError(t, err)
		require.NoError(t, ag.Save(ag.Aggregate(id, testMetadata("u", types.PlatformYouTube), "v", "au", "tr", "su", 1)))
	}

	got := a.FilterByDate(base.AddDate(0, 0, 5), base.AddDate(0, 0, 15))
	require.Len(t, got, 1)
	assert.Equal(t, "t2", got[0].TaskID)

	// Boundaries are inclusive.
	got = a.FilterByDate(base, base.AddDate(0, 0, 20))
	assert.Len(t, got, 3)
}

func TestAggregator_FilterBySource(t *testing.T) {
	a := newAggregator(t)
	require.NoError(t, a.Save(a.Aggregate("y1", testMetadata("u1", types.PlatformYouTube), "v", "au", "tr", "su", 1)))
	require.NoError(t, a.Save(a.Aggregate("b1", testMetadata("u2", types.PlatformBilibili), "v", "au", "tr", "su", 1)))

	got := a.FilterBySource(types.PlatformBilibili)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].TaskID)
}

func TestAggregator_FilterByStatus(t *testing.T) {
	a := newAggregator(t)
	require.NoError(t, a.Save(a.Aggregate("t1", testMetadata("u", types.PlatformYouTube), "v", "au", "tr", "su", 1)))

	// Annotate the raw document with the optional status field.
	path := filepath.Join(a.StorageDir(), "t1.json")
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(payload, &doc))
	doc["status"] = "completed"
	annotated, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, annotated, 0o600))

	got := a.FilterByStatus("completed")
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TaskID)

	assert.Empty(t, a.FilterByStatus("failed"))
}

func TestAggregator_Delete(t *testing.T) {
	a := newAggregator(t)
	require.NoError(t, a.Save(a.Aggregate("t1", testMetadata("u", types.PlatformYouTube), "v", "au", "tr", "su", 1)))

	assert.True(t, a.Delete("t1"))
	_, ok := a.Retrieve("t1")
	assert.False(t, ok)

	assert.False(t, a.Delete("t1"), "second delete finds nothing")
}

func TestAggregator_ClearAll(t *testing.T) {
	a := newAggregator(t)
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, a.Save(a.Aggregate(id, testMetadata("u", types.PlatformYouTube), "v", "au", "tr", "su", 1)))
	}

	require.NoError(t, a.ClearAll())
	assert.Empty(t, a.ListAll())

	stats := a.GetStats()
	assert.Zero(t, stats.TotalResults)
	assert.Zero(t, stats.CacheSize)
}

func TestAggregator_Stats(t *testing.T) {
	a := newAggregator(t)
	require.NoError(t, a.Save(a.Aggregate("y1", testMetadata("u1", types.PlatformYouTube), "v", "au", "tr", "su", 1.5)))
	require.NoError(t, a.Save(a.Aggregate("y2", testMetadata("u2", types.PlatformYouTube), "v", "au", "tr", "su", 2.5)))
	require.NoError(t, a.Save(a.Aggregate("b1", testMetadata("u3", types.PlatformBilibili), "v", "au", "tr", "su", 1)))

	stats := a.GetStats()
	assert.Equal(t, 3, stats.TotalResults)
	assert.Equal(t, 3, stats.CacheSize)
	assert.Equal(t, a.StorageDir(), stats.StorageDir)
	assert.Equal(t, 2, stats.ResultsByPlatform["youtube"])
	assert.Equal(t, 1, stats.ResultsByPlatform["bilibili"])
	assert.InDelta(t, 5.0, stats.TotalProcessingTime, 1e-9)
}
