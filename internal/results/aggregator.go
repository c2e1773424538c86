// SPDX-License-Identifier: MIT

// Package results persists pipeline results as one JSON document per task
// in a storage directory, with a write-through in-memory cache.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"vidpipe/internal/log"
	"vidpipe/internal/media"
	"vidpipe/internal/types"
	"vidpipe/internal/vperrors"
)

// Aggregator owns the storage directory and the in-memory result cache.
// The JSON files are authoritative; the cache only avoids re-reads.
type Aggregator struct {
	storageDir string

	mu    sync.Mutex
	cache map[string]*media.ProcessingResult

	logger zerolog.Logger
	now    func() time.Time
}

// Option customises aggregator construction.
type Option func(*Aggregator)

// WithClock injects a clock, used by tests to control created_at.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an aggregator over storageDir, creating it when missing.
func New(storageDir string, opts ...Option) (*Aggregator, error) {
	if err := os.MkdirAll(storageDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create storage dir: %w", vperrors.ErrProcessing, err)
	}
	a := &Aggregator{
		storageDir: storageDir,
		cache:      make(map[string]*media.ProcessingResult),
		logger:     log.WithComponent("results"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// StorageDir returns the directory holding the result documents.
func (a *Aggregator) StorageDir() string { return a.storageDir }

// Aggregate assembles a ProcessingResult stamped with the current time and
// places it in the in-memory cache.
func (a *Aggregator) Aggregate(taskID string, meta media.Metadata, videoPath, audioPath, transcript, summary string, processingTime float64) *media.ProcessingResult {
	result := &media.ProcessingResult{
		TaskID:         taskID,
		VideoMetadata:  meta,
		VideoPath:      videoPath,
		AudioPath:      audioPath,
		Transcript:     transcript,
		Summary:        summary,
		ProcessingTime: processingTime,
		CreatedAt:      a.now(),
	}

	a.mu.Lock()
	a.cache[taskID] = result
	a.mu.Unlock()

	a.logger.Info().
		Str(log.FieldTaskID, taskID).
		Str(log.FieldEvent, "results.aggregate").
		Msg("result aggregated")
	return result
}

// Save writes the result to <task_id>.json atomically. The document is
// 2-space-indented UTF-8 with created_at in RFC 3339.
func (a *Aggregator) Save(result *media.ProcessingResult) error {
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode result %s: %w", vperrors.ErrProcessing, result.TaskID, err)
	}

	path := a.path(result.TaskID)
	if err := renameio.WriteFile(path, payload, 0o640); err != nil {
		return fmt.Errorf("%w: save result %s: %w", vperrors.ErrProcessing, result.TaskID, err)
	}

	a.mu.Lock()
	a.cache[result.TaskID] = result
	a.mu.Unlock()

	a.logger.Info().
		Str(log.FieldTaskID, result.TaskID).
		Str(log.FieldPath, path).
		Str(log.FieldEvent, "results.save").
		Msg("result saved")
	return nil
}

// Retrieve returns the result for taskID, reading the JSON document when it
// is not cached. Returns false when no document exists.
func (a *Aggregator) Retrieve(taskID string) (*media.ProcessingResult, bool) {
	a.mu.Lock()
	if result, ok := a.cache[taskID]; ok {
		a.mu.Unlock()
		return result, true
	}
	a.mu.Unlock()

	result, err := a.load(a.path(taskID))
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warn().Err(err).Str(log.FieldTaskID, taskID).Msg("result load failed")
		}
		return nil, false
	}

	a.mu.Lock()
	a.cache[taskID] = result
	a.mu.Unlock()
	return result, true
}

// Query returns the raw document form of a result, or false when absent.
func (a *Aggregator) Query(taskID string) (map[string]any, bool) {
	result, ok := a.Retrieve(taskID)
	if !ok {
		return nil, false
	}
	payload, err := json.Marshal(result)
	if err != nil {
		a.logger.Warn().Err(err).Str(log.FieldTaskID, taskID).Msg("result encode failed")
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// ListAll scans the storage directory and returns every readable result.
// Unreadable files are logged and skipped.
func (a *Aggregator) ListAll() []*media.ProcessingResult {
	var results []*media.ProcessingResult
	a.scan(func(result *media.ProcessingResult, _ map[string]any) {
		results = append(results, result)
	})
	return results
}

// FilterByDate returns results created within [start, end].
func (a *Aggregator) FilterByDate(start, end time.Time) []*media.ProcessingResult {
	var results []*media.ProcessingResult
	a.scan(func(result *media.ProcessingResult, _ map[string]any) {
		if !result.CreatedAt.Before(start) && !result.CreatedAt.After(end) {
			results = append(results, result)
		}
	})
	return results
}

// FilterBySource returns results whose video came from the given platform.
func (a *Aggregator) FilterBySource(platform types.Platform) []*media.ProcessingResult {
	var results []*media.ProcessingResult
	a.scan(func(result *media.ProcessingResult, _ map[string]any) {
		if result.VideoMetadata.Platform == platform {
			results = append(results, result)
		}
	})
	return results
}

// FilterByStatus returns results whose document carries a matching optional
// "status" field. Documents without the field never match.
func (a *Aggregator) FilterByStatus(status string) []*media.ProcessingResult {
	var results []*media.ProcessingResult
	a.scan(func(result *media.ProcessingResult, doc map[string]any) {
		if s, ok := doc["status"].(string); ok && s == status {
			results = append(results, result)
		}
	})
	return results
}

// Delete removes the result document and its cache entry. Reports whether
// a document was removed.
func (a *Aggregator) Delete(taskID string) bool {
	a.mu.Lock()
	delete(a.cache, taskID)
	a.mu.Unlock()

	if err := os.Remove(a.path(taskID)); err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warn().Err(err).Str(log.FieldTaskID, taskID).Msg("result removal failed")
		}
		return false
	}
	a.logger.Info().Str(log.FieldTaskID, taskID).Msg("result deleted")
	return true
}

// ClearAll wipes the in-memory cache and every result document.
func (a *Aggregator) ClearAll() error {
	a.mu.Lock()
	a.cache = make(map[string]*media.ProcessingResult)
	a.mu.Unlock()

	entries, err := os.ReadDir(a.storageDir)
	if err != nil {
		return fmt.Errorf("%w: scan storage dir: %w", vperrors.ErrProcessing, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(a.storageDir, entry.Name())
		if err := os.Remove(path); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("result removal failed")
		}
	}
	a.logger.Info().Str(log.FieldEvent, "results.clear").Msg("all results cleared")
	return nil
}

// Stats summarises the stored results.
type Stats struct {
	TotalResults        int            `json:"total_results"`
	CacheSize           int            `json:"cache_size"`
	StorageDir          string         `json:"storage_dir"`
	ResultsByPlatform   map[string]int `json:"results_by_platform"`
	TotalProcessingTime float64        `json:"total_processing_time"`
}

// GetStats scans the storage directory and returns aggregate counters.
func (a *Aggregator) GetStats() Stats {
	stats := Stats{
		StorageDir:        a.storageDir,
		ResultsByPlatform: make(map[string]int),
	}
	a.scan(func(result *media.ProcessingResult, _ map[string]any) {
		stats.TotalResults++
		stats.ResultsByPlatform[result.VideoMetadata.Platform.String()]++
		stats.TotalProcessingTime += result.ProcessingTime
	})

	a.mu.Lock()
	stats.CacheSize = len(a.cache)
	a.mu.Unlock()
	return stats
}

// scan walks the storage directory, invoking fn for every readable result
// document. Unreadable files are logged and skipped, never aborting the
// scan.
func (a *Aggregator) scan(fn func(*media.ProcessingResult, map[string]any)) {
	entries, err := os.ReadDir(a.storageDir)
	if err != nil {
		a.logger.Warn().Err(err).Msg("storage dir scan failed")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(a.storageDir, entry.Name())
		payload, err := os.ReadFile(path) // #nosec G304 -- paths come from the owned storage dir
		if err != nil {
			a.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("skipping unreadable result")
			continue
		}
		var result media.ProcessingResult
		if err := json.Unmarshal(payload, &result); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("skipping malformed result")
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(payload, &doc); err != nil {
			doc = map[string]any{}
		}
		fn(&result, doc)
	}
}

// load reads and decodes a single result document.
func (a *Aggregator) load(path string) (*media.ProcessingResult, error) {
	payload, err := os.ReadFile(path) // #nosec G304 -- paths come from the owned storage dir
	if err != nil {
		return nil, err
	}
	var result media.ProcessingResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &result, nil
}

func (a *Aggregator) path(taskID string) string {
	return filepath.Join(a.storageDir, taskID+".json")
}
