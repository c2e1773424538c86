// SPDX-License-Identifier: MIT

package pipeline

import (
	"encoding/json"

	"github.com/google/renameio/v2"

	"vidpipe/internal/log"
	"vidpipe/internal/media"
)

// GetResultDict returns the document form of a pipeline's result.
func (o *Orchestrator) GetResultDict(pipelineID string) (map[string]any, bool) {
	result, ok := o.GetResult(pipelineID)
	if !ok {
		o.logger.Warn().Str(log.FieldPipelineID, pipelineID).Msg("result not found")
		return nil, false
	}
	payload, err := json.Marshal(result)
	if err != nil {
		o.logger.Error().Err(err).Str(log.FieldPipelineID, pipelineID).Msg("result encode failed")
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// GetBatchResults returns the document form of each pipeline's result,
// preserving positions. Missing results and empty placeholder ids yield
// nil entries.
func (o *Orchestrator) GetBatchResults(pipelineIDs []string) []map[string]any {
	docs := make([]map[string]any, 0, len(pipelineIDs))
	for _, id := range pipelineIDs {
		if id == "" {
			docs = append(docs, nil)
			continue
		}
		doc, ok := o.GetResultDict(id)
		if !ok {
			docs = append(docs, nil)
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// GetAllResults returns the document form of every stored result keyed by
// pipeline id.
func (o *Orchestrator) GetAllResults() map[string]map[string]any {
	o.mu.Lock()
	ids := make([]string, 0, len(o.results))
	for id := range o.results {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	all := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if doc, ok := o.GetResultDict(id); ok {
			all[id] = doc
		}
	}
	return all
}

// GetResultSummary returns the reduced projection of a pipeline's result.
func (o *Orchestrator) GetResultSummary(pipelineID string) (media.ResultSummary, bool) {
	result, ok := o.GetResult(pipelineID)
	if !ok {
		return media.ResultSummary{}, false
	}
	return result.Summarize(), true
}

// ExportResultJSON renders a pipeline's result as indented JSON.
func (o *Orchestrator) ExportResultJSON(pipelineID string) (string, bool) {
	result, ok := o.GetResult(pipelineID)
	if !ok {
		return "", false
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		o.logger.Error().Err(err).Str(log.FieldPipelineID, pipelineID).Msg("result export failed")
		return "", false
	}
	return string(payload), true
}

// ExportBatchResultsJSON renders a batch of results as one indented JSON
// array, preserving positions with null entries for missing results.
func (o *Orchestrator) ExportBatchResultsJSON(pipelineIDs []string) (string, bool) {
	docs := o.GetBatchResults(pipelineIDs)
	payload, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		o.logger.Error().Err(err).Msg("batch export failed")
		return "", false
	}
	return string(payload), true
}

// SaveResultToFile writes a pipeline's result to the given path.
func (o *Orchestrator) SaveResultToFile(pipelineID, path string) bool {
	payload, ok := o.ExportResultJSON(pipelineID)
	if !ok {
		o.logger.Error().Str(log.FieldPipelineID, pipelineID).Msg("nothing to export")
		return false
	}
	if err := renameio.WriteFile(path, []byte(payload), 0o640); err != nil {
		o.logger.Error().Err(err).Str(log.FieldPath, path).Msg("result file write failed")
		return false
	}
	o.logger.Info().Str(log.FieldPath, path).Msg("result written to file")
	return true
}

// SaveBatchResultsToFile writes a batch of results to the given path.
func (o *Orchestrator) SaveBatchResultsToFile(pipelineIDs []string, path string) bool {
	payload, ok := o.ExportBatchResultsJSON(pipelineIDs)
	if !ok {
		return false
	}
	if err := renameio.WriteFile(path, []byte(payload), 0o640); err != nil {
		o.logger.Error().Err(err).Str(log.FieldPath, path).Msg("batch file write failed")
		return false
	}
	o.logger.Info().Str(log.FieldPath, path).Msg("batch results written to file")
	return true
}
