// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vidpipe/internal/queue"
	"vidpipe/internal/types"
)

type submitRequest struct {
	URL      string `json:"url"`
	UseQueue bool   `json:"use_queue"`
}

type submitBatchRequest struct {
	URLs       []string `json:"urls"`
	UseQueue   bool     `json:"use_queue"`
	Concurrent bool     `json:"concurrent"`
}

// handleSubmit runs one URL through the pipeline. Synchronous submissions
// return the finished result; queue submissions return 202 with the
// pipeline id.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	pipelineID, err := s.orch.ProcessVideo(r.Context(), req.URL, req.UseQueue)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"task_id": pipelineID,
				"error":   "queue full",
			})
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"task_id": pipelineID,
			"error":   err.Error(),
		})
		return
	}

	if req.UseQueue {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"task_id": pipelineID,
			"status":  types.PipelineProcessing.String(),
		})
		return
	}
	doc, ok := s.orch.GetResultDict(pipelineID)
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleSubmitBatch runs a list of URLs, concurrently, sequentially or via
// the queue. Failed entries keep an empty id at their position.
func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.URLs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "urls is required"})
		return
	}

	var ids []string
	code := http.StatusOK
	switch {
	case req.UseQueue:
		ids = s.orch.SubmitBatchToQueue(r.Context(), req.URLs)
		code = http.StatusAccepted
	case req.Concurrent:
		ids = s.orch.ProcessBatchConcurrent(r.Context(), req.URLs)
	default:
		ids = s.orch.ProcessBatch(r.Context(), req.URLs)
	}
	writeJSON(w, code, map[string]any{"task_ids": ids})
}

// handleGetResult returns the finished result document.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.orch.GetResultDict(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleGetStatus returns the pipeline status snapshot.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.orch.GetStatus(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleGetSummary returns the reduced result projection.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.orch.GetResultSummary(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleListResults returns every stored result keyed by pipeline id.
func (s *Server) handleListResults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.GetAllResults())
}

// handleStats returns the counters of every subsystem.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cache":   s.orch.GetCacheStats(),
		"queue":   s.orch.GetQueueStats(),
		"pool":    s.orch.GetPoolStats(),
		"results": s.orch.ResultStats(),
	})
}

// handleHealth reports liveness, version and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}
