// SPDX-License-Identifier: MIT

// Package stage implements the four pipeline stage workers behind a uniform
// contract: cache-first execution against a narrow back-end interface.
package stage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vidpipe/internal/cache"
	"vidpipe/internal/log"
	"vidpipe/internal/metrics"
	"vidpipe/internal/pool"
	"vidpipe/internal/types"
)

// Worker is the uniform stage contract the orchestrator consumes. Execute
// consults the cache before invoking the expensive back-end; successful
// outputs are written back, failures are never cached.
type Worker interface {
	Stage() types.TaskType
	Execute(ctx context.Context, input string) (string, error)
	IsCached(input string) bool
	GetCached(input string) (string, bool)
	DeleteCached(input string)
}

// artifacts is the shared cache-access helper embedded by every stage. All
// methods are no-ops when no store is wired.
type artifacts struct {
	store cache.Store
	key   func(input string) string
}

func (a artifacts) lookup(input string) (string, bool) {
	if a.store == nil {
		return "", false
	}
	return a.store.Get(a.key(input))
}

func (a artifacts) put(input, output string) {
	if a.store != nil {
		a.store.Set(a.key(input), output)
	}
}

func (a artifacts) drop(input string) {
	if a.store != nil {
		a.store.Delete(a.key(input))
	}
}

func (a artifacts) cached(input string) bool {
	if a.store == nil {
		return false
	}
	return a.store.Contains(a.key(input))
}

// ExecuteConcurrent runs every input through the worker, fanning out over
// the pool when one is supplied and degrading to sequential execution
// otherwise. The returned map holds an entry per successful input; failed
// inputs are logged and omitted.
func ExecuteConcurrent(ctx context.Context, w Worker, inputs []string, p *pool.Pool) map[string]string {
	logger := log.WithComponent("stage." + w.Stage().String())
	results := make(map[string]string, len(inputs))

	if p == nil {
		for _, input := range inputs {
			output, err := w.Execute(ctx, input)
			if err != nil {
				logger.Error().Err(err).Str("input", input).Msg("stage execution failed")
				continue
			}
			results[input] = output
		}
		return results
	}

	taskIDs := make(map[string]string, len(inputs))
	for _, input := range inputs {
		taskID := w.Stage().String() + "-" + uuid.NewString()
		in := input
		if err := p.Submit(taskID, func() (any, error) {
			return w.Execute(ctx, in)
		}); err != nil {
			logger.Error().Err(err).Str("input", input).Msg("stage submission failed")
			continue
		}
		taskIDs[input] = taskID
	}
	for input, taskID := range taskIDs {
		output, ok := p.GetResult(taskID, 0)
		if !ok {
			logger.Error().Str("input", input).Msg("stage execution failed")
			continue
		}
		if s, ok := output.(string); ok {
			results[input] = s
		}
	}
	return results
}

// observe records a completed stage execution in the metrics registry.
func observe(stage types.TaskType, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordStage(stage.String(), time.Since(start).Seconds(), outcome)
}
