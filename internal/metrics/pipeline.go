// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus collectors for the pipeline core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration tracks wall-clock duration of stage executions.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidpipe_stage_duration_seconds",
		Help:    "Duration of pipeline stage executions",
		Buckets: prometheus.ExponentialBuckets(0.001, 2.0, 16), // 1ms to ~65s
	}, []string{"stage"})

	// StageExecutions counts stage executions by outcome.
	StageExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_stage_executions_total",
		Help: "Total stage executions by outcome",
	}, []string{"stage", "outcome"})

	// PipelinesCompleted counts finished pipelines by terminal status.
	PipelinesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_pipelines_total",
		Help: "Total pipelines by terminal status",
	}, []string{"status"})

	// PipelineDuration tracks end-to-end pipeline duration.
	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidpipe_pipeline_duration_seconds",
		Help:    "End-to-end duration of completed pipelines",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 16),
	})
)

// RecordStage records one stage execution with its duration and outcome.
func RecordStage(stage string, seconds float64, outcome string) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
	StageExecutions.WithLabelValues(stage, outcome).Inc()
}
