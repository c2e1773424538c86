// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth reports the number of tasks waiting in the FIFO channel.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidpipe_queue_depth",
		Help: "Number of tasks currently waiting in the queue",
	})

	// QueueTasks counts queue task transitions by type and event.
	QueueTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_queue_tasks_total",
		Help: "Queue task events by task type (enqueued, completed, failed, retried)",
	}, []string{"type", "event"})

	// PoolActiveWorkers reports jobs currently executing in the worker pool.
	PoolActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidpipe_pool_active_jobs",
		Help: "Jobs currently executing in the worker pool",
	})
)
