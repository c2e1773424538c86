// SPDX-License-Identifier: MIT

package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidpipe/internal/types"
	"vidpipe/internal/vperrors"
)

func TestQueue_RejectsInvalidCapacity(t *testing.T) {
	for _, size := range []int{0, -5} {
		_, err := New(size)
		require.Error(t, err, "size %d", size)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
		assert.ErrorIs(t, err, vperrors.ErrProcessing)
	}
}

func TestQueue_EnqueueDequeueFIFO(t *testing.T) {
	q, err := New(100)
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 10; i++ {
		id, err := q.Enqueue(types.TaskDownload, map[string]string{"video_url": fmt.Sprintf("u%d", i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 0; i < 10; i++ {
		task, ok := q.Dequeue(time.Second)
		require.True(t, ok)
		assert.Equal(t, ids[i], task.ID, "dequeue order must match enqueue order")
		assert.Equal(t, types.TaskRunning, task.Status)
	}
}

func TestQueue_EnqueueFull(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)

	_, err = q.Enqueue(types.TaskDownload, nil)
	require.NoError(t, err)
	_, err = q.Enqueue(types.TaskDownload, nil)
	require.NoError(t, err)

	_, err = q.Enqueue(types.TaskDownload, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.GetStats().TotalTasks, "rejected task must not stay registered")
}

func TestQueue_EnqueueRegistersBeforeDelivery(t *testing.T) {
	const n = 200
	q, err := New(n)
	require.NoError(t, err)

	// A consumer marks every task the moment it appears; the id must
	// already resolve even when the dequeue races the enqueue.
	done := make(chan error, 1)
	go func() {
		for i := 0; i < n; i++ {
			task, ok := q.Dequeue(time.Second)
			if !ok {
				done <- fmt.Errorf("missing task %d", i)
				return
			}
			if err := q.MarkCompleted(task.ID); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 0; i < n; i++ {
		_, err := q.Enqueue(types.TaskDownload, nil)
		require.NoError(t, err)
	}
	require.NoError(t, <-done)
	assert.Equal(t, n, q.GetStats().CompletedCount)
}

func TestQueue_EnqueueInvalidType(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)

	_, err = q.Enqueue(types.TaskType("bogus"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, vperrors.ErrProcessing)
}

func TestQueue_DequeueTimeout(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)

	start := time.Now()
	_, ok := q.Dequeue(50 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// Non-positive timeout polls without blocking.
	_, ok = q.Dequeue(0)
	assert.False(t, ok)
}

func TestQueue_MarkCompleted(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)

	id, err := q.Enqueue(types.TaskExtract, nil)
	require.NoError(t, err)
	_, ok := q.Dequeue(time.Second)
	require.True(t, ok)

	require.NoError(t, q.MarkCompleted(id))

	task, ok := q.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.TaskCompleted, task.Status)

	stats := q.GetStats()
	assert.Equal(t, 1, stats.CompletedCount)
	assert.Equal(t, 1, stats.CompletedTasks)
}

func TestQueue_MarkUnknownTask(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)

	assert.ErrorIs(t, q.MarkCompleted("nope"), ErrUnknownTask)
	assert.ErrorIs(t, q.MarkFailed("nope", "x"), ErrUnknownTask)
}

func TestQueue_RetryThenSuccess(t *testing.T) {
	q, err := New(10, WithMaxRetries(3))
	require.NoError(t, err)

	id, err := q.Enqueue(types.TaskDownload, map[string]string{"video_url": "u"})
	require.NoError(t, err)

	// First attempt fails: task goes back to PENDING with retry_count 1.
	task, ok := q.Dequeue(time.Second)
	require.True(t, ok)
	require.NoError(t, q.MarkFailed(task.ID, "boom"))

	status, ok := q.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.TaskPending, status.Status)
	assert.Equal(t, 1, status.RetryCount)
	assert.Equal(t, "boom", status.ErrorMessage)

	// Second attempt succeeds.
	task, ok = q.Dequeue(time.Second)
	require.True(t, ok)
	assert.Equal(t, id, task.ID)
	require.NoError(t, q.MarkCompleted(task.ID))

	status, _ = q.Status(id)
	assert.Equal(t, types.TaskCompleted, status.Status)
}

func TestQueue_RetryExhaustion(t *testing.T) {
	const maxRetries = 2
	q, err := New(10, WithMaxRetries(maxRetries))
	require.NoError(t, err)

	id, err := q.Enqueue(types.TaskExtract, nil)
	require.NoError(t, err)

	// The task is observable initial + maxRetries times.
	dequeues := 0
	for {
		task, ok := q.Dequeue(10 * time.Millisecond)
		if !ok {
			break
		}
		dequeues++
		require.NoError(t, q.MarkFailed(task.ID, "always fails"))
	}
	assert.Equal(t, maxRetries+1, dequeues)

	status, ok := q.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.TaskFailed, status.Status)
	// Known off-by-one: the final failure increments past max_retries.
	assert.Equal(t, maxRetries+1, status.RetryCount)

	stats := q.GetStats()
	assert.Equal(t, 1, stats.FailedCount)
}

func TestQueue_RetryRePushFullTerminates(t *testing.T) {
	q, err := New(1, WithMaxRetries(5))
	require.NoError(t, err)

	id, err := q.Enqueue(types.TaskTranscribe, nil)
	require.NoError(t, err)
	task, ok := q.Dequeue(time.Second)
	require.True(t, ok)

	// Occupy the single slot so the retry re-push cannot land.
	_, err = q.Enqueue(types.TaskTranscribe, nil)
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(task.ID, "boom"))

	status, ok := q.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.TaskFailed, status.Status, "lost retry must terminate the task")
}

func TestQueue_StatsAndClear(t *testing.T) {
	q, err := New(10)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(types.TaskDownload, nil)
		require.NoError(t, err)
	}
	task, ok := q.Dequeue(time.Second)
	require.True(t, ok)
	require.NoError(t, q.MarkCompleted(task.ID))

	stats := q.GetStats()
	assert.Equal(t, 2, stats.QueueLength)
	assert.Equal(t, 10, stats.MaxSize)
	assert.Equal(t, 3, stats.TotalTasks)
	assert.Equal(t, 2, stats.PendingTasks)
	assert.Equal(t, 1, stats.CompletedTasks)
	assert.Equal(t, 2, q.PendingCount())

	q.Clear()
	stats = q.GetStats()
	assert.Zero(t, stats.QueueLength)
	assert.Zero(t, stats.TotalTasks)
	_, ok = q.Dequeue(0)
	assert.False(t, ok)
}

func TestQueue_SnapshotIsolation(t *testing.T) {
	q, err := New(10)
	require.NoError(t, err)

	id, err := q.Enqueue(types.TaskDownload, map[string]string{"k": "v"})
	require.NoError(t, err)

	snap, ok := q.Status(id)
	require.True(t, ok)
	snap.InputData["k"] = "mutated"
	snap.Status = types.TaskFailed

	fresh, ok := q.Status(id)
	require.True(t, ok)
	assert.Equal(t, "v", fresh.InputData["k"], "snapshot mutation must not leak")
	assert.Equal(t, types.TaskPending, fresh.Status)
}

func TestQueue_ConcurrentConsumers(t *testing.T) {
	q, err := New(100)
	require.NoError(t, err)

	const n = 50
	for i := 0; i < n; i++ {
		_, err := q.Enqueue(types.TaskDownload, nil)
		require.NoError(t, err)
	}

	seen := make(chan string, n)
	for w := 0; w < 4; w++ {
		go func() {
			for {
				task, ok := q.Dequeue(20 * time.Millisecond)
				if !ok {
					return
				}
				seen <- task.ID
			}
		}()
	}

	got := make(map[string]bool)
	for i := 0; i < n; i++ {
		select {
		case id := <-seen:
			assert.False(t, got[id], "task %s delivered twice", id)
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for task %d", i)
		}
	}
}
