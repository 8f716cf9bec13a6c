package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProcessRunsAllItems(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 3}, zap.NewNop())

	items := make([]WorkItem[int], 10)
	for i := range items {
		i := i
		items[i] = WorkItem[int]{
			ID: fmt.Sprintf("item-%d", i),
			Execute: func(ctx context.Context) (int, error) {
				return i * 2, nil
			},
		}
	}

	results := Process(context.Background(), pool, items, nil)
	require.Len(t, results, 10)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestProcessBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())

	var current, peak int32
	items := make([]WorkItem[struct{}], 8)
	for i := range items {
		items[i] = WorkItem[struct{}]{
			ID: fmt.Sprintf("item-%d", i),
			Execute: func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return struct{}{}, nil
			},
		}
	}

	Process(context.Background(), pool, items, nil)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestProcessContinuesAfterFailures(t *testing.T) {
	pool := NewWorkerPool(DefaultWorkerPoolConfig(), zap.NewNop())

	items := []WorkItem[string]{
		{ID: "ok", Execute: func(ctx context.Context) (string, error) { return "done", nil }},
		{ID: "fail", Execute: func(ctx context.Context) (string, error) { return "", fmt.Errorf("boom") }},
		{ID: "ok2", Execute: func(ctx context.Context) (string, error) { return "done", nil }},
	}

	results := Process(context.Background(), pool, items, nil)
	require.Len(t, results, 3)

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			assert.Equal(t, "fail", r.ID)
		}
	}
	assert.Equal(t, 1, failures)
}

func TestProcessReportsProgress(t *testing.T) {
	pool := NewWorkerPool(DefaultWorkerPoolConfig(), zap.NewNop())

	items := []WorkItem[int]{
		{ID: "a", Execute: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "b", Execute: func(ctx context.Context) (int, error) { return 2, nil }},
	}

	var calls int
	Process(context.Background(), pool, items, func(completed, total int) {
		calls++
		assert.Equal(t, 2, total)
	})
	assert.Equal(t, 2, calls)
}

func TestProcessEmptyItems(t *testing.T) {
	pool := NewWorkerPool(DefaultWorkerPoolConfig(), zap.NewNop())
	assert.Nil(t, Process[int](context.Background(), pool, nil, nil))
}
