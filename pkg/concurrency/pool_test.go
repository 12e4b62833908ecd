package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tradesim/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, cfg PoolConfig) *WorkerPool {
	t.Helper()
	pool := NewWorkerPool(cfg, logging.NewNop())
	t.Cleanup(pool.Stop)
	return pool
}

func TestRunAll_RunsEveryJob(t *testing.T) {
	pool := newPool(t, PoolConfig{Name: "test", MaxWorkers: 3})

	var done int64
	jobs := make([]func(context.Context) error, 10)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) error {
			atomic.AddInt64(&done, 1)
			return nil
		}
	}
	require.NoError(t, pool.RunAll(context.Background(), jobs...))
	assert.Equal(t, int64(10), atomic.LoadInt64(&done))
}

func TestRunAll_FirstErrorCancelsOthers(t *testing.T) {
	pool := newPool(t, PoolConfig{Name: "test", MaxWorkers: 2})
	boom := errors.New("boom")

	var cancelled int64
	err := pool.RunAll(context.Background(),
		func(ctx context.Context) error {
			return boom
		},
		// may start before or after the failure, depending on how many
		// workers the pool has spawned
		func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				atomic.AddInt64(&cancelled, 1)
			case <-time.After(5 * time.Second):
			}
			return nil
		},
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), atomic.LoadInt64(&cancelled))
}

func TestSubmit_NonBlockingFull(t *testing.T) {
	pool := newPool(t, PoolConfig{Name: "tiny", MaxWorkers: 1, MaxCapacity: 1, NonBlocking: true})

	release := make(chan struct{})
	defer close(release)

	var rejected bool
	for i := 0; i < 10; i++ {
		if err := pool.Submit(func() { <-release }); err != nil {
			rejected = true
			break
		}
	}
	assert.True(t, rejected)
}

func TestStats(t *testing.T) {
	pool := newPool(t, PoolConfig{Name: "stats"})
	require.NoError(t, pool.Submit(func() {}))
	stats := pool.Stats()
	assert.Contains(t, stats, "submitted_tasks")
	assert.Contains(t, stats, "running_workers")
}
