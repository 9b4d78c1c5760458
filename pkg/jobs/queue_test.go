package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed atomic.Int32
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		processed.Add(1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "j", Type: "noop"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(3), processed.Load())
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var mu sync.Mutex
	var attempts []int
	var results []error
	finished := make(chan struct{})

	q := NewQueue("retry", func(_ context.Context, job Job) error {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		mu.Unlock()
		if job.Attempt < 2 {
			return errors.New("smtp unavailable")
		}
		return nil
	}, QueueConfig{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		OnResult: func(_ Job, err error) {
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
			if err == nil {
				close(finished)
			}
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "mail-1", Type: "notify"}))
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, attempts)
	require.Len(t, results, 3)
	assert.Error(t, results[0])
}

func TestQueueEnqueueBeforeStartAndWhenFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, _ Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	assert.Error(t, q.Enqueue(Job{ID: "early"}))

	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = q.Enqueue(Job{ID: "overflow"})
	}
	assert.ErrorIs(t, err, ErrQueueFull)
}
