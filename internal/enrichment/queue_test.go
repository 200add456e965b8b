package enrichment

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

func quickTask(bookID uint) Task {
	task := NewTask(bookID, "/works/OL1W")
	task.Backoff = 5 * time.Millisecond
	return task
}

func TestNewTask(t *testing.T) {
	task := NewTask(7, "/works/OL7W")

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, uint(7), task.BookID)
	assert.Equal(t, "/works/OL7W", task.WorkKey)
	assert.Equal(t, 1, task.Attempt)
	assert.Equal(t, 3, task.MaxAttempts)
	assert.Equal(t, 10*time.Second, task.Backoff)
	assert.False(t, task.Exhausted())

	assert.NotEqual(t, task.ID, NewTask(7, "/works/OL7W").ID)

	third := task.Next().Next()
	assert.Equal(t, 3, third.Attempt)
	assert.True(t, third.Exhausted())
	assert.Equal(t, task.ID, third.ID)
	assert.Equal(t, 1, task.Attempt, "Next does not modify the receiver")
}

func TestQueue_RunsTasks(t *testing.T) {
	var ran atomic.Int64
	q := NewQueue(HandlerFunc(func(ctx context.Context, task Task) error {
		ran.Add(1)
		return nil
	}), 4, 8)

	for i := 0; i < 50; i++ {
		require.NoError(t, q.Schedule(context.Background(), quickTask(uint(i)), 0))
	}
	q.Close()

	assert.Equal(t, int64(50), ran.Load())
}

func TestQueue_DelayedTaskRuns(t *testing.T) {
	done := make(chan time.Time, 1)
	q := NewQueue(HandlerFunc(func(ctx context.Context, task Task) error {
		done <- time.Now()
		return nil
	}), 1, 1)
	defer q.Close()

	start := time.Now()
	require.NoError(t, q.Schedule(context.Background(), quickTask(1), 30*time.Millisecond))

	select {
	case ranAt := <-done:
		assert.GreaterOrEqual(t, ranAt.Sub(start), 30*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task never ran")
	}
}

func TestQueue_RetriesUntilSuccess(t *testing.T) {
	var mu sync.Mutex
	var attempts []int
	succeeded := make(chan struct{})
	q := NewQueue(HandlerFunc(func(ctx context.Context, task Task) error {
		mu.Lock()
		attempts = append(attempts, task.Attempt)
		mu.Unlock()
		if task.Attempt < 2 {
			return errors.New("transient")
		}
		close(succeeded)
		return nil
	}), 1, 1)
	defer q.Close()

	require.NoError(t, q.Schedule(context.Background(), quickTask(1), 0))

	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestQueue_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int64
	q := NewQueue(HandlerFunc(func(ctx context.Context, task Task) error {
		calls.Add(1)
		return errors.New("always fails")
	}), 2, 2)

	require.NoError(t, q.Schedule(context.Background(), quickTask(1), 0))

	require.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(3), calls.Load(), "no fourth attempt")
	q.Close()
}

func TestQueue_ScheduleAfterClose(t *testing.T) {
	q := NewQueue(HandlerFunc(func(ctx context.Context, task Task) error { return nil }), 1, 1)
	q.Close()
	q.Close()

	err := q.Schedule(context.Background(), quickTask(1), 0)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_CloseDropsDelayedTasks(t *testing.T) {
	var ran atomic.Int64
	q := NewQueue(HandlerFunc(func(ctx context.Context, task Task) error {
		ran.Add(1)
		return nil
	}), 1, 1)

	require.NoError(t, q.Schedule(context.Background(), quickTask(1), time.Hour))

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close waited on a delayed task")
	}
	assert.Equal(t, int64(0), ran.Load())
}

func TestQueue_CloseDrainsQueuedTasks(t *testing.T) {
	release := make(chan struct{})
	var ran atomic.Int64
	q := NewQueue(HandlerFunc(func(ctx context.Context, task Task) error {
		<-release
		ran.Add(1)
		return nil
	}), 1, 4)

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Schedule(context.Background(), quickTask(uint(i)), 0))
	}

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	close(release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, int64(4), ran.Load())
}

func TestQueue_RetryDuringCloseIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	q := NewQueue(HandlerFunc(func(ctx context.Context, task Task) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return errors.New("fails")
	}), 1, 1)

	require.NoError(t, q.Schedule(context.Background(), quickTask(1), 0))
	<-started

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.closed
	}, time.Second, time.Millisecond)
	close(release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestQueue_ScheduleHonoursContextWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(HandlerFunc(func(ctx context.Context, task Task) error {
		<-release
		return nil
	}), 1, 1)
	defer q.Close()
	defer close(release)

	// one task running, one buffered
	require.NoError(t, q.Schedule(context.Background(), quickTask(1), 0))
	require.Eventually(t, func() bool { return len(q.tasks) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Schedule(context.Background(), quickTask(2), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Schedule(ctx, quickTask(3), 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
