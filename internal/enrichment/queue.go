package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned when a task is scheduled after Close.
var ErrQueueClosed = errors.New("enrichment queue closed")

// Queue is an in-process Scheduler backed by a fixed pool of workers.
// Failed attempts are rescheduled with the task's backoff until the task
// runs out of attempts.
type Queue struct {
	handler Handler
	tasks   chan Task
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.Mutex
	closed bool
	timers map[uint64]*time.Timer
	seq    uint64
}

// NewQueue starts workers goroutines that pass tasks to handler.
func NewQueue(handler Handler, workers, buffer int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = workers * 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		handler: handler,
		tasks:   make(chan Task, buffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[uint64]*time.Timer),
	}
	for i := 0; i < workers; i++ {
		q.workers.Add(1)
		go q.work()
	}
	return q
}

// Schedule queues task to run after delay. The context only bounds the
// hand-off; the attempt itself runs on the queue's own context.
func (q *Queue) Schedule(ctx context.Context, task Task, delay time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending.Add(1)
	if delay > 0 {
		q.seq++
		id := q.seq
		q.timers[id] = time.AfterFunc(delay, func() { q.fire(id, task) })
		q.mu.Unlock()
		slog.Debug("Enrichment task scheduled", "task_id", task.ID, "book_id", task.BookID, "attempt", task.Attempt, "delay", delay)
		return nil
	}
	q.mu.Unlock()

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		q.pending.Done()
		return ctx.Err()
	}
}

func (q *Queue) fire(id uint64, task Task) {
	q.mu.Lock()
	delete(q.timers, id)
	closed := q.closed
	q.mu.Unlock()

	if closed {
		slog.Warn("Dropping delayed enrichment task on shutdown", "task_id", task.ID, "book_id", task.BookID)
		q.pending.Done()
		return
	}
	select {
	case q.tasks <- task:
	case <-q.done:
		q.pending.Done()
	}
}

func (q *Queue) work() {
	defer q.workers.Done()
	for {
		select {
		case task := <-q.tasks:
			q.run(task)
			q.pending.Done()
		case <-q.done:
			return
		}
	}
}

func (q *Queue) run(task Task) {
	err := q.handler.Handle(q.ctx, task)
	if err == nil {
		slog.Debug("Enrichment task succeeded", "task_id", task.ID, "book_id", task.BookID, "attempt", task.Attempt)
		return
	}

	if task.Exhausted() {
		slog.Error("Enrichment task gave up", "task_id", task.ID, "book_id", task.BookID, "attempts", task.Attempt, "error", err)
		return
	}

	slog.Warn("Enrichment attempt failed, retrying", "task_id", task.ID, "book_id", task.BookID, "attempt", task.Attempt, "backoff", task.Backoff, "error", err)
	if err := q.Schedule(q.ctx, task.Next(), task.Backoff); err != nil {
		slog.Warn("Enrichment retry dropped", "task_id", task.ID, "book_id", task.BookID, "error", err)
	}
}

// Close stops accepting tasks, drops tasks still waiting on a delay and waits
// for queued and running attempts to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := 0
	for id, timer := range q.timers {
		if timer.Stop() {
			delete(q.timers, id)
			q.pending.Done()
			dropped++
		}
	}
	q.mu.Unlock()

	if dropped > 0 {
		slog.Info("Dropped delayed enrichment tasks", "count", dropped)
	}

	q.pending.Wait()
	close(q.done)
	q.workers.Wait()
	q.cancel()
}
