package enrichment

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/lepinkainen/bookshelf/internal/books"
)

const (
	minInitialDelay = 1 * time.Second
	maxInitialDelay = 5 * time.Second
)

// Dispatcher turns saved books into enrichment tasks.
type Dispatcher struct {
	scheduler   Scheduler
	jitter      func() time.Duration
	maxAttempts int
	backoff     time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithJitter replaces the random initial delay source.
func WithJitter(fn func() time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.jitter = fn
		}
	}
}

// WithRetryPolicy overrides the attempt count and backoff of new tasks.
func WithRetryPolicy(maxAttempts int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			d.backoff = backoff
		}
	}
}

// NewDispatcher creates a dispatcher scheduling on s.
func NewDispatcher(s Scheduler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		scheduler:   s,
		jitter:      InitialDelay,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue schedules enrichment for book after a short random delay, so a bulk
// import does not burst the catalog rate limit. Books without a work key are
// skipped and report false.
func (d *Dispatcher) Enqueue(ctx context.Context, book *books.Book) (bool, error) {
	if book == nil || !book.HasWorkKey() {
		return false, nil
	}
	task := NewTask(book.ID, *book.WorkKey)
	task.MaxAttempts = d.maxAttempts
	task.Backoff = d.backoff
	if err := d.scheduler.Schedule(ctx, task, d.jitter()); err != nil {
		return false, err
	}
	return true, nil
}

// InitialDelay returns a random delay between one and five seconds.
func InitialDelay() time.Duration {
	return minInitialDelay + rand.N(maxInitialDelay-minInitialDelay+1)
}
