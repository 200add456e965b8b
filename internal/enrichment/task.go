// Package enrichment fetches work details for stored books in the background
// and merges them into the book row.
package enrichment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxAttempts is the total number of attempts per task.
	DefaultMaxAttempts = 3
	// DefaultBackoff is the fixed delay between attempts.
	DefaultBackoff = 10 * time.Second
)

// Task asks for one book to be enriched from its remote work.
type Task struct {
	ID          string        `json:"id"`
	BookID      uint          `json:"book_id"`
	WorkKey     string        `json:"work_key"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Backoff     time.Duration `json:"backoff"`
}

// NewTask creates a first attempt with the default retry policy.
func NewTask(bookID uint, workKey string) Task {
	return Task{
		ID:          uuid.NewString(),
		BookID:      bookID,
		WorkKey:     workKey,
		Attempt:     1,
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
	}
}

// Exhausted reports whether no attempt is left after the current one.
func (t Task) Exhausted() bool {
	return t.Attempt >= t.MaxAttempts
}

// Next returns the task for the following attempt.
func (t Task) Next() Task {
	t.Attempt++
	return t
}

// Scheduler runs tasks after a delay.
type Scheduler interface {
	Schedule(ctx context.Context, task Task, delay time.Duration) error
}

// Handler processes one attempt of a task. A returned error makes the task
// eligible for another attempt.
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task Task) error

// Handle calls fn(ctx, task).
func (fn HandlerFunc) Handle(ctx context.Context, task Task) error {
	return fn(ctx, task)
}
