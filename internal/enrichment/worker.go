package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/bookshelf/internal/books"
)

// ErrDetailUnavailable is returned when the catalog had nothing for the work.
// The queue retries it.
var ErrDetailUnavailable = errors.New("work detail unavailable")

// BookStore is the part of the book repository the worker needs.
type BookStore interface {
	FindByID(ctx context.Context, id uint) (*books.Book, error)
	ApplyEnrichment(ctx context.Context, bookID uint, f books.Fields) (*books.Book, error)
}

// WorkFetcher looks up work details in the remote catalog.
type WorkFetcher interface {
	GetWorkDetail(ctx context.Context, workKey string) (*books.Fields, bool)
}

// Worker enriches one book per task.
type Worker struct {
	store   BookStore
	catalog WorkFetcher
}

// NewWorker creates a worker.
func NewWorker(store BookStore, catalog WorkFetcher) *Worker {
	return &Worker{store: store, catalog: catalog}
}

// Handle reloads the book and merges its work detail. A book that is gone or
// no longer carries a work key is a successful no-op; the key stored on the
// book wins over the one captured in the task.
func (w *Worker) Handle(ctx context.Context, task Task) error {
	book, err := w.store.FindByID(ctx, task.BookID)
	if err != nil {
		return fmt.Errorf("load book %d: %w", task.BookID, err)
	}
	if book == nil {
		slog.Info("Book removed before enrichment", "book_id", task.BookID)
		return nil
	}
	if !book.HasWorkKey() {
		slog.Debug("Book has no work key, skipping enrichment", "book_id", book.ID)
		return nil
	}

	detail, ok := w.catalog.GetWorkDetail(ctx, *book.WorkKey)
	if !ok || detail == nil {
		return fmt.Errorf("book %d work %s: %w", book.ID, *book.WorkKey, ErrDetailUnavailable)
	}

	if _, err := w.store.ApplyEnrichment(ctx, book.ID, *detail); err != nil {
		return fmt.Errorf("apply enrichment to book %d: %w", book.ID, err)
	}

	slog.Info("Enriched book", "book_id", book.ID, "work_key", *book.WorkKey, "attempt", task.Attempt)
	return nil
}
