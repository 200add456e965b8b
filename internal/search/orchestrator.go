// Package search decides between the local book store and the remote
// catalog, and imports remote hits into the store.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/covers"
	"github.com/lepinkainen/bookshelf/internal/normalize"
	"github.com/lepinkainen/bookshelf/internal/openlibrary"
)

// Store is the part of the book repository the orchestrator uses.
type Store interface {
	FindByExternalID(ctx context.Context, externalID string) (*books.Book, error)
	SearchByTitleOrAuthor(ctx context.Context, q string, limit int) ([]books.Book, error)
	Upsert(ctx context.Context, f books.Fields, preferExternalID bool) (*books.Book, bool, error)
	IncrementSearchCount(ctx context.Context, book *books.Book) (*books.Book, error)
	MarkDiscoveredOnline(ctx context.Context, book *books.Book) (*books.Book, error)
	AttachSyncBatch(ctx context.Context, book *books.Book, batchID uint) (*books.Book, error)
	MarkCoverStored(ctx context.Context, bookID uint) (*books.Book, error)
	CreateUserBook(ctx context.Context, f books.Fields) (*books.Book, error)

	CreateBatch(ctx context.Context, batchType books.BatchType, metadata map[string]any) (*books.SyncBatch, error)
	StartBatch(ctx context.Context, id uint) (*books.SyncBatch, error)
	CompleteBatch(ctx context.Context, id uint, booksCount int) (*books.SyncBatch, error)
	FailBatch(ctx context.Context, id uint, reason string) (*books.SyncBatch, error)
}

// Catalog searches the remote catalog. It never fails; an unreachable
// catalog yields an empty payload.
type Catalog interface {
	Search(ctx context.Context, query string) openlibrary.SearchPayload
}

// CoverStore downloads covers.
type CoverStore interface {
	FetchAndStore(ctx context.Context, coverID int) (string, bool)
}

// Enqueuer schedules background enrichment for a saved book.
type Enqueuer interface {
	Enqueue(ctx context.Context, book *books.Book) (bool, error)
}

// Orchestrator runs searches and imports.
type Orchestrator struct {
	store    Store
	catalog  Catalog
	covers   CoverStore
	enricher Enqueuer
}

// New creates an orchestrator. coverStore and enricher may be nil, in which
// case covers are not downloaded and books are not enriched.
func New(store Store, catalog Catalog, coverStore CoverStore, enricher Enqueuer) *Orchestrator {
	return &Orchestrator{
		store:    store,
		catalog:  catalog,
		covers:   coverStore,
		enricher: enricher,
	}
}

// Search answers query from the local store, or from the remote catalog when
// forceOnline is set. A local miss is reported with HasOnlineOption set; the
// caller decides whether to search online. Online hits are not saved.
func (o *Orchestrator) Search(ctx context.Context, query string, forceOnline bool) (*Result, error) {
	q, err := ValidateQuery(query)
	if err != nil {
		return nil, err
	}

	if forceOnline {
		payload := o.catalog.Search(ctx, q)
		slog.Info("Online search", "query", q, "results", payload.Len())
		return onlineResult(payload.Raw, payload.Formatted, q), nil
	}

	found, err := o.store.SearchByTitleOrAuthor(ctx, q, books.MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}

	for i := range found {
		updated, err := o.store.IncrementSearchCount(ctx, &found[i])
		if err != nil {
			slog.Warn("Failed to bump search count", "book_id", found[i].ID, "error", err)
			continue
		}
		found[i] = *updated
	}

	slog.Info("Local search", "query", q, "results", len(found))
	return localResult(found, q), nil
}

// Import runs an online search and saves its results.
func (o *Orchestrator) Import(ctx context.Context, query string) (*Result, *SaveReport, error) {
	result, err := o.Search(ctx, query, true)
	if err != nil {
		return nil, nil, err
	}
	report, err := o.SaveSearchResults(ctx, result.Raw)
	return result, report, err
}

// CoverPath returns the cover location a client should load for book.
func (o *Orchestrator) CoverPath(book *books.Book) string {
	return covers.CoverPath(book)
}

// AddFromCatalog stores a single catalog record picked by a user. A book
// already stored under the same external id is returned untouched. New books
// with a work key are queued for enrichment.
func (o *Orchestrator) AddFromCatalog(ctx context.Context, f books.Fields) (*books.Book, bool, error) {
	if err := validateCatalogEntry(f); err != nil {
		return nil, false, err
	}

	if f.ExternalID != nil && *f.ExternalID != "" {
		existing, err := o.store.FindByExternalID(ctx, *f.ExternalID)
		if err != nil {
			return nil, false, fmt.Errorf("lookup external id: %w", err)
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	book, created, err := o.store.Upsert(ctx, f, true)
	if err != nil {
		return nil, false, fmt.Errorf("store catalog book: %w", err)
	}

	o.enqueue(ctx, book)
	return book, created, nil
}

// AddManual stores a book typed in by a user. Remote identifiers are
// dropped, so the book is never matched by an import or enriched.
func (o *Orchestrator) AddManual(ctx context.Context, f books.Fields) (*books.Book, error) {
	f.ExternalID = nil
	f.WorkKey = nil
	f.RemoteCoverID = nil
	if err := validateCatalogEntry(f); err != nil {
		return nil, err
	}

	book, err := o.store.CreateUserBook(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("store manual book: %w", err)
	}
	slog.Info("Added manual book", "book_id", book.ID, "title", book.Title)
	return book, nil
}

func (o *Orchestrator) enqueue(ctx context.Context, book *books.Book) bool {
	if o.enricher == nil {
		return false
	}
	queued, err := o.enricher.Enqueue(ctx, book)
	if err != nil {
		slog.Warn("Failed to queue enrichment", "book_id", book.ID, "error", err)
		return false
	}
	return queued
}

func coverID(doc normalize.SearchDoc) int {
	if !doc.HasCover() {
		return 0
	}
	return *doc.CoverI
}
