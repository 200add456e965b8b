package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/normalize"
)

// SaveReport summarizes one SaveSearchResults run.
type SaveReport struct {
	BatchID  uint          `json:"batch_id"`
	Saved    int           `json:"saved"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Covers   int           `json:"covers"`
	Enqueued int           `json:"enqueued"`
	Books    []*books.Book `json:"books"`
}

// SaveSearchResults imports raw catalog records inside a manual_search sync
// batch. Records are processed in order; a record without a cover is skipped
// and a record that fails to save is logged and counted, never aborting the
// batch. Title and author identify existing books here, so duplicate listings
// from the catalog fold into one row.
//
// If the batch cannot be carried through (cancelled context, batch
// bookkeeping failure) it is marked failed and the error is returned along
// with the partial report.
func (o *Orchestrator) SaveSearchResults(ctx context.Context, raw []normalize.SearchDoc) (*SaveReport, error) {
	batch, err := o.store.CreateBatch(ctx, books.BatchManualSearch, map[string]any{"records": len(raw)})
	if err != nil {
		return nil, fmt.Errorf("create sync batch: %w", err)
	}
	report := &SaveReport{BatchID: batch.ID, Books: []*books.Book{}}

	if _, err := o.store.StartBatch(ctx, batch.ID); err != nil {
		return report, o.failBatch(ctx, batch.ID, fmt.Errorf("start sync batch: %w", err))
	}

	for i, doc := range raw {
		if err := ctx.Err(); err != nil {
			return report, o.failBatch(ctx, batch.ID, fmt.Errorf("import interrupted after %d of %d records: %w", i, len(raw), err))
		}

		book, err := o.saveRecord(ctx, batch.ID, doc, report)
		if err != nil {
			if ctx.Err() != nil {
				return report, o.failBatch(ctx, batch.ID, fmt.Errorf("import interrupted: %w", err))
			}
			report.Failed++
			slog.Error("Failed to save book from search", "key", doc.Key, "title", doc.Title, "error", err)
			continue
		}
		if book == nil {
			report.Skipped++
			continue
		}
		report.Saved++
		report.Books = append(report.Books, book)
	}

	if _, err := o.store.CompleteBatch(ctx, batch.ID, report.Saved); err != nil {
		return report, o.failBatch(ctx, batch.ID, fmt.Errorf("complete sync batch: %w", err))
	}

	slog.Info("Saved search results",
		"batch_id", batch.ID,
		"saved", report.Saved,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"enqueued", report.Enqueued,
	)
	return report, nil
}

// saveRecord returns a nil book when the record was skipped.
func (o *Orchestrator) saveRecord(ctx context.Context, batchID uint, doc normalize.SearchDoc, report *SaveReport) (*books.Book, error) {
	id := coverID(doc)
	if id == 0 {
		slog.Debug("Skipping record without cover", "key", doc.Key)
		return nil, nil
	}

	fields := normalize.FormatRemoteRecord(doc)
	book, _, err := o.store.Upsert(ctx, fields, false)
	if err != nil {
		return nil, err
	}

	if o.covers != nil {
		if _, ok := o.covers.FetchAndStore(ctx, id); ok {
			if updated, err := o.store.MarkCoverStored(ctx, book.ID); err != nil {
				slog.Warn("Failed to flag stored cover", "book_id", book.ID, "error", err)
			} else {
				book = updated
				report.Covers++
			}
		}
	}

	if book, err = o.store.MarkDiscoveredOnline(ctx, book); err != nil {
		return nil, err
	}
	if book, err = o.store.AttachSyncBatch(ctx, book, batchID); err != nil {
		return nil, err
	}

	if o.enqueue(ctx, book) {
		report.Enqueued++
	}
	return book, nil
}

func (o *Orchestrator) failBatch(ctx context.Context, batchID uint, cause error) error {
	// the batch must not stay running even when ctx is already cancelled
	ctx = context.WithoutCancel(ctx)
	if _, err := o.store.FailBatch(ctx, batchID, cause.Error()); err != nil {
		slog.Error("Failed to mark sync batch failed", "batch_id", batchID, "error", err)
		return errors.Join(cause, err)
	}
	slog.Error("Sync batch failed", "batch_id", batchID, "error", cause)
	return cause
}
