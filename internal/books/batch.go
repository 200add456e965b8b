package books

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// CreateBatch opens a new pending sync batch.
func (r *Repository) CreateBatch(ctx context.Context, batchType BatchType, metadata map[string]any) (*SyncBatch, error) {
	batch := SyncBatch{
		Type:      batchType,
		Status:    BatchPending,
		BatchDate: r.now(),
		Metadata:  metadata,
	}
	if err := r.db.WithContext(ctx).Create(&batch).Error; err != nil {
		return nil, wrap("create batch", err)
	}
	return &batch, nil
}

// FindBatch returns the batch with id.
func (r *Repository) FindBatch(ctx context.Context, id uint) (*SyncBatch, error) {
	var found []SyncBatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&found).Error; err != nil {
		return nil, wrap("find batch", err)
	}
	if len(found) == 0 {
		return nil, ErrBatchNotFound
	}
	return &found[0], nil
}

// StartBatch moves a pending batch to running.
func (r *Repository) StartBatch(ctx context.Context, id uint) (*SyncBatch, error) {
	return r.transitionBatch(ctx, "start batch", id, func(b *SyncBatch) error {
		if b.Status != BatchPending {
			return fmt.Errorf("cannot start batch %d in status %s: %w", b.ID, b.Status, ErrInvalidTransition)
		}
		b.Status = BatchRunning
		return nil
	})
}

// CompleteBatch finishes a batch with the number of books it saved.
func (r *Repository) CompleteBatch(ctx context.Context, id uint, booksCount int) (*SyncBatch, error) {
	return r.transitionBatch(ctx, "complete batch", id, func(b *SyncBatch) error {
		b.Status = BatchCompleted
		b.BooksCount = booksCount
		return nil
	})
}

// FailBatch marks a batch that stopped before processing every record.
func (r *Repository) FailBatch(ctx context.Context, id uint, reason string) (*SyncBatch, error) {
	return r.transitionBatch(ctx, "fail batch", id, func(b *SyncBatch) error {
		b.Status = BatchFailed
		if b.Metadata == nil {
			b.Metadata = map[string]any{}
		}
		b.Metadata["error"] = reason
		return nil
	})
}

func (r *Repository) transitionBatch(ctx context.Context, op string, id uint, fn func(*SyncBatch) error) (*SyncBatch, error) {
	var batch SyncBatch
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found []SyncBatch
		if err := locked(tx).Where("id = ?", id).Limit(1).Find(&found).Error; err != nil {
			return err
		}
		if len(found) == 0 {
			return ErrBatchNotFound
		}
		batch = found[0]
		if batch.Finished() {
			return fmt.Errorf("batch %d is %s: %w", batch.ID, batch.Status, ErrBatchFinished)
		}
		from := batch.Status
		if err := fn(&batch); err != nil {
			return err
		}
		if err := tx.Save(&batch).Error; err != nil {
			return err
		}
		slog.Debug("Sync batch transition", "batch_id", batch.ID, "from", from, "to", batch.Status)
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return &batch, nil
}
