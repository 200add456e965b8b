package books

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxSearchResults caps SearchByTitleOrAuthor regardless of the requested limit.
const MaxSearchResults = 20

// enrichmentColumns are the only columns ApplyEnrichment may write.
var enrichmentColumns = []string{
	"description", "subjects", "subtitle", "excerpt", "links", "first_publish_date", "last_synced_at",
}

// Repository is the gorm-backed book store. Every read-modify-write runs in
// a transaction that locks the row (FOR UPDATE on servers that support it;
// sqlite connections are opened with immediate transactions instead).
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for sync timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRepository creates a repository on top of db.
func NewRepository(db *gorm.DB, opts ...Option) *Repository {
	r := &Repository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Migrate creates or updates the books and sync_batches tables.
func Migrate(db *gorm.DB) error {
	return wrap("migrate", db.AutoMigrate(&Book{}, &SyncBatch{}))
}

// FindByID returns the book with id, or nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id uint) (*Book, error) {
	return r.findOne(r.db.WithContext(ctx), "find by id", "id = ?", id)
}

// FindByExternalID returns the book with the given remote key, or nil.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*Book, error) {
	if externalID == "" {
		return nil, nil
	}
	return r.findOne(r.db.WithContext(ctx), "find by external id", "external_id = ?", externalID)
}

// FindByTitleAuthor returns the book matching title and author exactly, or
// nil. The comparison is byte-exact on every supported driver: mysql columns
// use a case- and accent-insensitive collation, so the query compares BINARY
// there.
func (r *Repository) FindByTitleAuthor(ctx context.Context, title, author string) (*Book, error) {
	return r.findOne(r.db.WithContext(ctx), "find by title and author", r.titleAuthorCondition(), title, author)
}

// SearchByTitleOrAuthor returns books whose title or author contains q,
// ignoring case, in id order. At most MaxSearchResults rows are returned.
//
// Both sides are folded by the database's LOWER. On sqlite that folds ASCII
// letters only, so "émile" does not find "Émile" there while "Émile" and
// "zola" do. Postgres and mysql fold the full Unicode range.
func (r *Repository) SearchByTitleOrAuthor(ctx context.Context, q string, limit int) ([]Book, error) {
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}
	pattern := "%" + escapeLike(strings.TrimSpace(q)) + "%"

	var found []Book
	err := r.db.WithContext(ctx).
		Where("LOWER(title) LIKE LOWER(?) ESCAPE '!' OR LOWER(author) LIKE LOWER(?) ESCAPE '!'", pattern, pattern).
		Order("id").
		Limit(limit).
		Find(&found).Error
	if err != nil {
		return nil, wrap("search", err)
	}
	return found, nil
}

// Upsert writes fields as a remote-sourced book.
//
// With preferExternalID and a non-nil ExternalID the existing row is looked
// up by external id, otherwise by (title, author). A found row gets every
// present field merged over it and a fresh LastSyncedAt; absent fields keep
// their stored value. A missing row is created with discovery timestamps set
// to now. The second return value reports whether a row was created.
func (r *Repository) Upsert(ctx context.Context, f Fields, preferExternalID bool) (*Book, bool, error) {
	if !f.HasTitle() {
		return nil, false, ErrMissingTitle
	}
	if f.Author == nil {
		f.Author = Ptr("")
	}

	var (
		book    Book
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			existing *Book
			err      error
		)
		if preferExternalID && f.ExternalID != nil && *f.ExternalID != "" {
			existing, err = r.findOne(locked(tx), "upsert lookup", "external_id = ?", *f.ExternalID)
		} else {
			existing, err = r.findOne(locked(tx), "upsert lookup", r.titleAuthorCondition(), *f.Title, *f.Author)
		}
		if err != nil {
			return err
		}

		now := r.now()
		if existing != nil {
			f.Apply(existing)
			existing.LastSyncedAt = &now
			if err := tx.Save(existing).Error; err != nil {
				return err
			}
			book = *existing
			return nil
		}

		book = newBook(f, now)
		created = true
		return tx.Create(&book).Error
	})
	if err != nil {
		return nil, false, wrap("upsert", err)
	}
	return &book, created, nil
}

// CreateUserBook stores a manually entered book.
func (r *Repository) CreateUserBook(ctx context.Context, f Fields) (*Book, error) {
	if !f.HasTitle() {
		return nil, ErrMissingTitle
	}
	book := Book{EditionCount: 1, IsUserCreated: true}
	f.Apply(&book)
	if err := r.db.WithContext(ctx).Create(&book).Error; err != nil {
		return nil, wrap("create user book", err)
	}
	return &book, nil
}

// IncrementSearchCount atomically bumps the search counter and touches
// nothing else.
func (r *Repository) IncrementSearchCount(ctx context.Context, book *Book) (*Book, error) {
	err := r.db.WithContext(ctx).Model(&Book{}).
		Where("id = ?", book.ID).
		UpdateColumn("search_count", gorm.Expr("search_count + ?", 1)).Error
	if err != nil {
		return nil, wrap("increment search count", err)
	}
	return r.reload(ctx, "increment search count", book.ID)
}

// MarkDiscoveredOnline flags the book as found through an online search.
// FirstDiscoveredAt is only set when it is still empty.
func (r *Repository) MarkDiscoveredOnline(ctx context.Context, book *Book) (*Book, error) {
	return r.mutate(ctx, "mark discovered online", book.ID, func(b *Book, now time.Time) []string {
		b.DiscoveredViaSearch = true
		if b.FirstDiscoveredAt == nil {
			b.FirstDiscoveredAt = &now
		}
		b.LastSyncedAt = &now
		return []string{"discovered_via_search", "first_discovered_at", "last_synced_at"}
	})
}

// AttachSyncBatch records which import batch last wrote the book.
func (r *Repository) AttachSyncBatch(ctx context.Context, book *Book, batchID uint) (*Book, error) {
	return r.mutate(ctx, "attach sync batch", book.ID, func(b *Book, _ time.Time) []string {
		b.SyncBatchID = &batchID
		return []string{"sync_batch_id"}
	})
}

// MarkCoverStored records that the cover for this book now lives in local
// storage.
func (r *Repository) MarkCoverStored(ctx context.Context, bookID uint) (*Book, error) {
	return r.mutate(ctx, "mark cover stored", bookID, func(b *Book, _ time.Time) []string {
		b.CoverStoredLocally = true
		return []string{"cover_stored_locally"}
	})
}

// ApplyEnrichment merges work detail fields into the stored book. Only the
// enrichment columns and LastSyncedAt are written; fields absent from f keep
// their stored value.
func (r *Repository) ApplyEnrichment(ctx context.Context, bookID uint, f Fields) (*Book, error) {
	detail := f.Enrichment()
	return r.mutate(ctx, "apply enrichment", bookID, func(b *Book, now time.Time) []string {
		detail.Apply(b)
		b.LastSyncedAt = &now
		return enrichmentColumns
	})
}

// Popular returns the most searched books.
func (r *Repository) Popular(ctx context.Context, limit int) ([]Book, error) {
	return r.list(ctx, "popular", limit, r.db.WithContext(ctx).Order("search_count DESC").Order("id"))
}

// DiscoveredViaSearch returns books imported from online searches, newest first.
func (r *Repository) DiscoveredViaSearch(ctx context.Context, limit int) ([]Book, error) {
	return r.list(ctx, "discovered via search", limit,
		r.db.WithContext(ctx).Where("discovered_via_search = ?", true).Order("first_discovered_at DESC").Order("id"))
}

// UserCreated returns manually entered books.
func (r *Repository) UserCreated(ctx context.Context, limit int) ([]Book, error) {
	return r.list(ctx, "user created", limit, r.db.WithContext(ctx).Where("is_user_created = ?", true).Order("id"))
}

func (r *Repository) list(_ context.Context, op string, limit int, q *gorm.DB) ([]Book, error) {
	if limit <= 0 {
		limit = MaxSearchResults
	}
	var found []Book
	if err := q.Limit(limit).Find(&found).Error; err != nil {
		return nil, wrap(op, err)
	}
	return found, nil
}

// mutate loads the row under lock, lets fn change it and writes back only
// the columns fn reports.
func (r *Repository) mutate(ctx context.Context, op string, id uint, fn func(*Book, time.Time) []string) (*Book, error) {
	var book Book
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := r.findOne(locked(tx), op, "id = ?", id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrBookNotFound
		}
		columns := fn(existing, r.now())
		if err := tx.Model(existing).Select(columns).Updates(existing).Error; err != nil {
			return err
		}
		book = *existing
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return &book, nil
}

func (r *Repository) reload(ctx context.Context, op string, id uint) (*Book, error) {
	b, err := r.findOne(r.db.WithContext(ctx), op, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBookNotFound
	}
	return b, nil
}

func (r *Repository) findOne(tx *gorm.DB, op string, query string, args ...any) (*Book, error) {
	var found []Book
	if err := tx.Where(query, args...).Limit(1).Find(&found).Error; err != nil {
		return nil, wrap(op, err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r *Repository) titleAuthorCondition() string {
	return titleAuthorCondition(r.db.Dialector.Name())
}

func titleAuthorCondition(dialect string) string {
	if dialect == "mysql" {
		return "title = BINARY ? AND author = BINARY ?"
	}
	return "title = ? AND author = ?"
}

func locked(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
