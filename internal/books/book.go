// Package books owns the canonical Book store and the sync batches that group
// remote imports.
package books

import (
	"time"
)

// Link is an external reference attached to a work.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Book is the canonical persisted record.
type Book struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	ExternalID *string `gorm:"size:191;uniqueIndex" json:"external_id"`

	Title            string   `gorm:"size:255;not null;index:idx_books_title_author" json:"title"`
	Subtitle         *string  `gorm:"size:255" json:"subtitle"`
	Author           string   `gorm:"size:255;not null;default:'';index:idx_books_title_author" json:"author"`
	Description      *string  `gorm:"type:text" json:"description"`
	ISBN             *string  `gorm:"column:isbn;size:32" json:"isbn"`
	Publisher        *string  `gorm:"size:255" json:"publisher"`
	PublishedYear    *int     `json:"published_year"`
	FirstPublishDate *string  `gorm:"size:64" json:"first_publish_date"`
	Subjects         []string `gorm:"serializer:json" json:"subjects"`
	Excerpt          *string  `gorm:"type:text" json:"excerpt"`
	Links            []Link   `gorm:"serializer:json" json:"links"`
	NumberOfPages    *int     `json:"number_of_pages"`
	Languages        []string `gorm:"serializer:json" json:"languages"`
	EditionCount     int      `gorm:"not null;default:1" json:"edition_count"`
	RatingsAverage   *float64 `json:"ratings_average"`
	RatingsCount     int      `gorm:"not null;default:0" json:"ratings_count"`

	CoverURL           *string `gorm:"size:512" json:"cover_url"`
	RemoteCoverID      *int    `json:"remote_cover_id"`
	CoverStoredLocally bool    `gorm:"not null;default:false" json:"cover_stored_locally"`
	WorkKey            *string `gorm:"size:191;index" json:"work_key"`

	IsUserCreated       bool       `gorm:"not null;default:false" json:"is_user_created"`
	DiscoveredViaSearch bool       `gorm:"not null;default:false;index" json:"discovered_via_search"`
	FirstDiscoveredAt   *time.Time `json:"first_discovered_at"`
	LastSyncedAt        *time.Time `json:"last_synced_at"`
	SearchCount         int        `gorm:"not null;default:0;index" json:"search_count"`
	SyncBatchID         *uint      `gorm:"index" json:"sync_batch_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name regardless of naming strategy.
func (Book) TableName() string { return "books" }

// HasWorkKey reports whether the book still references a remote work.
func (b *Book) HasWorkKey() bool {
	return b.WorkKey != nil && *b.WorkKey != ""
}

// BatchType identifies what kind of import created a SyncBatch.
type BatchType string

// Batch types.
const (
	BatchManualSearch   BatchType = "manual_search"
	BatchMonthlyPopular BatchType = "monthly_popular"
	BatchSystem         BatchType = "system"
)

// BatchStatus is the lifecycle state of a SyncBatch.
type BatchStatus string

// Batch statuses. A batch moves pending -> running -> completed or failed.
const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// SyncBatch groups the books written by one remote import.
type SyncBatch struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Type       BatchType      `gorm:"size:32;not null;index" json:"type"`
	Status     BatchStatus    `gorm:"size:32;not null;default:'pending';index" json:"status"`
	BooksCount int            `gorm:"not null;default:0" json:"books_count"`
	BatchDate  time.Time      `gorm:"not null" json:"batch_date"`
	Metadata   map[string]any `gorm:"serializer:json" json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName pins the table name regardless of naming strategy.
func (SyncBatch) TableName() string { return "sync_batches" }

// Finished reports whether the batch reached a terminal state.
func (s *SyncBatch) Finished() bool {
	return s.Status == BatchCompleted || s.Status == BatchFailed
}
