package books

import (
	"strings"
	"time"
)

// Fields is a partial book used for writes. A nil field means "absent": it
// never overwrites a stored value.
type Fields struct {
	ExternalID       *string  `json:"external_id,omitempty"`
	Title            *string  `json:"title,omitempty"`
	Subtitle         *string  `json:"subtitle,omitempty"`
	Author           *string  `json:"author,omitempty"`
	Description      *string  `json:"description,omitempty"`
	ISBN             *string  `json:"isbn,omitempty"`
	Publisher        *string  `json:"publisher,omitempty"`
	PublishedYear    *int     `json:"published_year,omitempty"`
	FirstPublishDate *string  `json:"first_publish_date,omitempty"`
	Subjects         []string `json:"subjects,omitempty"`
	Excerpt          *string  `json:"excerpt,omitempty"`
	Links            []Link   `json:"links,omitempty"`
	NumberOfPages    *int     `json:"number_of_pages,omitempty"`
	Languages        []string `json:"languages,omitempty"`
	EditionCount     *int     `json:"edition_count,omitempty"`
	RatingsAverage   *float64 `json:"ratings_average,omitempty"`
	RatingsCount     *int     `json:"ratings_count,omitempty"`
	CoverURL         *string  `json:"cover_url,omitempty"`
	RemoteCoverID    *int     `json:"remote_cover_id,omitempty"`
	WorkKey          *string  `json:"work_key,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// TitleValue returns the title or an empty string.
func (f Fields) TitleValue() string {
	if f.Title == nil {
		return ""
	}
	return *f.Title
}

// AuthorValue returns the author or an empty string.
func (f Fields) AuthorValue() string {
	if f.Author == nil {
		return ""
	}
	return *f.Author
}

// HasTitle reports whether the fields carry a non-blank title.
func (f Fields) HasTitle() bool {
	return strings.TrimSpace(f.TitleValue()) != ""
}

// Enrichment returns only the fields a background work-detail fetch may write.
func (f Fields) Enrichment() Fields {
	return Fields{
		Description:      f.Description,
		Subjects:         f.Subjects,
		Subtitle:         f.Subtitle,
		Excerpt:          f.Excerpt,
		Links:            f.Links,
		FirstPublishDate: f.FirstPublishDate,
	}
}

// IsEmpty reports whether no field is present.
func (f Fields) IsEmpty() bool {
	return f.ExternalID == nil && f.Title == nil && f.Subtitle == nil && f.Author == nil &&
		f.Description == nil && f.ISBN == nil && f.Publisher == nil && f.PublishedYear == nil &&
		f.FirstPublishDate == nil && f.Subjects == nil && f.Excerpt == nil && f.Links == nil &&
		f.NumberOfPages == nil && f.Languages == nil && f.EditionCount == nil &&
		f.RatingsAverage == nil && f.RatingsCount == nil && f.CoverURL == nil &&
		f.RemoteCoverID == nil && f.WorkKey == nil
}

// Apply copies every present field onto b.
func (f Fields) Apply(b *Book) {
	setIf(&b.ExternalID, f.ExternalID)
	if f.Title != nil {
		b.Title = *f.Title
	}
	if f.Author != nil {
		b.Author = *f.Author
	}
	setIf(&b.Subtitle, f.Subtitle)
	setIf(&b.Description, f.Description)
	setIf(&b.ISBN, f.ISBN)
	setIf(&b.Publisher, f.Publisher)
	setIf(&b.PublishedYear, f.PublishedYear)
	setIf(&b.FirstPublishDate, f.FirstPublishDate)
	setIf(&b.Excerpt, f.Excerpt)
	setIf(&b.NumberOfPages, f.NumberOfPages)
	setIf(&b.RatingsAverage, f.RatingsAverage)
	setIf(&b.CoverURL, f.CoverURL)
	setIf(&b.RemoteCoverID, f.RemoteCoverID)
	setIf(&b.WorkKey, f.WorkKey)
	if f.Subjects != nil {
		b.Subjects = f.Subjects
	}
	if f.Links != nil {
		b.Links = f.Links
	}
	if f.Languages != nil {
		b.Languages = f.Languages
	}
	if f.EditionCount != nil {
		b.EditionCount = *f.EditionCount
	}
	if f.RatingsCount != nil {
		b.RatingsCount = *f.RatingsCount
	}
}

func setIf[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// newBook builds a fresh remote-sourced row from fields.
func newBook(f Fields, now time.Time) Book {
	b := Book{
		EditionCount:      1,
		FirstDiscoveredAt: &now,
		LastSyncedAt:      &now,
	}
	f.Apply(&b)
	return b
}
