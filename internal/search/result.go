package search

import (
	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/normalize"
)

// Result sources.
const (
	SourceLocal  = "local"
	SourceOnline = "online"
)

// Envelope messages.
const (
	MessageLocalHits   = "Results from your library"
	MessageLocalMiss   = "No local results found. Try searching online."
	MessageOnlineHits  = "Results from Open Library. These will be saved to your library."
	MessageOnlineEmpty = "No results found on Open Library."
)

// BookView is the serialized form of a book in a search result. Online hits
// are not stored yet, so their ID is null and ExternalID identifies them.
type BookView struct {
	ID            *uint   `json:"id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Description   *string `json:"description"`
	CoverURL      *string `json:"cover_url"`
	ExternalID    *string `json:"external_id"`
	PublishedYear *int    `json:"published_year"`
	Publisher     *string `json:"publisher"`
}

// Result is the uniform envelope returned for every search.
type Result struct {
	IsLocal         bool       `json:"is_local"`
	Books           []BookView `json:"books"`
	HasOnlineOption bool       `json:"has_online_option"`
	Query           string     `json:"query"`
	TotalCount      int        `json:"total_count"`
	Source          string     `json:"source"`
	Message         string     `json:"message"`

	// Raw holds the cover-filtered catalog records of an online search so
	// they can be passed to SaveSearchResults.
	Raw []normalize.SearchDoc `json:"-"`
}

func localResult(found []books.Book, query string) *Result {
	views := make([]BookView, 0, len(found))
	for i := range found {
		views = append(views, viewFromBook(&found[i]))
	}
	message := MessageLocalHits
	if len(views) == 0 {
		message = MessageLocalMiss
	}
	return &Result{
		IsLocal:         true,
		Books:           views,
		HasOnlineOption: len(views) == 0,
		Query:           query,
		TotalCount:      len(views),
		Source:          SourceLocal,
		Message:         message,
	}
}

func onlineResult(raw []normalize.SearchDoc, formatted []books.Fields, query string) *Result {
	views := make([]BookView, 0, len(formatted))
	for _, f := range formatted {
		views = append(views, viewFromFields(f))
	}
	message := MessageOnlineHits
	if len(views) == 0 {
		message = MessageOnlineEmpty
	}
	return &Result{
		IsLocal:         false,
		Books:           views,
		HasOnlineOption: false,
		Query:           query,
		TotalCount:      len(views),
		Source:          SourceOnline,
		Message:         message,
		Raw:             raw,
	}
}

func viewFromBook(b *books.Book) BookView {
	id := b.ID
	return BookView{
		ID:            &id,
		Title:         b.Title,
		Author:        b.Author,
		Description:   b.Description,
		CoverURL:      b.CoverURL,
		ExternalID:    b.ExternalID,
		PublishedYear: b.PublishedYear,
		Publisher:     b.Publisher,
	}
}

func viewFromFields(f books.Fields) BookView {
	return BookView{
		Title:         f.TitleValue(),
		Author:        f.AuthorValue(),
		Description:   f.Description,
		CoverURL:      f.CoverURL,
		ExternalID:    f.ExternalID,
		PublishedYear: f.PublishedYear,
		Publisher:     f.Publisher,
	}
}
