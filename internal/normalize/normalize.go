// Package normalize turns raw catalog payloads into canonical book fields.
// Every function is pure.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lepinkainen/bookshelf/internal/books"
)

// DefaultCoversBaseURL is the cover CDN prefix used when building cover URLs.
const DefaultCoversBaseURL = "https://covers.openlibrary.org/b/id"

var (
	wikipediaSuffix = regexp.MustCompile(`(?i)\s*[-–—]\s*Wikipedia\s*$`)
	yearPattern     = regexp.MustCompile(`\d{4}`)
)

// CoverURL builds the medium-size cover URL for a cover id, or "" when the
// id is not usable.
func CoverURL(coverID int) string {
	if coverID <= 0 {
		return ""
	}
	return fmt.Sprintf("%s/%d-M.jpg", DefaultCoversBaseURL, coverID)
}

// DeduplicateTitle strips a trailing " - Wikipedia" suffix (hyphen, en dash
// or em dash, any case) and collapses whitespace.
func DeduplicateTitle(title string) string {
	title = wikipediaSuffix.ReplaceAllString(title, "")
	return strings.Join(strings.Fields(title), " ")
}

// ExtractAuthor returns the primary author. A list of display names wins
// over a list of author objects; with neither it returns "".
func ExtractAuthor(doc SearchDoc) string {
	if len(doc.AuthorName) > 0 {
		return doc.AuthorName[0]
	}
	if len(doc.Authors) > 0 {
		return doc.Authors[0].Name
	}
	return ""
}

// FormatRemoteRecord maps a search record onto book fields. Records without
// a cover id get no CoverURL; callers must not persist them.
func FormatRemoteRecord(doc SearchDoc) books.Fields {
	f := books.Fields{
		Title:         books.Ptr(DeduplicateTitle(doc.Title)),
		Author:        books.Ptr(ExtractAuthor(doc)),
		PublishedYear: doc.FirstPublishYear,
		EditionCount:  books.Ptr(1),
		RatingsCount:  books.Ptr(0),
		NumberOfPages: doc.NumberOfPagesMedian,
	}

	if len(doc.Language) > 0 {
		f.Languages = doc.Language
	}

	if doc.Description != nil && doc.Description.Value != "" {
		f.Description = books.Ptr(doc.Description.Value)
	}
	if len(doc.ISBN) > 0 {
		f.ISBN = books.Ptr(doc.ISBN[0])
	}
	if len(doc.Publisher) > 0 {
		f.Publisher = books.Ptr(doc.Publisher[0])
	}
	if doc.Key != "" {
		f.ExternalID = books.Ptr(doc.Key)
		if strings.HasPrefix(doc.Key, "/works/") {
			f.WorkKey = books.Ptr(doc.Key)
		}
	}
	if doc.HasCover() {
		f.CoverURL = books.Ptr(CoverURL(*doc.CoverI))
		f.RemoteCoverID = books.Ptr(*doc.CoverI)
	}
	if doc.EditionCount != nil {
		f.EditionCount = books.Ptr(*doc.EditionCount)
	}
	if doc.RatingsAverage != nil {
		f.RatingsAverage = books.Ptr(*doc.RatingsAverage)
	}
	if doc.RatingsCount != nil {
		f.RatingsCount = books.Ptr(*doc.RatingsCount)
	}
	return f
}

// FormatWorkDetail extracts the enrichment fields of a work. Absent fields
// stay nil so a later merge keeps what is stored; an empty list counts as
// absent.
func FormatWorkDetail(w WorkDetail) books.Fields {
	var f books.Fields

	if w.Description != nil && w.Description.Value != "" {
		f.Description = books.Ptr(w.Description.Value)
	}
	if len(w.Subjects) > 0 {
		f.Subjects = w.Subjects
	}
	if w.Subtitle != nil {
		f.Subtitle = books.Ptr(*w.Subtitle)
	}
	if w.FirstPublishDate != nil {
		f.FirstPublishDate = books.Ptr(*w.FirstPublishDate)
	}
	if len(w.Excerpts) > 0 && w.Excerpts[0].Text != "" {
		f.Excerpt = books.Ptr(w.Excerpts[0].Text)
	}
	if len(w.Links) > 0 {
		links := make([]books.Link, 0, len(w.Links))
		for _, l := range w.Links {
			links = append(links, books.Link{Title: l.Title, URL: l.URL})
		}
		f.Links = links
	}
	return f
}

// FormatEditionDetail maps an edition record onto book fields. The year is
// the first four-digit run in the free-text publish date.
func FormatEditionDetail(e EditionDetail) books.Fields {
	var f books.Fields

	if title := DeduplicateTitle(e.Title); title != "" {
		f.Title = books.Ptr(title)
	}
	if len(e.Authors) > 0 {
		f.Author = books.Ptr(e.Authors[0].Name)
	} else {
		f.Author = books.Ptr("")
	}
	if e.Key != "" {
		f.ExternalID = books.Ptr(e.Key)
	}
	if e.Description != nil && e.Description.Value != "" {
		f.Description = books.Ptr(e.Description.Value)
	}
	if e.Subtitle != nil {
		f.Subtitle = books.Ptr(*e.Subtitle)
	}
	if year, ok := ExtractYear(e.PublishDate); ok {
		f.PublishedYear = books.Ptr(year)
	}
	switch {
	case len(e.Identifiers.ISBN10) > 0:
		f.ISBN = books.Ptr(e.Identifiers.ISBN10[0])
	case len(e.ISBN10) > 0:
		f.ISBN = books.Ptr(e.ISBN10[0])
	}
	if len(e.Publishers) > 0 {
		f.Publisher = books.Ptr(e.Publishers[0])
	}
	if e.NumberOfPages != nil {
		f.NumberOfPages = books.Ptr(*e.NumberOfPages)
	}
	if len(e.Covers) > 0 && e.Covers[0] > 0 {
		f.RemoteCoverID = books.Ptr(e.Covers[0])
		f.CoverURL = books.Ptr(CoverURL(e.Covers[0]))
	}
	return f
}

// ExtractYear returns the first four-digit number in s.
func ExtractYear(s string) (int, bool) {
	match := yearPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return year, true
}
