package normalize

import (
	"encoding/json"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/lepinkainen/bookshelf/internal/books"
)

func intPtr(i int) *int { return &i }

func TestDeduplicateTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "hyphen", input: "The Hobbit - Wikipedia", want: "The Hobbit"},
		{name: "en dash", input: "The Hobbit – Wikipedia", want: "The Hobbit"},
		{name: "em dash", input: "The Hobbit — Wikipedia", want: "The Hobbit"},
		{name: "lower case", input: "The Hobbit - wikipedia", want: "The Hobbit"},
		{name: "no spaces", input: "The Hobbit-WIKIPEDIA  ", want: "The Hobbit"},
		{name: "whitespace collapse", input: "  Foo   Bar  ", want: "Foo Bar"},
		{name: "suffix not at end", input: "Wikipedia - The Story", want: "Wikipedia - The Story"},
		{name: "plain", input: "Dune", want: "Dune"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeduplicateTitle(tt.input))
		})
	}
}

func TestExtractAuthor(t *testing.T) {
	tests := []struct {
		name string
		doc  SearchDoc
		want string
	}{
		{
			name: "author_name wins over authors",
			doc:  SearchDoc{AuthorName: []string{"A"}, Authors: []AuthorRef{{Name: "B"}}},
			want: "A",
		},
		{
			name: "authors objects",
			doc:  SearchDoc{Authors: []AuthorRef{{Name: "B"}, {Name: "C"}}},
			want: "B",
		},
		{
			name: "empty author_name falls through",
			doc:  SearchDoc{AuthorName: []string{}, Authors: []AuthorRef{{Name: "B"}}},
			want: "B",
		},
		{
			name: "nothing",
			doc:  SearchDoc{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAuthor(tt.doc))
		})
	}
}

func TestExtractAuthor_FromJSONShapes(t *testing.T) {
	var doc SearchDoc
	err := json.Unmarshal([]byte(`{"author_name":["A"],"authors":[{"name":"B"}]}`), &doc)
	assert.NoError(t, err)
	assert.Equal(t, "A", ExtractAuthor(doc))

	doc = SearchDoc{}
	err = json.Unmarshal([]byte(`{"authors":[{"key":"/authors/OL1A","name":"B"}]}`), &doc)
	assert.NoError(t, err)
	assert.Equal(t, "B", ExtractAuthor(doc))
}

func TestCoverURL(t *testing.T) {
	assert.Equal(t, "https://covers.openlibrary.org/b/id/123-M.jpg", CoverURL(123))
	assert.Equal(t, "", CoverURL(0))
	assert.Equal(t, "", CoverURL(-1))
}

func TestFormatRemoteRecord(t *testing.T) {
	raw := `{
		"key": "/works/OL1W",
		"title": "The Hobbit - Wikipedia",
		"author_name": ["J.R.R. Tolkien", "Christopher Tolkien"],
		"isbn": ["0261102214", "9780261102217"],
		"first_publish_year": 1937,
		"publisher": ["Allen & Unwin", "Houghton Mifflin"],
		"cover_i": 123,
		"edition_count": 42,
		"language": ["eng", "fre"],
		"number_of_pages_median": 310,
		"ratings_average": 4.25,
		"ratings_count": 99
	}`
	var doc SearchDoc
	assert.NoError(t, json.Unmarshal([]byte(raw), &doc))

	f := FormatRemoteRecord(doc)
	assert.Equal(t, "The Hobbit", *f.Title)
	assert.Equal(t, "J.R.R. Tolkien", *f.Author)
	assert.Equal(t, 1937, *f.PublishedYear)
	assert.Equal(t, "0261102214", *f.ISBN)
	assert.Equal(t, "Allen & Unwin", *f.Publisher)
	assert.Equal(t, "/works/OL1W", *f.ExternalID)
	assert.Equal(t, "/works/OL1W", *f.WorkKey)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/123-M.jpg", *f.CoverURL)
	assert.Equal(t, 123, *f.RemoteCoverID)
	assert.Equal(t, 42, *f.EditionCount)
	assert.Equal(t, []string{"eng", "fre"}, f.Languages)
	assert.Equal(t, 310, *f.NumberOfPages)
	assert.Equal(t, 4.25, *f.RatingsAverage)
	assert.Equal(t, 99, *f.RatingsCount)
	assert.Zero(t, f.Description)
}

func TestFormatRemoteRecord_Defaults(t *testing.T) {
	f := FormatRemoteRecord(SearchDoc{Key: "/books/OL1M", Title: "Untitled"})

	assert.Equal(t, 1, *f.EditionCount)
	assert.Equal(t, 0, *f.RatingsCount)
	assert.Equal(t, "", *f.Author)
	assert.Zero(t, f.CoverURL)
	assert.Zero(t, f.RemoteCoverID)
	assert.Zero(t, f.ISBN)
	assert.Zero(t, f.Publisher)
	assert.Zero(t, f.PublishedYear)
	assert.Equal(t, "/books/OL1M", *f.ExternalID)
	assert.Zero(t, f.WorkKey)
}

func TestFormatRemoteRecord_DescriptionShapes(t *testing.T) {
	var plain SearchDoc
	assert.NoError(t, json.Unmarshal([]byte(`{"title":"T","description":"plain text","cover_i":1}`), &plain))
	assert.Equal(t, "plain text", *FormatRemoteRecord(plain).Description)

	var typed SearchDoc
	assert.NoError(t, json.Unmarshal([]byte(`{"title":"T","description":{"type":"/type/text","value":"typed text"}}`), &typed))
	assert.Equal(t, "typed text", *FormatRemoteRecord(typed).Description)
}

func TestSearchDoc_HasCover(t *testing.T) {
	assert.True(t, SearchDoc{CoverI: intPtr(5)}.HasCover())
	assert.False(t, SearchDoc{CoverI: intPtr(0)}.HasCover())
	assert.False(t, SearchDoc{}.HasCover())
}

func TestFormatWorkDetail(t *testing.T) {
	raw := `{
		"key": "/works/OL1W",
		"title": "The Hobbit",
		"description": {"type": "/type/text", "value": "A hobbit goes on an adventure."},
		"subjects": ["Fantasy", "Dragons"],
		"subtitle": "There and Back Again",
		"first_publish_date": "September 21, 1937",
		"excerpts": [
			{"excerpt": "In a hole in the ground there lived a hobbit.", "author": {"key": "/people/x"}},
			"second"
		],
		"links": [
			{"title": "Wikipedia", "url": "https://en.wikipedia.org/wiki/The_Hobbit", "type": {"key": "/type/link"}}
		]
	}`
	var w WorkDetail
	assert.NoError(t, json.Unmarshal([]byte(raw), &w))

	f := FormatWorkDetail(w)
	assert.Equal(t, "A hobbit goes on an adventure.", *f.Description)
	assert.Equal(t, []string{"Fantasy", "Dragons"}, f.Subjects)
	assert.Equal(t, "There and Back Again", *f.Subtitle)
	assert.Equal(t, "September 21, 1937", *f.FirstPublishDate)
	assert.Equal(t, "In a hole in the ground there lived a hobbit.", *f.Excerpt)
	assert.Equal(t, []books.Link{{Title: "Wikipedia", URL: "https://en.wikipedia.org/wiki/The_Hobbit"}}, f.Links)
	assert.Zero(t, f.Title)
}

func TestFormatWorkDetail_ExcerptShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "string", raw: `{"excerpts":["plain"]}`, want: "plain"},
		{name: "excerpt key", raw: `{"excerpts":[{"excerpt":"from excerpt"}]}`, want: "from excerpt"},
		{name: "text key", raw: `{"excerpts":[{"text":"from text"}]}`, want: "from text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w WorkDetail
			assert.NoError(t, json.Unmarshal([]byte(tt.raw), &w))
			assert.Equal(t, tt.want, *FormatWorkDetail(w).Excerpt)
		})
	}
}

func TestFormatWorkDetail_AbsentFieldsOmitted(t *testing.T) {
	var w WorkDetail
	assert.NoError(t, json.Unmarshal([]byte(`{"key":"/works/OL1W","description":"only this"}`), &w))

	f := FormatWorkDetail(w)
	assert.Equal(t, "only this", *f.Description)
	assert.Zero(t, f.Subjects)
	assert.Zero(t, f.Subtitle)
	assert.Zero(t, f.Excerpt)
	assert.Zero(t, f.Links)
	assert.Zero(t, f.FirstPublishDate)

	encoded, err := json.Marshal(f)
	assert.NoError(t, err)
	assert.Equal(t, `{"description":"only this"}`, string(encoded))
}

func TestFormatWorkDetail_EmptyListsAreAbsent(t *testing.T) {
	var w WorkDetail
	assert.NoError(t, json.Unmarshal([]byte(`{"key":"/works/OL1W","subjects":[],"links":[]}`), &w))

	f := FormatWorkDetail(w)
	assert.Zero(t, f.Subjects)
	assert.Zero(t, f.Links)
	assert.True(t, f.Enrichment().IsEmpty())
}

func TestFormatRemoteRecord_EmptyLanguagesAreAbsent(t *testing.T) {
	var doc SearchDoc
	assert.NoError(t, json.Unmarshal([]byte(`{"key":"/works/OL1W","title":"Dune","language":[]}`), &doc))

	assert.Zero(t, FormatRemoteRecord(doc).Languages)
}

func TestFormatEditionDetail(t *testing.T) {
	raw := `{
		"key": "/books/OL7353617M",
		"title": "Fantastic Mr. Fox",
		"authors": [{"name": "Roald Dahl"}],
		"publish_date": "October 1, 1988",
		"publishers": ["Puffin"],
		"identifiers": {"isbn_10": ["0140328726"]},
		"number_of_pages": 96,
		"covers": [8739161]
	}`
	var e EditionDetail
	assert.NoError(t, json.Unmarshal([]byte(raw), &e))

	f := FormatEditionDetail(e)
	assert.Equal(t, "Fantastic Mr. Fox", *f.Title)
	assert.Equal(t, "Roald Dahl", *f.Author)
	assert.Equal(t, 1988, *f.PublishedYear)
	assert.Equal(t, "0140328726", *f.ISBN)
	assert.Equal(t, "Puffin", *f.Publisher)
	assert.Equal(t, "/books/OL7353617M", *f.ExternalID)
	assert.Equal(t, 96, *f.NumberOfPages)
	assert.Equal(t, 8739161, *f.RemoteCoverID)
}

func TestFormatEditionDetail_Sparse(t *testing.T) {
	f := FormatEditionDetail(EditionDetail{Key: "/books/OL1M", PublishDate: "unknown", ISBN10: []string{"123"}})

	assert.Zero(t, f.Title)
	assert.Equal(t, "", *f.Author)
	assert.Zero(t, f.PublishedYear)
	assert.Equal(t, "123", *f.ISBN)
}

func TestExtractYear(t *testing.T) {
	year, ok := ExtractYear("c. 1999, reprinted 2004")
	assert.True(t, ok)
	assert.Equal(t, 1999, year)

	_, ok = ExtractYear("n.d.")
	assert.False(t, ok)
}
