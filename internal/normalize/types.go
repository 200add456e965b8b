package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AuthorRef is an author object as embedded in catalog payloads.
type AuthorRef struct {
	Key  string `json:"key,omitempty"`
	Name string `json:"name,omitempty"`
}

// SearchResponse is the body of the catalog search endpoint.
type SearchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []SearchDoc `json:"docs"`
}

// SearchDoc is one record from the catalog search endpoint.
type SearchDoc struct {
	Key                 string      `json:"key"`
	Title               string      `json:"title"`
	AuthorName          []string    `json:"author_name,omitempty"`
	Authors             []AuthorRef `json:"authors,omitempty"`
	ISBN                []string    `json:"isbn,omitempty"`
	FirstPublishYear    *int        `json:"first_publish_year,omitempty"`
	Publisher           []string    `json:"publisher,omitempty"`
	CoverI              *int        `json:"cover_i,omitempty"`
	Description         *TextValue  `json:"description,omitempty"`
	EditionCount        *int        `json:"edition_count,omitempty"`
	Language            []string    `json:"language,omitempty"`
	NumberOfPagesMedian *int        `json:"number_of_pages_median,omitempty"`
	RatingsAverage      *float64    `json:"ratings_average,omitempty"`
	RatingsCount        *int        `json:"ratings_count,omitempty"`
}

// HasCover reports whether the record carries a usable cover identifier.
func (d SearchDoc) HasCover() bool {
	return d.CoverI != nil && *d.CoverI > 0
}

// WorkDetail is the body of the work-detail endpoint.
type WorkDetail struct {
	Key              string     `json:"key"`
	Title            string     `json:"title"`
	Subtitle         *string    `json:"subtitle,omitempty"`
	Description      *TextValue `json:"description,omitempty"`
	Subjects         []string   `json:"subjects,omitempty"`
	FirstPublishDate *string    `json:"first_publish_date,omitempty"`
	Excerpts         []Excerpt  `json:"excerpts,omitempty"`
	Links            []RawLink  `json:"links,omitempty"`
	Covers           []int      `json:"covers,omitempty"`
}

// RawLink is a link entry; fields other than title and url are dropped.
type RawLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// EditionDetail is the body of the edition (or generic key) endpoint.
type EditionDetail struct {
	Key           string             `json:"key"`
	Title         string             `json:"title"`
	Subtitle      *string            `json:"subtitle,omitempty"`
	Description   *TextValue         `json:"description,omitempty"`
	Authors       []AuthorRef        `json:"authors,omitempty"`
	PublishDate   string             `json:"publish_date,omitempty"`
	Publishers    []string           `json:"publishers,omitempty"`
	Identifiers   EditionIdentifiers `json:"identifiers"`
	ISBN10        []string           `json:"isbn_10,omitempty"`
	NumberOfPages *int               `json:"number_of_pages,omitempty"`
	Covers        []int              `json:"covers,omitempty"`
}

// EditionIdentifiers holds the identifier lists of an edition.
type EditionIdentifiers struct {
	ISBN10 []string `json:"isbn_10,omitempty"`
	ISBN13 []string `json:"isbn_13,omitempty"`
}

// TextValue is a text field the catalog sends either as a plain string or as
// a typed object {"type": "/type/text", "value": "..."}.
type TextValue struct {
	Value string
}

// UnmarshalJSON accepts both the string and the object form.
func (t *TextValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &t.Value)
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("text value: %w", err)
	}
	t.Value = obj.Value
	return nil
}

// MarshalJSON always writes the plain string form.
func (t TextValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value)
}

// Excerpt is an excerpts entry, sent either as a string or as an object
// carrying the text under "excerpt" or "text".
type Excerpt struct {
	Text string
}

// UnmarshalJSON accepts the string and both object forms.
func (e *Excerpt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &e.Text)
	}
	var obj struct {
		Excerpt string `json:"excerpt"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("excerpt: %w", err)
	}
	e.Text = obj.Excerpt
	if e.Text == "" {
		e.Text = obj.Text
	}
	return nil
}

// MarshalJSON always writes the plain string form.
func (e Excerpt) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Text)
}
