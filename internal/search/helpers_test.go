package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/datastore"
	"github.com/lepinkainen/bookshelf/internal/enrichment"
	"github.com/lepinkainen/bookshelf/internal/normalize"
	"github.com/lepinkainen/bookshelf/internal/openlibrary"
)

func setupRepo(t *testing.T) *books.Repository {
	t.Helper()
	db, err := datastore.Open(datastore.Options{
		Driver: datastore.DriverSQLite,
		DSN:    datastore.SQLiteDSN(filepath.Join(t.TempDir(), "books.db")),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = datastore.Close(db) })
	require.NoError(t, books.Migrate(db))
	return books.NewRepository(db)
}

// catalogStub answers searches from a fixed payload.
type catalogStub struct {
	payload openlibrary.SearchPayload
	queries []string
}

func (c *catalogStub) Search(_ context.Context, query string) openlibrary.SearchPayload {
	c.queries = append(c.queries, query)
	return c.payload
}

type coverStub struct {
	mu     sync.Mutex
	ok     bool
	called []int
}

func (c *coverStub) FetchAndStore(_ context.Context, coverID int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.called = append(c.called, coverID)
	if !c.ok {
		return "", false
	}
	return filepath.Join("covers", "x.jpg"), true
}

type scheduledTask struct {
	task  enrichment.Task
	delay time.Duration
}

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

func (r *recordingScheduler) Schedule(_ context.Context, task enrichment.Task, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, scheduledTask{task: task, delay: delay})
	return nil
}

func newDispatcher(s enrichment.Scheduler) *enrichment.Dispatcher {
	return enrichment.NewDispatcher(s, enrichment.WithJitter(func() time.Duration { return 2 * time.Second }))
}

func intPtr(i int) *int { return &i }

func hobbitDoc() normalize.SearchDoc {
	return normalize.SearchDoc{
		Key:        "/works/OL1W",
		Title:      "The Hobbit",
		AuthorName: []string{"J.R.R. Tolkien"},
		CoverI:     intPtr(123),
	}
}

func payloadOf(docs ...normalize.SearchDoc) openlibrary.SearchPayload {
	p := openlibrary.SearchPayload{Raw: []normalize.SearchDoc{}, Formatted: []books.Fields{}}
	for _, doc := range docs {
		p.Raw = append(p.Raw, doc)
		p.Formatted = append(p.Formatted, normalize.FormatRemoteRecord(doc))
	}
	return p
}

// newCatalogServer serves body for every search request.
func newCatalogServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCatalogClient(srv *httptest.Server, opts ...openlibrary.Option) *openlibrary.Client {
	base := []openlibrary.Option{
		openlibrary.WithHTTPClient(srv.Client()),
		openlibrary.WithBaseURL(srv.URL),
		openlibrary.WithSearchURL(srv.URL + "/search.json"),
	}
	return openlibrary.NewClient(append(base, opts...)...)
}

func countBooks(t *testing.T, repo *books.Repository) int {
	t.Helper()
	found, err := repo.SearchByTitleOrAuthor(context.Background(), "", books.MaxSearchResults)
	require.NoError(t, err)
	return len(found)
}
