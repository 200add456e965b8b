package openlibrary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	return data, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// catalogServer is a fake catalog that counts requests per path.
type catalogServer struct {
	*httptest.Server
	hits  atomic.Int64
	mu    sync.Mutex
	paths []string
	query url.Values
}

func newCatalogServer(t *testing.T, handler http.HandlerFunc) *catalogServer {
	t.Helper()
	cs := &catalogServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		cs.mu.Lock()
		cs.paths = append(cs.paths, r.URL.Path)
		cs.query = r.URL.Query()
		cs.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *catalogServer) requestPaths() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.paths...)
}

func (cs *catalogServer) lastQuery() url.Values {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.query
}

func (cs *catalogServer) newClient(opts ...Option) *Client {
	base := []Option{
		WithHTTPClient(cs.Client()),
		WithBaseURL(cs.URL),
		WithSearchURL(cs.URL + "/search.json"),
	}
	return NewClient(append(base, opts...)...)
}

const searchBody = `{
	"numFound": 3,
	"docs": [
		{"key": "/works/OL1W", "title": "The Hobbit - Wikipedia", "author_name": ["J.R.R. Tolkien"], "cover_i": 11},
		{"key": "/works/OL2W", "title": "No Cover", "author_name": ["Nobody"]},
		{"key": "/works/OL3W", "title": "Dune", "authors": [{"name": "Frank Herbert"}], "cover_i": 33, "first_publish_year": 1965}
	]
}`
