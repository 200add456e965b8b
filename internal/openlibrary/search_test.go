package openlibrary

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/bookshelf/internal/cache"
)

func TestSearch_FiltersAndNormalizes(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchBody))
	})
	c := srv.newClient()

	payload := c.Search(context.Background(), "tolkien hobbit")

	assert.Equal(t, "tolkien hobbit", srv.lastQuery().Get("q"))
	assert.Equal(t, "20", srv.lastQuery().Get("limit"))
	assert.Equal(t, []string{"/search.json"}, srv.requestPaths())

	require.Len(t, payload.Raw, 2)
	require.Len(t, payload.Formatted, 2)
	assert.Equal(t, 2, payload.Len())
	assert.Equal(t, "/works/OL1W", payload.Raw[0].Key)
	assert.Equal(t, "/works/OL3W", payload.Raw[1].Key)

	hobbit := payload.Formatted[0]
	assert.Equal(t, "The Hobbit", *hobbit.Title)
	assert.Equal(t, "J.R.R. Tolkien", *hobbit.Author)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/11-M.jpg", *hobbit.CoverURL)

	dune := payload.Formatted[1]
	assert.Equal(t, "Frank Herbert", *dune.Author)
	assert.Equal(t, 1965, *dune.PublishedYear)
}

func TestSearch_CacheHitSkipsNetwork(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchBody))
	})
	store := newMemStore()
	c := srv.newClient(WithCache(store))
	ctx := context.Background()

	first := c.Search(ctx, "hobbit")
	second := c.Search(ctx, "hobbit")

	assert.Equal(t, int64(1), srv.hits.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, cache.SearchTTL, store.ttls[cache.Key("search", "hobbit")])
	assert.Equal(t, 1, c.RateLimitUsage(ctx), "cache hits do not consume the rate limit")
}

func TestSearch_RateLimitDeniedReturnsEmpty(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchBody))
	})
	store := newMemStore()
	c := srv.newClient(WithCache(store), WithLimit(1, time.Minute))
	ctx := context.Background()

	assert.Equal(t, 2, c.Search(ctx, "first").Len())

	denied := c.Search(ctx, "second")
	assert.NotNil(t, denied.Raw)
	assert.NotNil(t, denied.Formatted)
	assert.Equal(t, 0, denied.Len())
	assert.Equal(t, int64(1), srv.hits.Load())
	assert.Equal(t, 1, store.len(), "denied searches are not cached")
}

func TestSearch_UpstreamFailureIsNotCached(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(searchBody))
	})
	store := newMemStore()
	c := srv.newClient(WithCache(store))
	ctx := context.Background()

	assert.Equal(t, 0, c.Search(ctx, "hobbit").Len())
	assert.Equal(t, 0, store.len())

	failing.Store(false)
	assert.Equal(t, 2, c.Search(ctx, "hobbit").Len())
	assert.Equal(t, int64(2), srv.hits.Load())
}

func TestSearch_NetworkErrorReturnsEmpty(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := srv.newClient()
	srv.Close()

	payload := c.Search(context.Background(), "hobbit")
	assert.Equal(t, 0, payload.Len())
}

func TestSearch_WithoutCacheAlwaysFetches(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchBody))
	})
	c := srv.newClient()
	ctx := context.Background()

	c.Search(ctx, "hobbit")
	c.Search(ctx, "hobbit")
	assert.Equal(t, int64(2), srv.hits.Load())
}
