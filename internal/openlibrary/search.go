package openlibrary

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/cache"
	errs "github.com/lepinkainen/bookshelf/internal/errors"
	"github.com/lepinkainen/bookshelf/internal/normalize"
)

// SearchPayload pairs the cover-filtered raw records with their normalized
// fields. Both slices have the same length and order.
type SearchPayload struct {
	Raw       []normalize.SearchDoc `json:"raw"`
	Formatted []books.Fields        `json:"formatted"`
}

// Len returns the number of usable records.
func (p SearchPayload) Len() int {
	return len(p.Formatted)
}

// Search queries the catalog. Results are cached for 72 hours. A rate limit
// denial or an upstream failure yields an empty payload, never an error, and
// is not cached.
func (c *Client) Search(ctx context.Context, query string) SearchPayload {
	key := cache.Key("search", query)
	payload, fromCache, err := cache.GetOrCompute(ctx, c.cache, key, cache.SearchTTL, func(ctx context.Context) (SearchPayload, error) {
		return c.fetchSearch(ctx, query)
	})
	if err != nil {
		logFetchFailure("search", query, err)
		return emptyPayload()
	}

	slog.Debug("Catalog search", "query", query, "results", payload.Len(), "from_cache", fromCache)
	return payload
}

func (c *Client) fetchSearch(ctx context.Context, query string) (SearchPayload, error) {
	if err := c.acquire(ctx); err != nil {
		return SearchPayload{}, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(SearchPageSize))
	endpoint := fmt.Sprintf("%s?%s", c.searchURL, params.Encode())

	var response normalize.SearchResponse
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return SearchPayload{}, err
	}

	payload := emptyPayload()
	for _, doc := range response.Docs {
		// records without a cover are never stored
		if !doc.HasCover() {
			continue
		}
		payload.Raw = append(payload.Raw, doc)
		payload.Formatted = append(payload.Formatted, normalize.FormatRemoteRecord(doc))
	}
	return payload, nil
}

func emptyPayload() SearchPayload {
	return SearchPayload{Raw: []normalize.SearchDoc{}, Formatted: []books.Fields{}}
}

func logFetchFailure(op, query string, err error) {
	if errs.IsRateLimitError(err) {
		slog.Warn("Catalog request skipped", "op", op, "query", query, "error", err)
		return
	}
	slog.Error("Catalog request failed", "op", op, "query", query, "error", err)
}
