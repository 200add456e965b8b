package openlibrary

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/cache"
	errs "github.com/lepinkainen/bookshelf/internal/errors"
	"github.com/lepinkainen/bookshelf/internal/normalize"
)

// WorkPath returns the canonical "/works/<id>" form of a work key.
func WorkPath(workKey string) string {
	workKey = strings.TrimSpace(workKey)
	if workKey == "" {
		return ""
	}
	if strings.HasPrefix(workKey, "/works/") {
		return workKey
	}
	return "/works/" + strings.TrimPrefix(workKey, "/")
}

// GetWorkDetail fetches the enrichment fields of a work, cached for 30 days.
// It accepts "/works/OL1W" as well as "OL1W". Failures return false.
func (c *Client) GetWorkDetail(ctx context.Context, workKey string) (*books.Fields, bool) {
	path := WorkPath(workKey)
	if path == "" {
		return nil, false
	}

	fields, fromCache, err := cache.GetOrCompute(ctx, c.cache, cache.Key("work", path), cache.DetailTTL, func(ctx context.Context) (books.Fields, error) {
		return c.fetchWork(ctx, path)
	})
	if err != nil {
		logFetchFailure("work", path, err)
		return nil, false
	}

	slog.Debug("Work detail", "work_key", path, "from_cache", fromCache)
	return &fields, true
}

// GetEditionDetail fetches an edition (or any catalog key such as
// "/books/OL1M"), cached for 30 days. Failures return false.
func (c *Client) GetEditionDetail(ctx context.Context, externalID string) (*books.Fields, bool) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, false
	}

	fields, _, err := c.editionDetail(ctx, externalID)
	if err != nil {
		logFetchFailure("edition", externalID, err)
		return nil, false
	}
	return &fields, true
}

// BatchGetFromExternalIDs resolves many editions. Cached entries are served
// first; the rest are fetched one by one until the rate limit denies a
// request, in which case what was collected so far is returned.
func (c *Client) BatchGetFromExternalIDs(ctx context.Context, ids []string) map[string]books.Fields {
	results := make(map[string]books.Fields, len(ids))
	seen := make(map[string]struct{}, len(ids))
	var uncached []string

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		fields, ok, err := cache.Lookup[books.Fields](ctx, c.cache, editionKey(id))
		if err != nil {
			slog.Warn("Ignoring unreadable cache entry", "external_id", id, "error", err)
		}
		if ok {
			results[id] = fields
			continue
		}
		uncached = append(uncached, id)
	}

	for i, id := range uncached {
		fields, _, err := c.editionDetail(ctx, id)
		if errs.IsRateLimitError(err) {
			slog.Warn("Batch lookup stopped by rate limit", "fetched", i, "remaining", len(uncached)-i)
			break
		}
		if err != nil {
			logFetchFailure("edition", id, err)
			continue
		}
		results[id] = fields
	}

	return results
}

func (c *Client) editionDetail(ctx context.Context, externalID string) (books.Fields, bool, error) {
	return cache.GetOrCompute(ctx, c.cache, editionKey(externalID), cache.DetailTTL, func(ctx context.Context) (books.Fields, error) {
		return c.fetchEdition(ctx, externalID)
	})
}

func editionKey(externalID string) string {
	return cache.Key("edition", externalID)
}

func (c *Client) fetchWork(ctx context.Context, path string) (books.Fields, error) {
	if err := c.acquire(ctx); err != nil {
		return books.Fields{}, err
	}
	var work normalize.WorkDetail
	if err := c.getJSON(ctx, c.baseURL+path+".json", &work); err != nil {
		return books.Fields{}, err
	}
	return normalize.FormatWorkDetail(work), nil
}

func (c *Client) fetchEdition(ctx context.Context, externalID string) (books.Fields, error) {
	if err := c.acquire(ctx); err != nil {
		return books.Fields{}, err
	}
	if !strings.HasPrefix(externalID, "/") {
		externalID = "/" + externalID
	}
	var edition normalize.EditionDetail
	if err := c.getJSON(ctx, c.baseURL+externalID+".json", &edition); err != nil {
		return books.Fields{}, err
	}
	return normalize.FormatEditionDetail(edition), nil
}
