package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/cache"
	"github.com/lepinkainen/bookshelf/internal/openlibrary"
	"github.com/lepinkainen/bookshelf/internal/search"
	"github.com/lepinkainen/bookshelf/internal/server"
)

// SearchCmd represents the search command
type SearchCmd struct {
	Query  string `arg:"" help:"Title or author to search for"`
	Online bool   `help:"Search Open Library instead of the local library"`
	Save   bool   `help:"Save online results to the library (implies --online)"`
}

// ImportCmd represents the import command
type ImportCmd struct {
	Query    string `arg:"" help:"Title or author to search for on Open Library"`
	NoEnrich bool   `help:"Skip fetching work details for the saved books"`
}

// EnrichCmd represents the enrich command
type EnrichCmd struct {
	BookID uint `arg:"" help:"ID of the stored book"`
}

// PopularCmd represents the popular command
type PopularCmd struct {
	Limit int `short:"n" help:"Number of books to list" default:"10"`
}

// ListCmd represents the list command
type ListCmd struct {
	Scope string `help:"Which books to list" enum:"discovered,mine" default:"discovered"`
	Limit int    `short:"n" help:"Number of books to list" default:"10"`
}

// AddCmd represents the add command
type AddCmd struct {
	Title       string `arg:"" help:"Book title"`
	Author      string `help:"Author name"`
	Year        int    `help:"Publication year"`
	Publisher   string `help:"Publisher"`
	ISBN        string `name:"isbn" help:"ISBN"`
	Pages       int    `help:"Number of pages"`
	Description string `help:"Short description"`
}

// LookupCmd represents the lookup command
type LookupCmd struct {
	IDs  []string `arg:"" name:"key" help:"Edition keys such as /books/OL1M"`
	Save bool     `help:"Store the found editions in the library"`
}

// UsageCmd represents the usage command
type UsageCmd struct{}

// CacheCmd groups cache maintenance commands
type CacheCmd struct {
	Clear CacheClearCmd `cmd:"" help:"Remove cached Open Library responses"`
}

// CacheClearCmd represents the cache clear command
type CacheClearCmd struct {
	Expired bool `help:"Only remove expired entries"`
}

// ServeCmd represents the serve command
type ServeCmd struct {
	Addr string `help:"Listen address (defaults to server.addr)"`
}

func (s *SearchCmd) Run(rt *runtime) error {
	if s.Save {
		imp := ImportCmd{Query: s.Query}
		return imp.Run(rt)
	}

	a, err := openApp(rt.ctx, rt.cfg, appOptions{verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	result, err := a.search.Search(rt.ctx, s.Query, s.Online)
	if err != nil {
		return err
	}
	if rt.json {
		return writeJSON(rt.out, result)
	}
	printResult(rt.out, result)
	return nil
}

func (i *ImportCmd) Run(rt *runtime) error {
	a, err := openApp(rt.ctx, rt.cfg, appOptions{verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	result, report, err := a.search.Import(rt.ctx, i.Query)
	if err != nil {
		return err
	}

	enriched := 0
	if !i.NoEnrich {
		enriched = a.enrichImported(rt.ctx, report.Books)
	}

	if rt.json {
		return writeJSON(rt.out, map[string]any{"result": result, "report": report, "enriched": enriched})
	}
	printResult(rt.out, result)
	fmt.Fprintf(rt.out, "\nSaved %d, skipped %d, failed %d, covers %d, enriched %d (batch %d)\n",
		report.Saved, report.Skipped, report.Failed, report.Covers, enriched, report.BatchID)
	return nil
}

func (e *EnrichCmd) Run(rt *runtime) error {
	a, err := openApp(rt.ctx, rt.cfg, appOptions{verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	book, err := a.repo.FindByID(rt.ctx, e.BookID)
	if err != nil {
		return err
	}
	if book == nil {
		return fmt.Errorf("book %d: %w", e.BookID, books.ErrBookNotFound)
	}
	if !book.HasWorkKey() {
		return fmt.Errorf("book %d has no Open Library work key", e.BookID)
	}

	if n := a.enrichNow(rt.ctx, []*books.Book{book}); n == 0 {
		return fmt.Errorf("could not fetch work details for book %d", e.BookID)
	}

	book, err = a.repo.FindByID(rt.ctx, e.BookID)
	if err != nil {
		return err
	}
	if rt.json {
		return writeJSON(rt.out, book)
	}
	fmt.Fprintf(rt.out, "Enriched %s\n", describeBook(book.ID, book.Title, book.Author, book.PublishedYear))
	if len(book.Subjects) > 0 {
		fmt.Fprintf(rt.out, "  Subjects: %s\n", strings.Join(book.Subjects, ", "))
	}
	return nil
}

func (p *PopularCmd) Run(rt *runtime) error {
	a, err := openApp(rt.ctx, rt.cfg, appOptions{verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	found, err := a.repo.Popular(rt.ctx, p.Limit)
	if err != nil {
		return err
	}
	if rt.json {
		return writeJSON(rt.out, found)
	}
	if len(found) == 0 {
		fmt.Fprintln(rt.out, "No books in the library yet.")
		return nil
	}
	for _, b := range found {
		fmt.Fprintf(rt.out, "%s, searched %d times\n", describeBook(b.ID, b.Title, b.Author, b.PublishedYear), b.SearchCount)
	}
	return nil
}

func (l *ListCmd) Run(rt *runtime) error {
	a, err := openApp(rt.ctx, rt.cfg, appOptions{verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	var found []books.Book
	if l.Scope == "mine" {
		found, err = a.repo.UserCreated(rt.ctx, l.Limit)
	} else {
		found, err = a.repo.DiscoveredViaSearch(rt.ctx, l.Limit)
	}
	if err != nil {
		return err
	}
	if rt.json {
		return writeJSON(rt.out, found)
	}
	if len(found) == 0 {
		fmt.Fprintln(rt.out, "No books found.")
		return nil
	}
	for _, b := range found {
		fmt.Fprintln(rt.out, describeBook(b.ID, b.Title, b.Author, b.PublishedYear))
	}
	return nil
}

func (ac *AddCmd) Run(rt *runtime) error {
	a, err := openApp(rt.ctx, rt.cfg, appOptions{verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	book, err := a.search.AddManual(rt.ctx, ac.fields())
	if err != nil {
		return err
	}
	if rt.json {
		return writeJSON(rt.out, book)
	}
	fmt.Fprintf(rt.out, "Added %s\n", describeBook(book.ID, book.Title, book.Author, book.PublishedYear))
	return nil
}

func (ac *AddCmd) fields() books.Fields {
	f := books.Fields{
		Title:  books.Ptr(ac.Title),
		Author: books.Ptr(strings.TrimSpace(ac.Author)),
	}
	if ac.Year != 0 {
		f.PublishedYear = books.Ptr(ac.Year)
	}
	if ac.Pages > 0 {
		f.NumberOfPages = books.Ptr(ac.Pages)
	}
	if v := strings.TrimSpace(ac.Publisher); v != "" {
		f.Publisher = books.Ptr(v)
	}
	if v := strings.TrimSpace(ac.ISBN); v != "" {
		f.ISBN = books.Ptr(v)
	}
	if v := strings.TrimSpace(ac.Description); v != "" {
		f.Description = books.Ptr(v)
	}
	return f
}

func (l *LookupCmd) Run(rt *runtime) error {
	a, err := openApp(rt.ctx, rt.cfg, appOptions{verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	found := lookupEditions(rt.ctx, a.catalog, l.IDs)
	if l.Save {
		for id, f := range found {
			if f.ExternalID == nil {
				f.ExternalID = books.Ptr(id)
			}
			book, created, err := a.search.AddFromCatalog(rt.ctx, f)
			if err != nil {
				slog.Warn("Failed to save edition", "external_id", id, "error", err)
				continue
			}
			slog.Info("Saved edition", "external_id", id, "book_id", book.ID, "created", created)
		}
	}

	if rt.json {
		return writeJSON(rt.out, found)
	}
	for _, id := range l.IDs {
		id = strings.TrimSpace(id)
		f, ok := found[id]
		if !ok {
			fmt.Fprintf(rt.out, "%s: not found\n", id)
			continue
		}
		fmt.Fprintf(rt.out, "%s: %s\n", id, describeBook(0, f.TitleValue(), f.AuthorValue(), f.PublishedYear))
	}
	return nil
}

// lookupEditions fetches a single key directly and several through the
// cache-first batch path, which stops at the rate limit.
func lookupEditions(ctx context.Context, catalog *openlibrary.Client, ids []string) map[string]books.Fields {
	if len(ids) == 1 {
		id := strings.TrimSpace(ids[0])
		f, ok := catalog.GetEditionDetail(ctx, id)
		if !ok {
			return map[string]books.Fields{}
		}
		return map[string]books.Fields{id: *f}
	}
	return catalog.BatchGetFromExternalIDs(ctx, ids)
}

func (u *UsageCmd) Run(rt *runtime) error {
	a, err := openApp(rt.ctx, rt.cfg, appOptions{verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	used := a.catalog.RateLimitUsage(rt.ctx)
	limit, window := a.catalog.Limit()
	if rt.json {
		return writeJSON(rt.out, map[string]any{"used": used, "limit": limit, "window_seconds": int(window.Seconds())})
	}
	fmt.Fprintf(rt.out, "Open Library requests: %d/%d per %s\n", used, limit, window)
	return nil
}

func (c *CacheClearCmd) Run(rt *runtime) error {
	a, err := openApp(rt.ctx, rt.cfg, appOptions{verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	clearer, ok := a.store.(cache.Clearer)
	if !ok {
		return fmt.Errorf("cache backend %q does not support clearing", rt.cfg.Cache.Backend)
	}

	var removed int64
	if c.Expired {
		removed, err = clearer.ClearExpired(rt.ctx)
	} else {
		removed, err = clearer.ClearAll(rt.ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "Removed %d cache entries\n", removed)
	return nil
}

func (s *ServeCmd) Run(rt *runtime) error {
	if !rt.verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := openApp(rt.ctx, rt.cfg, appOptions{background: true, verbose: rt.verbose})
	if err != nil {
		return err
	}
	defer closeApp(a)

	addr := s.Addr
	if addr == "" {
		addr = rt.cfg.Server.Addr
	}

	srv := server.New(server.Deps{
		Searcher: a.search,
		Books:    a.repo,
		Covers:   a.covers,
		Usage:    a.catalog,
	}, server.Options{CORSOrigins: rt.cfg.Server.CORSOrigins})
	return srv.Run(rt.ctx, addr)
}

func closeApp(a *app) {
	if err := a.Close(); err != nil {
		slog.Error("Failed to close resources", "error", err)
	}
}

func printResult(w io.Writer, result *search.Result) {
	fmt.Fprintln(w, result.Message)
	for _, b := range result.Books {
		var id uint
		if b.ID != nil {
			id = *b.ID
		}
		line := describeBook(id, b.Title, b.Author, b.PublishedYear)
		if b.ExternalID != nil && b.ID == nil {
			line += " " + *b.ExternalID
		}
		fmt.Fprintln(w, "  "+line)
	}
}

func describeBook(id uint, title, author string, year *int) string {
	var sb strings.Builder
	if id > 0 {
		fmt.Fprintf(&sb, "[%d] ", id)
	}
	sb.WriteString(title)
	if author != "" {
		sb.WriteString(" by " + author)
	}
	if year != nil {
		fmt.Fprintf(&sb, " (%d)", *year)
	}
	return sb.String()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
