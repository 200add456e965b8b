// Package server exposes the search orchestrator over HTTP with gin.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/search"
)

const shutdownTimeout = 5 * time.Second

// Searcher is the orchestrator surface the handlers call.
type Searcher interface {
	Search(ctx context.Context, query string, forceOnline bool) (*search.Result, error)
	Import(ctx context.Context, query string) (*search.Result, *search.SaveReport, error)
	AddFromCatalog(ctx context.Context, f books.Fields) (*books.Book, bool, error)
	AddManual(ctx context.Context, f books.Fields) (*books.Book, error)
	CoverPath(book *books.Book) string
}

// BookReader reads stored books.
type BookReader interface {
	FindByID(ctx context.Context, id uint) (*books.Book, error)
	Popular(ctx context.Context, limit int) ([]books.Book, error)
	DiscoveredViaSearch(ctx context.Context, limit int) ([]books.Book, error)
	UserCreated(ctx context.Context, limit int) ([]books.Book, error)
}

// CoverFiles locates stored covers.
type CoverFiles interface {
	Exists(coverID int) bool
	Path(coverID int) string
	RemoteURL(coverID int) string
}

// UsageReporter reports remote catalog rate limit consumption.
type UsageReporter interface {
	RateLimitUsage(ctx context.Context) int
	Limit() (int, time.Duration)
}

// Deps bundles the collaborators of the HTTP server.
type Deps struct {
	Searcher Searcher
	Books    BookReader
	Covers   CoverFiles
	Usage    UsageReporter
}

// Options configures the HTTP server.
type Options struct {
	CORSOrigins []string
}

// Server serves the bookshelf HTTP API.
type Server struct {
	deps   Deps
	engine *gin.Engine
}

// New builds the router.
func New(deps Deps, opts Options) *Server {
	s := &Server{deps: deps}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger())

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
			ExposeHeaders: []string{"Content-Length", requestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	api := r.Group("/api")
	api.GET("/books/search", s.searchBooks)
	api.POST("/books/import", s.importBooks)
	api.GET("/books", s.listBooks)
	api.POST("/books", s.addBook)
	api.POST("/books/manual", s.addManualBook)
	api.GET("/books/popular", s.popularBooks)
	api.GET("/books/:id", s.getBook)
	api.GET("/ratelimit", s.rateLimit)

	r.GET("/covers/:id", s.cover)

	s.engine = r
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
