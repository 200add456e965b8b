package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/lepinkainen/bookshelf/internal/books"
	errs "github.com/lepinkainen/bookshelf/internal/errors"
	"github.com/lepinkainen/bookshelf/internal/search"
)

const (
	defaultPopularLimit = 10
	maxPopularLimit     = 50
)

const (
	scopeDiscovered = "discovered"
	scopeMine       = "mine"
)

type searchRequest struct {
	Q      string `form:"q" binding:"required,min=2,max=255"`
	Online bool   `form:"online"`
}

type importRequest struct {
	Q string `json:"q" binding:"required,min=2,max=255"`
}

type addBookRequest struct {
	ExternalID    string `json:"external_id" binding:"required,max=191"`
	Title         string `json:"title" binding:"required,max=255"`
	Author        string `json:"author" binding:"max=255"`
	Description   string `json:"description"`
	Publisher     string `json:"publisher" binding:"max=255"`
	ISBN          string `json:"isbn" binding:"max=32"`
	PublishedYear int    `json:"published_year"`
	CoverURL      string `json:"cover_url"`
	RemoteCoverID int    `json:"remote_cover_id"`
	WorkKey       string `json:"work_key"`
}

type manualBookRequest struct {
	Title         string `json:"title" binding:"required,max=255"`
	Subtitle      string `json:"subtitle" binding:"max=255"`
	Author        string `json:"author" binding:"max=255"`
	Description   string `json:"description"`
	Publisher     string `json:"publisher" binding:"max=255"`
	ISBN          string `json:"isbn" binding:"max=32"`
	PublishedYear int    `json:"published_year"`
	NumberOfPages int    `json:"number_of_pages"`
	CoverURL      string `json:"cover_url"`
}

func (r manualBookRequest) fields() books.Fields {
	f := books.Fields{
		Title:       books.Ptr(r.Title),
		Author:      books.Ptr(strings.TrimSpace(r.Author)),
		Subtitle:    optional(r.Subtitle),
		Description: optional(r.Description),
		Publisher:   optional(r.Publisher),
		ISBN:        optional(r.ISBN),
		CoverURL:    optional(r.CoverURL),
	}
	if r.PublishedYear != 0 {
		f.PublishedYear = books.Ptr(r.PublishedYear)
	}
	if r.NumberOfPages > 0 {
		f.NumberOfPages = books.Ptr(r.NumberOfPages)
	}
	return f
}

var requestFieldNames = map[string]string{
	"Q":          "q",
	"ExternalID": "external_id",
	"Title":      "title",
	"Subtitle":   "subtitle",
	"Author":     "author",
	"Publisher":  "publisher",
	"ISBN":       "isbn",
}

func (r addBookRequest) fields() books.Fields {
	f := books.Fields{
		ExternalID:  books.Ptr(r.ExternalID),
		Title:       books.Ptr(r.Title),
		Author:      books.Ptr(r.Author),
		Description: optional(r.Description),
		Publisher:   optional(r.Publisher),
		ISBN:        optional(r.ISBN),
		CoverURL:    optional(r.CoverURL),
		WorkKey:     optional(r.WorkKey),
	}
	if r.PublishedYear != 0 {
		f.PublishedYear = books.Ptr(r.PublishedYear)
	}
	if r.RemoteCoverID > 0 {
		f.RemoteCoverID = books.Ptr(r.RemoteCoverID)
	}
	return f
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func (s *Server) searchBooks(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.bindFailed(c, err)
		return
	}

	result, err := s.deps.Searcher.Search(c.Request.Context(), req.Q, req.Online)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) importBooks(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindFailed(c, err)
		return
	}

	result, report, err := s.deps.Searcher.Import(c.Request.Context(), req.Q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "report": report})
}

func (s *Server) addBook(c *gin.Context) {
	var req addBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindFailed(c, err)
		return
	}

	book, created, err := s.deps.Searcher.AddFromCatalog(c.Request.Context(), req.fields())
	if err != nil {
		s.fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"book": book, "created": created, "cover": s.deps.Searcher.CoverPath(book)})
}

func (s *Server) addManualBook(c *gin.Context) {
	var req manualBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindFailed(c, err)
		return
	}

	book, err := s.deps.Searcher.AddManual(c.Request.Context(), req.fields())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"book": book, "cover": s.deps.Searcher.CoverPath(book)})
}

// listBooks lists imported (scope=discovered, the default) or manually
// entered (scope=mine) books.
func (s *Server) listBooks(c *gin.Context) {
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}

	var (
		found []books.Book
		err   error
	)
	switch scope := c.DefaultQuery("scope", scopeDiscovered); scope {
	case scopeDiscovered:
		found, err = s.deps.Books.DiscoveredViaSearch(c.Request.Context(), limit)
	case scopeMine:
		found, err = s.deps.Books.UserCreated(c.Request.Context(), limit)
	default:
		s.bindFailed(c, errs.NewValidationError("scope", "must be one of discovered, mine"))
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": found, "total_count": len(found)})
}

func (s *Server) getBook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": books.ErrBookNotFound.Error()})
		return
	}

	book, err := s.deps.Books.FindByID(c.Request.Context(), uint(id))
	if err != nil {
		s.fail(c, err)
		return
	}
	if book == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": books.ErrBookNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"book": book, "cover": s.deps.Searcher.CoverPath(book)})
}

func (s *Server) popularBooks(c *gin.Context) {
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}

	found, err := s.deps.Books.Popular(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": found, "total_count": len(found)})
}

// limitParam reads ?limit=, capped at maxPopularLimit. It answers the request
// itself when the value is invalid.
func (s *Server) limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultPopularLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		s.bindFailed(c, errs.NewValidationError("limit", "must be a positive integer"))
		return 0, false
	}
	return min(n, maxPopularLimit), true
}

func (s *Server) rateLimit(c *gin.Context) {
	used := s.deps.Usage.RateLimitUsage(c.Request.Context())
	limit, window := s.deps.Usage.Limit()
	c.JSON(http.StatusOK, gin.H{
		"used":           used,
		"limit":          limit,
		"remaining":      max(limit-used, 0),
		"window_seconds": int(window.Seconds()),
	})
}

// cover serves a stored cover file, or redirects to the CDN when the cover
// has not been downloaded.
func (s *Server) cover(c *gin.Context) {
	id, err := strconv.Atoi(strings.TrimSuffix(c.Param("id"), ".jpg"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "cover not found"})
		return
	}

	if s.deps.Covers.Exists(id) {
		c.File(s.deps.Covers.Path(id))
		return
	}
	c.Redirect(http.StatusFound, s.deps.Covers.RemoteURL(id))
}

// bindFailed answers a request that failed binding. Validation failures are
// 422, malformed input 400.
func (s *Server) bindFailed(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errs.NewValidationError(fieldName(fe), describe(fe)).Error()})
		return
	}
	if errs.IsValidationError(err) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, search.ErrValidation), errs.IsValidationError(err), errors.Is(err, books.ErrMissingTitle):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errs.IsRateLimitError(err):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func fieldName(fe validator.FieldError) string {
	if name, ok := requestFieldNames[fe.Field()]; ok {
		return name
	}
	return strings.ToLower(fe.Field())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}
