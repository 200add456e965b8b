package search

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lepinkainen/bookshelf/internal/books"
	errs "github.com/lepinkainen/bookshelf/internal/errors"
)

// ErrValidation marks caller input rejected before any lookup runs. The
// returned errors also satisfy errs.IsValidationError.
var ErrValidation = errors.New("validation failed")

var validate = validator.New(validator.WithRequiredStructEnabled())

type queryInput struct {
	Query string `validate:"required,min=2,max=255"`
}

type catalogEntry struct {
	Title         string `validate:"required,max=255"`
	Author        string `validate:"max=255"`
	ExternalID    string `validate:"max=191"`
	CoverURL      string `validate:"omitempty,url"`
	PublishedYear int    `validate:"omitempty,min=1000,max=2100"`
}

// ValidateQuery trims the query and checks it is between 2 and 255
// characters long.
func ValidateQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if err := validate.Struct(queryInput{Query: q}); err != nil {
		return "", validationError("q", err)
	}
	return q, nil
}

func validateCatalogEntry(f books.Fields) error {
	entry := catalogEntry{
		Title:  strings.TrimSpace(f.TitleValue()),
		Author: f.AuthorValue(),
	}
	if f.ExternalID != nil {
		entry.ExternalID = *f.ExternalID
	}
	if f.CoverURL != nil {
		entry.CoverURL = *f.CoverURL
	}
	if f.PublishedYear != nil {
		entry.PublishedYear = *f.PublishedYear
	}
	if err := validate.Struct(entry); err != nil {
		return validationError("", err)
	}
	return nil
}

var fieldNames = map[string]string{
	"Query":         "q",
	"Title":         "title",
	"Author":        "author",
	"ExternalID":    "external_id",
	"CoverURL":      "cover_url",
	"PublishedYear": "published_year",
}

func validationError(field string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %w", ErrValidation, errs.NewValidationError(field, err.Error()))
	}

	fe := fieldErrs[0]
	name := fieldNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}
	if field == "" {
		field = name
	}
	return fmt.Errorf("%w: %w", ErrValidation, errs.NewValidationError(field, reason(fe)))
}

func reason(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
