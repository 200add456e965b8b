package books

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTitle is returned when a write is attempted without a title.
	ErrMissingTitle = errors.New("book title is required")
	// ErrBookNotFound is returned when a targeted update finds no row.
	ErrBookNotFound = errors.New("book not found")
	// ErrBatchNotFound is returned when a sync batch id does not exist.
	ErrBatchNotFound = errors.New("sync batch not found")
	// ErrBatchFinished is returned when a completed or failed batch is modified.
	ErrBatchFinished = errors.New("sync batch already finished")
	// ErrInvalidTransition is returned when a batch is moved out of order.
	ErrInvalidTransition = errors.New("invalid sync batch transition")
)

// RepositoryError wraps a storage failure with the repository operation
// that hit it.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("books: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// IsRepositoryError reports whether err is a RepositoryError (even when wrapped).
func IsRepositoryError(err error) bool {
	var repoErr *RepositoryError
	return errors.As(err, &repoErr)
}

// wrap turns storage errors into RepositoryErrors. Contract sentinels pass
// through untouched.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	for _, sentinel := range []error{ErrMissingTitle, ErrBookNotFound, ErrBatchNotFound, ErrBatchFinished, ErrInvalidTransition} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &RepositoryError{Op: op, Err: err}
}
