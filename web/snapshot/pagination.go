package snapshot

import (
	"errors"
	"fmt"
)

// Default pagination values
const (
	DefaultPage    = 1
	DefaultPerPage = 50
	MaxPerPage     = 100
)

// Page is a 1-based page number
type Page uint64

// PerPage is the number of rows per page
type PerPage uint64

// Pagination validation errors
var (
	ErrPerPageTooLarge = errors.New("per_page exceeds maximum limit")
)

// ParsePage creates a Page, defaulting zero to the first page
func ParsePage(page uint64) Page {
	if page == 0 {
		return Page(DefaultPage)
	}
	return Page(page)
}

// ParsePerPage creates a PerPage, defaulting zero and rejecting values above MaxPerPage
func ParsePerPage(perPage uint64) (PerPage, error) {
	if perPage == 0 {
		return PerPage(DefaultPerPage), nil
	}
	if perPage > MaxPerPage {
		return 0, fmt.Errorf("%w: must be between 1 and %d", ErrPerPageTooLarge, MaxPerPage)
	}
	return PerPage(perPage), nil
}

func (p Page) Uint64() uint64 {
	return uint64(p)
}

func (pp PerPage) Uint64() uint64 {
	return uint64(pp)
}
