package ledger

import (
	"slices"
	"time"
)

// =============================================================================
// PAGINATION WINDOW
// =============================================================================

const (
	DefaultPage  = 1
	DefaultRange = 10
)

// PageRequest selects a 1-based page. Values below 1 fall back to the defaults.
type PageRequest struct {
	CurrentPage int
	Range       int
}

func (r PageRequest) normalized() PageRequest {
	if r.CurrentPage < 1 {
		r.CurrentPage = DefaultPage
	}
	if r.Range < 1 {
		r.Range = DefaultRange
	}
	return r
}

// Page is the envelope returned by every listing.
type Page[T any] struct {
	CurrentPage int        `json:"currentPage"`
	TotalPages  int        `json:"totalPages"`
	Range       int        `json:"range"`
	Size        int        `json:"size"`
	Items       []T        `json:"items"`
	DateInit    *time.Time `json:"dateInit,omitempty"`
	DateEnd     *time.Time `json:"dateEnd,omitempty"`
}

// Window returns the page-th slice of size items. Out of range pages are empty.
func Window[T any](items []T, page, size int) []T {
	if page < 1 || size < 1 || page > pageCount(len(items), size) {
		return []T{}
	}
	// page-1 < pageCount, so start < len(items) and cannot overflow.
	start := (page - 1) * size
	end := start + min(size, len(items)-start)
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

// pageCount is ceil(n/size) without the n+size-1 overflow.
func pageCount(n, size int) int {
	pages := n / size
	if n%size != 0 {
		pages++
	}
	return pages
}

// Paginate wraps Window with the size and page totals of the whole sequence.
func Paginate[T any](items []T, req PageRequest) Page[T] {
	req = req.normalized()
	size := len(items)
	return Page[T]{
		CurrentPage: req.CurrentPage,
		TotalPages:  pageCount(size, req.Range),
		Range:       req.Range,
		Size:        size,
		Items:       Window(items, req.CurrentPage, req.Range),
	}
}

// sortNewestFirst orders items by descending timestamp.
// Equal timestamps compare equal, so their relative order is kept.
func sortNewestFirst[T any](items []T, at func(T) time.Time) {
	slices.SortStableFunc(items, func(a, b T) int {
		return at(b).Compare(at(a))
	})
}
