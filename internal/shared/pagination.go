package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Limit int `json:"limit"`
}

// Page is the envelope every list endpoint returns.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, limit, total int) Pagination {
	page, limit = NormalizePage(page, limit)
	pages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{Total: total, Page: page, Pages: pages, Limit: limit}
}

// NormalizePage applies defaults and bounds to page/limit inputs.
func NormalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return page, limit
}

// Offset returns the row offset for page/limit.
func Offset(page, limit int) int {
	page, limit = NormalizePage(page, limit)
	return (page - 1) * limit
}

// NewPage builds the list envelope, never returning a nil item slice.
func NewPage[T any](items []T, page, limit, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Pagination: NewPagination(page, limit, total)}
}

// WholePage wraps an unpaginated result set in the list envelope.
func WholePage[T any](items []T) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if len(items) > 0 {
		pages = 1
	}
	return Page[T]{Items: items, Pagination: Pagination{Total: len(items), Page: 1, Pages: pages, Limit: len(items)}}
}
