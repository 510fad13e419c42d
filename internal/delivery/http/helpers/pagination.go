package helpers

import (
	"net/http"
	"strconv"
)

// Pagination query parameter defaults and limits.
const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// PaginationParams is a 1-based page request.
type PaginationParams struct {
	Page     int
	PageSize int
}

// ParsePagination reads page and page_size from the request query string,
// clamps them to valid ranges, and returns PaginationParams.
// Invalid or missing values fall back to defaults.
func ParsePagination(r *http.Request) PaginationParams {
	page := DefaultPage
	if s := r.URL.Query().Get("page"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 1 {
			page = v
		}
	}
	pageSize := DefaultPageSize
	if s := r.URL.Query().Get("page_size"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 1 {
			pageSize = min(v, MaxPageSize)
		}
	}
	return PaginationParams{Page: page, PageSize: pageSize}
}

// PaginationMeta is the pagination metadata included in paginated list responses.
// swagger:model PaginationMeta
type PaginationMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPaginationMeta builds PaginationMeta from the current page, page size, and total count.
// TotalPages is computed as ceiling(total / pageSize); if pageSize is 0, TotalPages is 0.
func NewPaginationMeta(page, pageSize, total int) PaginationMeta {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return PaginationMeta{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Page is one page of an already ordered listing.
type Page[T any] struct {
	Items      []T            `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// Paginate slices items according to p. Pages past the end are empty.
func Paginate[T any](items []T, p PaginationParams) Page[T] {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	total := len(items)
	start := min((p.Page-1)*p.PageSize, total)
	end := min(start+p.PageSize, total)
	out := items[start:end]
	if out == nil {
		out = []T{}
	}
	return Page[T]{Items: out, Pagination: NewPaginationMeta(p.Page, p.PageSize, total)}
}
