package common

import (
	"net/http"
	"strconv"

	pkgerrors "notemesh/pkg/errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// PageParams selects a window of a list response
type PageParams struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// PageInfo describes the window returned
type PageInfo struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// ParsePage reads the page and page_size query parameters. ok is false when
// neither is present; the caller then returns the whole list.
func ParsePage(r *http.Request) (params PageParams, ok bool, err error) {
	q := r.URL.Query()
	rawPage, rawSize := q.Get("page"), q.Get("page_size")
	if rawPage == "" && rawSize == "" {
		return PageParams{}, false, nil
	}

	params = PageParams{Page: 1, PageSize: DefaultPageSize}
	if rawPage != "" {
		p, convErr := strconv.Atoi(rawPage)
		if convErr != nil || p < 1 {
			return PageParams{}, false, pkgerrors.NewValidationError("page must be a positive integer")
		}
		params.Page = p
	}
	if rawSize != "" {
		ps, convErr := strconv.Atoi(rawSize)
		if convErr != nil || ps < 1 {
			return PageParams{}, false, pkgerrors.NewValidationError("page_size must be a positive integer")
		}
		params.PageSize = min(ps, MaxPageSize)
	}
	return params, true, nil
}

// Offset is the index of the first item of the page
func (p PageParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginate returns the requested window of items. A page past the end is
// empty, not an error.
func Paginate[T any](items []T, p PageParams) ([]T, *PageInfo) {
	total := len(items)
	start := min(p.Offset(), total)
	end := min(start+p.PageSize, total)

	totalPages := 0
	if p.PageSize > 0 {
		totalPages = (total + p.PageSize - 1) / p.PageSize
	}
	return items[start:end], &PageInfo{
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
		HasPrev:    p.Page > 1,
	}
}
