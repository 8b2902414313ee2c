package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 200
)

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"totalCount"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"hasMore"`
}

// parsePagination reads "limit" and "offset" query parameters. Missing,
// invalid or non-positive values fall back to the defaults; limit is capped
// at maxPageLimit.
func parsePagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()

	limit = defaultPageLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}

// paginateSlice returns (start, end) indices for a collection of totalCount
// items. If offset exceeds totalCount, start == end (empty page).
func paginateSlice(totalCount, limit, offset int) (start, end int, meta PaginationMeta) {
	start = min(offset, totalCount)
	end = min(start+limit, totalCount)
	meta = PaginationMeta{
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < totalCount,
	}
	return start, end, meta
}

// paginate applies the request's limit and offset to items.
func paginate[T any](r *http.Request, items []T) ([]T, PaginationMeta) {
	limit, offset := parsePagination(r)
	start, end, meta := paginateSlice(len(items), limit, offset)
	return items[start:end], meta
}
