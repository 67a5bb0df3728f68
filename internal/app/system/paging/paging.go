// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows shown in paged lists.
const PageSize = 50

// MaxPageSize caps the "limit" query parameter.
const MaxPageSize = 200

// ParseStart extracts the human-friendly "start" query parameter (1-based index).
// Returns 1 if not present or invalid.
func ParseStart(r *http.Request) int {
	return parsePositive(query.Get(r, "start"), 1)
}

// ParseLimit extracts the "limit" query parameter, defaulting to PageSize
// and clamping to MaxPageSize.
func ParseLimit(r *http.Request) int {
	n := parsePositive(query.Get(r, "limit"), PageSize)
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

func parsePositive(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// Result holds the pagination indicators for a window.
type Result struct {
	HasPrev bool
	HasNext bool
}

// Window returns rows[start-1 : start-1+size] (clamped) along with
// prev/next indicators. rows must already be in display order.
func Window[T any](rows []T, start, size int) ([]T, Result) {
	if start < 1 {
		start = 1
	}
	if size < 1 {
		size = PageSize
	}
	lo := start - 1
	if lo >= len(rows) {
		return nil, Result{HasPrev: lo > 0}
	}
	hi := lo + size
	if hi > len(rows) {
		hi = len(rows)
	}
	return rows[lo:hi], Result{HasPrev: lo > 0, HasNext: hi < len(rows)}
}

// Range holds computed display range values for a paginated list.
type Range struct {
	Start     int `json:"start"`      // 1-based start index (0 if no results)
	End       int `json:"end"`        // 1-based end index (0 if no results)
	PrevStart int `json:"prev_start"` // start value for previous page link
	NextStart int `json:"next_start"` // start value for next page link
}

// ComputeRange calculates display range values given the current start
// index, the number of items shown and the page size in use.
func ComputeRange(start, shown, pageSize int) Range {
	if shown == 0 {
		return Range{Start: 0, End: 0, PrevStart: 1, NextStart: 1}
	}

	prevStart := start - pageSize
	if prevStart < 1 {
		prevStart = 1
	}

	return Range{
		Start:     start,
		End:       start + shown - 1,
		PrevStart: prevStart,
		NextStart: start + shown,
	}
}
