package domain

import (
	"math"
	"time"
)

// CatalogStats is the singleton aggregate derived from the catalog and the
// favorites table. It is recomputed after every count-affecting mutation and
// never treated as authoritative.
type CatalogStats struct {
	TotalSeen        int       `json:"total_seen"`
	TotalFavorites   int       `json:"total_favorites"`
	TotalTimeSpentMs int64     `json:"total_time_spent_ms"`
	LastActiveAt     time.Time `json:"last_active_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// Page is one window of a paginated result. A nil NextKey means the result
// set is exhausted; a nil PrevKey means this is the first page.
type Page[T any] struct {
	Items   []T  `json:"items"`
	PrevKey *int `json:"prev_key,omitempty"`
	NextKey *int `json:"next_key,omitempty"`
}

// HasMore reports whether a following page exists.
func (p Page[T]) HasMore() bool {
	return p.NextKey != nil
}

// Window returns the page-relative [start, end) bounds over total items and
// the matching Page keys. start >= total means the page is past the end.
// A page whose offset does not fit in an int starts at math.MaxInt.
func Window(page, size, total int) (start, end int, prev, next *int) {
	if page > 0 {
		p := page - 1
		prev = &p
	}
	if size > 0 && page > (math.MaxInt-size)/size {
		return math.MaxInt, math.MaxInt, prev, nil
	}
	start = page * size
	end = min(start+size, total)
	if start < total && end < total {
		n := page + 1
		next = &n
	}
	if end < start {
		end = start
	}
	return start, end, prev, next
}
