// Package page bounds list-shaped tool results so they fit comfortably into
// an LLM context window.
//
// Two shapes are offered. [Head] keeps the first few items and is the default
// for every list endpoint. [Paginate] wraps a page of items in an [Envelope]
// that tells the caller where to continue. Both operate on data that has
// already been fetched in full; there is no server-side paging upstream.
package page

// Size is the fixed number of items per page.
const Size = 5

// Envelope is a single page of a larger, already materialised sequence.
//
// Invariants: Count == min(Size, TotalCount-Start); HasMore iff
// Start+Count < TotalCount; NextStart is non-nil iff HasMore. Count equals
// len(Items) whenever the whole sequence is held.
type Envelope[T any] struct {
	Items      []T  `json:"items"`
	Start      int  `json:"start"`
	Count      int  `json:"count"`
	TotalCount int  `json:"totalCount"`
	HasMore    bool `json:"hasMore"`
	NextStart  *int `json:"nextStart"`
}

// Paginate returns the page of items beginning at start, with the total taken
// from len(items).
func Paginate[T any](items []T, start int) Envelope[T] {
	return PaginateTotal(items, start, len(items))
}

// PaginateTotal is [Paginate] with an explicit total count.
//
// start is clamped into [0, max(0, total-1)] so an out-of-range cursor still
// lands on data when any exists. Count, HasMore and NextStart follow total;
// Items never extends past len(items), so it may be shorter than Count when
// total claims more than is held.
func PaginateTotal[T any](items []T, start, total int) Envelope[T] {
	total = max(total, 0)
	start = max(0, min(max(total-1, 0), start))
	end := min(start+Size, total)

	pageItems := []T{}
	if lo, hi := min(start, len(items)), min(end, len(items)); lo < hi {
		pageItems = items[lo:hi]
	}

	env := Envelope[T]{
		Items:      pageItems,
		Start:      start,
		Count:      end - start,
		TotalCount: total,
	}
	if end < total {
		env.HasMore = true
		env.NextStart = &end
	}
	return env
}

// Head returns at most the first n items. It never copies.
func Head[T any](items []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(items) <= n {
		return items
	}
	return items[:n]
}
