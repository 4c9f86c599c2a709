// Package feed slices ordered post sequences into numbered pages.
package feed

import "strconv"

// Page sizes per feed type.
const (
	GlobalPageSize  = 10
	GroupPageSize   = 10
	FollowPageSize  = 10
	ProfilePageSize = 5
)

type Page[T any] struct {
	Items    []T
	Number   int
	Count    int
	NumPages int
	PageSize int
}

func (p Page[T]) HasPrevious() bool { return p.Number > 1 }
func (p Page[T]) HasNext() bool     { return p.Number < p.NumPages }
func (p Page[T]) HasOtherPages() bool {
	return p.HasPrevious() || p.HasNext()
}
func (p Page[T]) PreviousNumber() int { return p.Number - 1 }
func (p Page[T]) NextNumber() int     { return p.Number + 1 }

// Numbers lists every page number, for the pager.
func (p Page[T]) Numbers() []int {
	nums := make([]int, p.NumPages)
	for i := range nums {
		nums[i] = i + 1
	}
	return nums
}

// ParsePage reads a 1-based page number; anything absent, malformed or below 1 is page 1.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Paginate returns the requested page of items. A page past the end clamps to the
// last page. An empty sequence still has one (empty) page.
func Paginate[T any](items []T, pageSize int, rawPage string) Page[T] {
	if pageSize < 1 {
		pageSize = 1
	}
	count := len(items)
	numPages := (count + pageSize - 1) / pageSize
	if numPages == 0 {
		numPages = 1
	}

	number := ParsePage(rawPage)
	if number > numPages {
		number = numPages
	}

	start := (number - 1) * pageSize
	end := start + pageSize
	if end > count {
		end = count
	}

	return Page[T]{
		Items:    items[start:end],
		Number:   number,
		Count:    count,
		NumPages: numPages,
		PageSize: pageSize,
	}
}
