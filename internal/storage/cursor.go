package storage

import "context"

// PageFunc fetches up to limit items following the position after, and
// returns the position of the last item returned. An empty page ends iteration.
type PageFunc[T any] func(ctx context.Context, after string, limit uint64) (items []T, next string, err error)

// Cursor walks a keyset-paginated query one item at a time without holding
// a result set open between pages.
//
//	c := db.EndedGames(100)
//	for c.Next(ctx) {
//		g := c.Value()
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor[T any] struct {
	fetch    PageFunc[T]
	pageSize uint64

	page  []T
	idx   int
	after string
	done  bool
	err   error
}

// NewCursor returns a cursor that fetches pageSize items per page.
func NewCursor[T any](pageSize uint64, fetch PageFunc[T]) *Cursor[T] {
	if pageSize == 0 {
		pageSize = 100
	}
	return &Cursor[T]{fetch: fetch, pageSize: pageSize, idx: -1}
}

// Next advances to the next item, fetching a new page when needed.
func (c *Cursor[T]) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.idx+1 < len(c.page) {
		c.idx++
		return true
	}
	if c.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}

	items, next, err := c.fetch(ctx, c.after, c.pageSize)
	if err != nil {
		c.err = err
		return false
	}
	if uint64(len(items)) < c.pageSize {
		c.done = true
	}
	if len(items) == 0 {
		return false
	}
	c.page, c.idx, c.after = items, 0, next
	return true
}

// Value returns the current item.
func (c *Cursor[T]) Value() T {
	return c.page[c.idx]
}

// Err returns the first error encountered while fetching.
func (c *Cursor[T]) Err() error {
	return c.err
}
