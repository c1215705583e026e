package importexport

import (
	"context"
	"fmt"
)

// Query loads one page of items.
type Query func(ctx context.Context, offset, limit int) ([]any, error)

// Iterator walks a source of items.
type Iterator interface {
	Rewind(ctx context.Context) error
	Valid() bool
	Current() any
	Next(ctx context.Context) error
}

// BufferedIterator loads a Query one page at a time.
type BufferedIterator struct {
	query    Query
	pageSize int
	offset   int
	page     []any
	pos      int
}

// NewBufferedIterator creates an iterator over query fetching pageSize items
// per round trip.
func NewBufferedIterator(query Query, pageSize int) *BufferedIterator {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &BufferedIterator{query: query, pageSize: pageSize}
}

// Rewind restarts the iteration and loads the first page.
func (it *BufferedIterator) Rewind(ctx context.Context) error {
	it.offset = 0
	return it.load(ctx)
}

// Valid reports whether Current holds an item.
func (it *BufferedIterator) Valid() bool { return it.pos < len(it.page) }

// Current returns the item at the cursor.
func (it *BufferedIterator) Current() any {
	if !it.Valid() {
		return nil
	}
	return it.page[it.pos]
}

// Next advances the cursor, loading the next page when the current one is
// exhausted and was full.
func (it *BufferedIterator) Next(ctx context.Context) error {
	it.pos++
	if it.pos < len(it.page) || len(it.page) < it.pageSize {
		return nil
	}
	it.offset += it.pageSize
	return it.load(ctx)
}

func (it *BufferedIterator) load(ctx context.Context) error {
	page, err := it.query(ctx, it.offset, it.pageSize)
	if err != nil {
		return fmt.Errorf("load page at offset %d: %w", it.offset, err)
	}
	it.page = page
	it.pos = 0
	return nil
}

// SliceIterator iterates over a fixed slice.
type SliceIterator struct {
	items []any
	pos   int
}

// NewSliceIterator creates an iterator over items.
func NewSliceIterator(items []any) *SliceIterator {
	return &SliceIterator{items: items}
}

// Rewind restarts the iteration.
func (it *SliceIterator) Rewind(context.Context) error {
	it.pos = 0
	return nil
}

// Valid reports whether Current holds an item.
func (it *SliceIterator) Valid() bool { return it.pos < len(it.items) }

// Next advances the cursor.
func (it *SliceIterator) Next(context.Context) error {
	it.pos++
	return nil
}

// Current returns the item at the cursor.
func (it *SliceIterator) Current() any {
	if !it.Valid() {
		return nil
	}
	return it.items[it.pos]
}
