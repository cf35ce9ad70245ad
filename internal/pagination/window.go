// Package pagination windows an ordered collection into fixed-size pages.
package pagination

import "sync"

// DefaultPageSize is used when a non-positive size is requested.
const DefaultPageSize = 5

// Window is a page cursor over an ordered collection. The current page is
// never clamped: selecting a page outside [1, TotalPages] yields an empty slice.
type Window[T any] struct {
	mu    sync.RWMutex
	items []T
	size  int
	page  int
}

// New returns a window positioned on page 1.
func New[T any](size int) *Window[T] {
	if size < 1 {
		size = DefaultPageSize
	}
	return &Window[T]{size: size, page: 1}
}

// SetItems replaces the collection. The current page is kept as is.
func (w *Window[T]) SetItems(items []T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = items
}

// SetPage moves the cursor to n without any bounds validation.
func (w *Window[T]) SetPage(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.page = n
}

// Page returns the current page number (1-based).
func (w *Window[T]) Page() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.page
}

// Size returns the page size.
func (w *Window[T]) Size() int {
	return w.size
}

// Len returns the number of items in the collection.
func (w *Window[T]) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.items)
}

// Items returns a copy of the whole collection.
func (w *Window[T]) Items() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]T, len(w.items))
	copy(out, w.items)
	return out
}

// TotalPages returns ceil(len/size); an empty collection has 0 pages.
func (w *Window[T]) TotalPages() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return TotalPages(len(w.items), w.size)
}

// Slice returns the items of the current page.
func (w *Window[T]) Slice() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Slice(w.items, w.page, w.size)
}

// TotalPages returns ceil(n/size).
func TotalPages(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Slice returns items[(page-1)*size : page*size] clipped to the collection,
// or an empty slice when the page lies outside it.
func Slice[T any](items []T, page, size int) []T {
	if page < 1 || size < 1 {
		return []T{}
	}

	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}

	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}
