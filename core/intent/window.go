package intent

// DisplayWindow is the slice of a pre-fetched result pool currently shown
// to the user. The pool is over-fetched once per search, so advancing the
// window never re-queries the catalog.
type DisplayWindow struct {
	StartIndex int
	Count      int
}

// Reset rewinds the window for a new search.
func (w *DisplayWindow) Reset(count int) {
	if count <= 0 {
		count = defaultCount
	}
	w.StartIndex = 0
	w.Count = count
}

// Advance moves the window past the items currently shown and adopts the
// newly requested count.
func (w *DisplayWindow) Advance(count int) {
	w.StartIndex += w.Count
	if count > 0 {
		w.Count = count
	}
}

// Apply updates the window from one extracted intent.
func (w *DisplayWindow) Apply(searchIntent SearchIntent) {
	if searchIntent.IsPagination {
		w.Advance(searchIntent.Count)
		return
	}
	w.Reset(searchIntent.Count)
}

// Slice returns the window's view of the pool, clamped to its bounds.
func Slice[T any](w DisplayWindow, pool []T) []T {
	start := w.StartIndex
	if start >= len(pool) {
		return nil
	}
	end := start + w.Count
	if end > len(pool) {
		end = len(pool)
	}
	return pool[start:end]
}
