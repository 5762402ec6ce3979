package buffer

// Window is a bounded FIFO backed by a fixed-capacity circular buffer.
// When full, a push evicts the oldest entry; the window never exceeds its
// capacity. It is the building block for the bounded history buffers in the
// breathing pipeline (envelope means, classifier decisions, inhalation
// records), where eviction order is an invariant rather than an accident.
//
// Unlike RingBuffer, Window has no reader side and no locking: it belongs
// to a single pipeline stage and is accessed only from the processing
// worker.
type Window[T any] struct {
	buf    []T
	pos    int // next write position
	filled int // number of slots filled, up to len(buf)
}

// NewWindow creates a Window with the given capacity. Panics if capacity
// is not positive.
func NewWindow[T any](capacity int) *Window[T] {
	if capacity <= 0 {
		panic("buffer: window capacity must be positive")
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry if the window is full.
func (w *Window[T]) Push(v T) {
	w.buf[w.pos] = v
	w.pos = (w.pos + 1) % len(w.buf)
	if w.filled < len(w.buf) {
		w.filled++
	}
}

// Len returns the number of entries currently held.
func (w *Window[T]) Len() int {
	return w.filled
}

// Cap returns the fixed capacity.
func (w *Window[T]) Cap() int {
	return len(w.buf)
}

// Values returns the entries oldest first. The returned slice is a copy.
func (w *Window[T]) Values() []T {
	out := make([]T, w.filled)
	for i := range out {
		out[i] = w.at(i)
	}
	return out
}

// Last returns up to n of the newest entries, oldest first.
func (w *Window[T]) Last(n int) []T {
	if n > w.filled {
		n = w.filled
	}
	out := make([]T, n)
	for i := range out {
		out[i] = w.at(w.filled - n + i)
	}
	return out
}

// Newest returns the most recently pushed entry. The second return value
// is false if the window is empty.
func (w *Window[T]) Newest() (T, bool) {
	var zero T
	if w.filled == 0 {
		return zero, false
	}
	return w.at(w.filled - 1), true
}

// Reset discards all entries. Capacity is retained.
func (w *Window[T]) Reset() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.pos = 0
	w.filled = 0
}

// at returns the i-th entry counting from the oldest.
func (w *Window[T]) at(i int) T {
	idx := (w.pos - w.filled + i + len(w.buf)) % len(w.buf)
	return w.buf[idx]
}
