package capture

// Ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

// NewRing returns a ring holding at least one item.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) Len() int { return r.n }
func (r *Ring[T]) Cap() int { return len(r.buf) }

func (r *Ring[T]) Push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Drain returns the contents oldest first and empties the ring.
func (r *Ring[T]) Drain() []T {
	out := make([]T, r.n)
	var zero T
	for i := range out {
		j := (r.start + i) % len(r.buf)
		out[i] = r.buf[j]
		r.buf[j] = zero
	}
	r.start, r.n = 0, 0
	return out
}
