package live

// Ring is a fixed-capacity FIFO. Pushing into a full ring evicts the oldest value.
// Storage grows lazily up to the capacity.
type Ring[T any] struct {
	items    []T
	head     int
	capacity int
}

// NewRing returns an empty ring holding at most capacity values (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{capacity: capacity}
}

// Push appends v. When the ring was full the evicted oldest value is returned with ok=true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if len(r.items) < r.capacity {
		r.items = append(r.items, v)
		return evicted, false
	}
	evicted = r.items[r.head]
	r.items[r.head] = v
	r.head = (r.head + 1) % r.capacity
	return evicted, true
}

// Len returns the number of values held.
func (r *Ring[T]) Len() int { return len(r.items) }

// Cap returns the maximum number of values held.
func (r *Ring[T]) Cap() int { return r.capacity }

// Values returns the held values, oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.head:]...)
	return append(out, r.items[:r.head]...)
}

// Reset drops every value.
func (r *Ring[T]) Reset() {
	r.items = nil
	r.head = 0
}
