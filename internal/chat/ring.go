package chat

import (
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned when a ring is created with capacity below 1.
var ErrInvalidCapacity = errors.New("ring capacity must be at least 1")

// Ring is a fixed-capacity buffer that overwrites its oldest item once full.
// It is not safe for concurrent use.
type Ring[T any] struct {
	items  []T
	cursor int
	full   bool
}

// NewRing creates an empty ring holding at most capacity items.
func NewRing[T any](capacity int) (*Ring[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &Ring[T]{items: make([]T, capacity)}, nil
}

// MustRing is like NewRing but panics on an invalid capacity.
func MustRing[T any](capacity int) *Ring[T] {
	r, err := NewRing[T](capacity)
	if err != nil {
		panic(err)
	}
	return r
}

// Push stores item in the slot under the cursor and advances it.
func (r *Ring[T]) Push(item T) {
	r.items[r.cursor] = item
	r.cursor++
	if r.cursor == len(r.items) {
		r.cursor = 0
		r.full = true
	}
}

// Replay returns the retained items, oldest first.
func (r *Ring[T]) Replay() []T {
	out := make([]T, 0, r.Len())
	r.Each(func(item T) { out = append(out, item) })
	return out
}

// Each calls fn for every retained item, oldest first.
func (r *Ring[T]) Each(fn func(T)) {
	if r.full {
		for _, item := range r.items[r.cursor:] {
			fn(item)
		}
	}
	for _, item := range r.items[:r.cursor] {
		fn(item)
	}
}

// Len returns the number of retained items.
func (r *Ring[T]) Len() int {
	if r.full {
		return len(r.items)
	}
	return r.cursor
}

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }
