// Package ringbuf implements a fixed-capacity FIFO of samples that overwrites its oldest
// entry when full.
package ringbuf

import "sync"

// DefaultCapacity matches the reference device buffer.
const DefaultCapacity = 10

// Buffer is a drop-oldest ring of float32 samples. The backing array is allocated once.
// Push and Pop are O(1), never block, and are safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	items []float32
	head  int // index of the oldest item
	n     int
}

// New creates a buffer holding at most capacity items. Non-positive capacities fall back
// to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{items: make([]float32, capacity)}
}

// Push appends v. If the buffer is full the oldest item is discarded first and
// evicted is true.
func (b *Buffer) Push(v float32) (evicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.items)
	if b.n == size {
		b.head = (b.head + 1) % size
		b.n--
		evicted = true
	}
	b.items[(b.head+b.n)%size] = v
	b.n++
	return evicted
}

// Pop removes and returns the oldest item. ok is false when the buffer is empty.
func (b *Buffer) Pop() (v float32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n == 0 {
		return 0, false
	}
	v = b.items[b.head]
	b.head = (b.head + 1) % len(b.items)
	b.n--
	return v, true
}

// Len returns the number of pending items.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.items)
}

// Clear drops all pending items.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.n = 0
}

// Snapshot returns the pending items, oldest first, without removing them.
func (b *Buffer) Snapshot() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float32, b.n)
	for i := range b.n {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}
