package sample

import (
	"fmt"
	"sync"
)

// Buffer is a bounded buffer of samples. Samples are removed from the
// buffer in a FiFo manner once it is full.
type Buffer struct {
	lock     sync.RWMutex // Guards the following
	samples  []*Sample
	next     int
	isFull   bool
	capacity int
}

// NewBuffer returns a new Buffer holding at most capacity samples
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("newBuffer: capacity must be positive, have %d",
			capacity))
	}
	return &Buffer{
		samples:  make([]*Sample, capacity),
		capacity: capacity,
	}
}

// Add adds samples to the buffer, evicting the oldest samples if the
// buffer is full
func (b *Buffer) Add(samples ...*Sample) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, s := range samples {
		b.samples[b.next] = s
		b.next++
		if b.next >= b.capacity {
			b.next = 0
			b.isFull = true
		}
	}
}

// Clear removes all samples from the buffer
func (b *Buffer) Clear() {
	b.lock.Lock()
	defer b.lock.Unlock()

	for i := range b.samples {
		b.samples[i] = nil
	}
	b.next = 0
	b.isFull = false
}

// Len returns the number of samples in the buffer
func (b *Buffer) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if b.isFull {
		return b.capacity
	}
	return b.next
}

// Capacity returns the maximum number of samples in the buffer
func (b *Buffer) Capacity() int {
	return b.capacity
}

// All returns the samples in the buffer in insertion order, oldest
// first
func (b *Buffer) All() List {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if !b.isFull {
		out := make(List, b.next)
		copy(out, b.samples[:b.next])
		return out
	}

	out := make(List, b.capacity)
	n := copy(out, b.samples[b.next:])
	copy(out[n:], b.samples[:b.next])
	return out
}
