// Package history keeps a bounded, insertion-ordered window of kinematics samples for charting.
package history

import (
	"sync"

	"github.com/aidenletourneau/forcemotion/internal/models"
)

// DefaultCapacity is the window size of the timeline charts
const DefaultCapacity = 300

// Buffer is a fixed-capacity FIFO ring of data points.
// Once full, every push evicts the oldest sample.
type Buffer struct {
	points []models.DataPoint
	head   int // index of the oldest sample
	size   int
	mu     sync.RWMutex
}

// New creates a buffer holding at most capacity points (DefaultCapacity if capacity <= 0)
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{points: make([]models.DataPoint, capacity)}
}

// Push appends p, evicting the oldest point when the buffer is full
func (b *Buffer) Push(p models.DataPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.points)
	if b.size < capacity {
		b.points[(b.head+b.size)%capacity] = p
		b.size++
		return
	}
	b.points[b.head] = p
	b.head = (b.head + 1) % capacity
}

// Points returns a copy of the buffered samples, oldest first
func (b *Buffer) Points() []models.DataPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]models.DataPoint, b.size)
	for i := 0; i < b.size; i++ {
		result[i] = b.points[(b.head+i)%len(b.points)]
	}
	return result
}

// Latest returns the newest sample
func (b *Buffer) Latest() (models.DataPoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return models.DataPoint{}, false
	}
	return b.points[(b.head+b.size-1)%len(b.points)], true
}

// Len returns the number of buffered samples
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer capacity
func (b *Buffer) Cap() int {
	return len(b.points)
}

// Clear drops every sample
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}
