package queue

import (
	"log"
	"sync"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/models"
)

/*
Snapshot Queue

Relayed configuration snapshots are persisted off the fan-out path. The relay enqueues
every accepted snapshot here and a single processor goroutine writes them in arrival order,
so a slow database never delays delivery to connected clients.

The queue guarantees:
1. Snapshots are processed in order (FIFO)
2. Only one snapshot is processed at a time
3. Enqueue never blocks; when the buffer is full the snapshot is dropped
*/

// QueuedSnapshot is a snapshot waiting to be processed
type QueuedSnapshot struct {
	SourceID  string
	Config    models.SimulationConfig
	Timestamp time.Time
}

// SnapshotQueue serializes snapshot processing
type SnapshotQueue struct {
	snapshots chan QueuedSnapshot
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewSnapshotQueue creates a new queue with the specified buffer size
func NewSnapshotQueue(bufferSize int) *SnapshotQueue {
	return &SnapshotQueue{
		snapshots: make(chan QueuedSnapshot, bufferSize),
		done:      make(chan struct{}),
	}
}

// Enqueue adds a snapshot for processing.
// Returns false if the queue is closed or full.
func (q *SnapshotQueue) Enqueue(sourceID string, cfg models.SimulationConfig) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		log.Printf("Snapshot queue is closed, dropping snapshot from %s", sourceID)
		return false
	}

	select {
	case q.snapshots <- QueuedSnapshot{SourceID: sourceID, Config: cfg, Timestamp: time.Now()}:
		return true
	default:
		log.Printf("Snapshot queue is full, dropping snapshot from %s", sourceID)
		return false
	}
}

// ProcessorFunc processes one snapshot
type ProcessorFunc func(s QueuedSnapshot)

// StartProcessor starts the goroutine that drains the queue sequentially.
// Done is closed once the queue has been closed and fully drained.
func (q *SnapshotQueue) StartProcessor(processor ProcessorFunc) {
	go func() {
		defer close(q.done)
		for s := range q.snapshots {
			processor(s)
		}
	}()
}

// Close stops accepting new snapshots; queued ones are still processed
func (q *SnapshotQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.snapshots)
	}
}

// Done is closed when the processor has exited
func (q *SnapshotQueue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of snapshots waiting
func (q *SnapshotQueue) Len() int {
	return len(q.snapshots)
}
