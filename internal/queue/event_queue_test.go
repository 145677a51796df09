package queue

import (
	"testing"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/models"
)

func TestQueueProcessesInOrder(t *testing.T) {
	q := NewSnapshotQueue(10)

	var got []float64
	q.StartProcessor(func(s QueuedSnapshot) {
		got = append(got, s.Config.Mass)
	})

	for i := 1; i <= 5; i++ {
		if !q.Enqueue("client", models.SimulationConfig{Mass: float64(i)}) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	q.Close()

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not finish")
	}

	if len(got) != 5 {
		t.Fatalf("expected 5 snapshots, got %d", len(got))
	}
	for i, m := range got {
		if m != float64(i+1) {
			t.Errorf("snapshot %d has mass %v, want %v", i, m, float64(i+1))
		}
	}
}

func TestQueueDropsWhenFullOrClosed(t *testing.T) {
	q := NewSnapshotQueue(1)

	if !q.Enqueue("a", models.DefaultConfig()) {
		t.Fatal("first enqueue should succeed")
	}
	if q.Enqueue("a", models.DefaultConfig()) {
		t.Error("enqueue on full queue should fail")
	}
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}

	q.Close()
	q.Close()
	if q.Enqueue("a", models.DefaultConfig()) {
		t.Error("enqueue on closed queue should fail")
	}
}
