package history

import (
	"testing"

	"github.com/aidenletourneau/forcemotion/internal/models"
)

func point(i int) models.DataPoint {
	return models.DataPoint{Time: float64(i), Position: float64(i) * 2}
}

func TestBufferBound(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushes   int
	}{
		{"empty", 5, 0},
		{"partial", 5, 3},
		{"exactly full", 5, 5},
		{"overflow by one", 5, 6},
		{"many wraps", 5, 23},
		{"timeline capacity", 300, 1000},
		{"simple variant", 100, 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.capacity)
			for i := 0; i < tt.pushes; i++ {
				b.Push(point(i))
				if b.Len() > b.Cap() {
					t.Fatalf("len %d exceeds capacity %d after %d pushes", b.Len(), b.Cap(), i+1)
				}
			}

			want := tt.pushes
			if want > tt.capacity {
				want = tt.capacity
			}
			points := b.Points()
			if len(points) != want {
				t.Fatalf("expected %d points, got %d", want, len(points))
			}

			first := tt.pushes - want
			for i, p := range points {
				if p.Time != float64(first+i) {
					t.Errorf("points[%d].Time = %v, want %v", i, p.Time, float64(first+i))
				}
			}
		})
	}
}

func TestBufferLatest(t *testing.T) {
	b := New(3)
	if _, ok := b.Latest(); ok {
		t.Error("expected no latest point on empty buffer")
	}

	for i := 0; i < 7; i++ {
		b.Push(point(i))
	}
	latest, ok := b.Latest()
	if !ok || latest.Time != 6 {
		t.Errorf("Latest() = %+v, %v; want time 6", latest, ok)
	}
}

func TestBufferClear(t *testing.T) {
	b := New(4)
	for i := 0; i < 6; i++ {
		b.Push(point(i))
	}
	b.Clear()

	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d", b.Len())
	}

	b.Push(point(42))
	points := b.Points()
	if len(points) != 1 || points[0].Time != 42 {
		t.Errorf("unexpected points after clear: %+v", points)
	}
}

func TestBufferDefaultCapacity(t *testing.T) {
	if got := New(0).Cap(); got != DefaultCapacity {
		t.Errorf("New(0).Cap() = %d, want %d", got, DefaultCapacity)
	}
	if got := New(-10).Cap(); got != DefaultCapacity {
		t.Errorf("New(-10).Cap() = %d, want %d", got, DefaultCapacity)
	}
}

func TestPointsIsCopy(t *testing.T) {
	b := New(2)
	b.Push(point(1))
	points := b.Points()
	points[0].Time = 99

	if again := b.Points(); again[0].Time != 1 {
		t.Error("Points() exposed internal storage")
	}
}
