package integrator

import (
	"context"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/models"
)

// DefaultFPS is the nominal display refresh the loop emulates
const DefaultFPS = 60

// Ticker is anything that can run one frame
type Ticker interface {
	Tick(dt float64) models.DataPoint
}

// Loop drives a Ticker from a timer, standing in for the display refresh callback.
// Each tick receives the measured wall time since the previous one.
type Loop struct {
	Target   Ticker
	Interval time.Duration
	Frames   int                    // stop after this many frames; 0 runs until ctx is done
	OnFrame  func(models.DataPoint) // optional, called after every frame
}

// NewLoop creates a loop running target at fps frames per second
func NewLoop(target Ticker, fps int) *Loop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Loop{Target: target, Interval: time.Second / time.Duration(fps)}
}

// Run ticks until ctx is cancelled or Frames have run. It returns the number of frames run.
func (l *Loop) Run(ctx context.Context) int {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	frames := 0
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return frames
		case now := <-ticker.C:
			dt := l.Interval.Seconds()
			if !last.IsZero() {
				dt = now.Sub(last).Seconds()
			}
			last = now

			point := l.Target.Tick(dt)
			if l.OnFrame != nil {
				l.OnFrame(point)
			}

			frames++
			if l.Frames > 0 && frames >= l.Frames {
				return frames
			}
		}
	}
}
