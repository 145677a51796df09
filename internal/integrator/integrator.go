// Package integrator turns rigid-body feedback into kinematics samples, one per frame.
package integrator

import (
	"math"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/aidenletourneau/forcemotion/internal/physics"
	"github.com/aidenletourneau/forcemotion/internal/simulation"
)

// Integrator samples the engine each frame and feeds the store.
// It is driven from a single goroutine; Tick and Reset must not run concurrently.
type Integrator struct {
	store  *simulation.Store
	engine physics.Engine
	now    func() time.Time

	lastVelocity float64
	elapsed      float64
	start        time.Time // zero until the first play after a reset
}

// Option configures an Integrator
type Option func(*Integrator)

// WithClock replaces the wall clock used for the elapsed-time reference
func WithClock(now func() time.Time) Option {
	return func(i *Integrator) { i.now = now }
}

// New creates an integrator bound to a store and an engine
func New(store *simulation.Store, engine physics.Engine, opts ...Option) *Integrator {
	i := &Integrator{
		store:  store,
		engine: engine,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Tick runs one frame of dt seconds and returns the emitted sample
func (i *Integrator) Tick(dt float64) models.DataPoint {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		dt = 0
	}

	cfg := i.store.Config()
	i.engine.SetMass(cfg.Mass)
	i.engine.SetFriction(cfg.Friction)

	if cfg.IsPlaying {
		if i.start.IsZero() {
			i.start = i.now()
		}
		i.engine.ApplyForce(cfg.Force)
		i.elapsed = i.now().Sub(i.start).Seconds()
	}

	i.engine.Step(dt)

	velocity := i.engine.Velocity()
	acceleration := 0.0
	if dt > 0 {
		acceleration = (velocity - i.lastVelocity) / dt
	}
	if math.IsNaN(acceleration) || math.IsInf(acceleration, 0) {
		acceleration = 0
	}
	i.lastVelocity = velocity

	point := models.DataPoint{
		Time:         i.elapsed,
		Position:     i.engine.Position(),
		Velocity:     velocity,
		Acceleration: acceleration,
	}

	i.store.SetLiveData(point)
	if cfg.IsPlaying {
		i.store.AddDataPoint(point)
	}
	return point
}

// Reset stops the body, forgets the time reference and resets the store,
// so the next play starts a fresh trajectory from rest.
func (i *Integrator) Reset() {
	i.engine.Reset()
	i.lastVelocity = 0
	i.elapsed = 0
	i.start = time.Time{}
	i.store.Reset()
}

// Elapsed returns seconds since playback started
func (i *Integrator) Elapsed() float64 {
	return i.elapsed
}
