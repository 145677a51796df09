// Package physics provides the rigid-body feedback the integrator samples each frame.
package physics

import "math"

// Gravity is the downward acceleration in m/s²
const Gravity = 9.81

// Engine is the capability the integrator needs from a rigid-body engine:
// push the body along x, advance time, and read back its state.
type Engine interface {
	ApplyForce(fx float64)
	Step(dt float64)
	Position() float64
	Velocity() float64
	SetMass(m float64)
	SetFriction(mu float64)
	Reset()
}

// SlidingBlock is a box resting on a horizontal plane, moved along x by an applied force
// and slowed by Coulomb friction against the ground.
type SlidingBlock struct {
	mass     float64
	friction float64
	gravity  float64

	position        float64
	velocity        float64
	angularVelocity float64
	force           float64 // accumulated until the next Step
}

// NewSlidingBlock creates a block at rest at the origin
func NewSlidingBlock(mass, friction float64) *SlidingBlock {
	b := &SlidingBlock{gravity: Gravity}
	b.SetMass(mass)
	b.SetFriction(friction)
	return b
}

// ApplyForce adds fx newtons along x for the next step
func (b *SlidingBlock) ApplyForce(fx float64) {
	if math.IsNaN(fx) || math.IsInf(fx, 0) {
		return
	}
	b.force += fx
}

// SetMass changes the mass; non-positive values are ignored
func (b *SlidingBlock) SetMass(m float64) {
	if m > 0 && !math.IsInf(m, 0) {
		b.mass = m
	}
}

// SetFriction changes the friction coefficient, clamped to [0,1]
func (b *SlidingBlock) SetFriction(mu float64) {
	if math.IsNaN(mu) {
		return
	}
	b.friction = math.Max(0, math.Min(1, mu))
}

// Position returns x in metres
func (b *SlidingBlock) Position() float64 { return b.position }

// Velocity returns the x velocity in m/s
func (b *SlidingBlock) Velocity() float64 { return b.velocity }

// AngularVelocity returns the spin of the block; the plane never induces one, but Reset zeroes it
func (b *SlidingBlock) AngularVelocity() float64 { return b.angularVelocity }

// Reset puts the block back at rest at the origin
func (b *SlidingBlock) Reset() {
	b.position = 0
	b.velocity = 0
	b.angularVelocity = 0
	b.force = 0
}

// Step advances the block by dt seconds with semi-implicit Euler and clears applied forces.
// Friction never reverses the direction of motion within a step.
func (b *SlidingBlock) Step(dt float64) {
	defer func() { b.force = 0 }()
	if dt <= 0 || b.mass <= 0 {
		return
	}

	maxFriction := b.friction * b.mass * b.gravity

	var net float64
	switch {
	case b.velocity != 0:
		net = b.force - math.Copysign(maxFriction, b.velocity)
	case math.Abs(b.force) <= maxFriction:
		// static friction holds the block
		return
	default:
		net = b.force - math.Copysign(maxFriction, b.force)
	}

	v := b.velocity + net/b.mass*dt
	if b.velocity != 0 && v*b.velocity < 0 && math.Abs(b.force) <= maxFriction {
		v = 0
	}

	b.velocity = v
	b.position += v * dt
}
