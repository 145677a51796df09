package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Relay message types
const (
	TypeStateUpdate   = "state-update"   // client -> relay
	TypeStateUpdated  = "state-updated"  // relay -> client
	TypeResync        = "resync"         // client -> relay, asks for the last known snapshot
	TypeStateSnapshot = "state-snapshot" // relay -> client, answer to resync
)

// Control ranges of the configuration sliders
const (
	MinMass     = 0.1
	MaxMass     = 10.0
	MinForce    = 0.0
	MaxForce    = 50.0
	MinFriction = 0.0
	MaxFriction = 1.0
)

// Default configuration values
const (
	DefaultMass     = 1.0
	DefaultForce    = 10.0
	DefaultFriction = 0.1
)

// ErrMalformedPayload is returned when a relay payload is missing or cannot be decoded
var ErrMalformedPayload = errors.New("malformed simulation payload")

// SimulationConfig is the replicated simulation configuration
type SimulationConfig struct {
	Mass      float64 `json:"mass" yaml:"mass"`
	Force     float64 `json:"force" yaml:"force"`
	Friction  float64 `json:"friction" yaml:"friction"`
	IsPlaying bool    `json:"isPlaying" yaml:"is_playing"`
}

// DefaultConfig returns the configuration a store starts with and resets to
func DefaultConfig() SimulationConfig {
	return SimulationConfig{
		Mass:     DefaultMass,
		Force:    DefaultForce,
		Friction: DefaultFriction,
	}
}

// Clamped returns a copy with every scalar forced into its control range.
// NaN fields fall back to the defaults.
func (c SimulationConfig) Clamped() SimulationConfig {
	c.Mass = ClampMass(c.Mass)
	c.Force = ClampForce(c.Force)
	c.Friction = ClampFriction(c.Friction)
	return c
}

// ClampMass keeps mass strictly positive
func ClampMass(v float64) float64 { return clamp(v, MinMass, MaxMass, DefaultMass) }

// ClampForce keeps force non-negative
func ClampForce(v float64) float64 { return clamp(v, MinForce, MaxForce, DefaultForce) }

// ClampFriction keeps friction in [0,1]
func ClampFriction(v float64) float64 { return clamp(v, MinFriction, MaxFriction, DefaultFriction) }

func clamp(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}

// DataPoint is one timestamped kinematics sample
type DataPoint struct {
	Time         float64 `json:"time"`
	Position     float64 `json:"position"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
}

// LiveData holds the observables of the most recent frame
type LiveData struct {
	Position     float64 `json:"position"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
}

// Live strips the timestamp from a data point
func (p DataPoint) Live() LiveData {
	return LiveData{Position: p.Position, Velocity: p.Velocity, Acceleration: p.Acceleration}
}

// Message represents a relay WebSocket message
type Message struct {
	Type     string          `json:"type"`
	Origin   string          `json:"origin,omitempty"`   // Sender identity used for echo suppression
	Revision uint64          `json:"revision,omitempty"` // Sender-local change counter
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message carrying cfg as its payload
func NewMessage(msgType, origin string, revision uint64, cfg SimulationConfig) (Message, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	return Message{Type: msgType, Origin: origin, Revision: revision, Payload: payload}, nil
}

// wireConfig accepts numbers either bare or wrapped in a one-element array,
// which is how slider widgets emit them.
type wireConfig struct {
	Mass      *json.RawMessage `json:"mass"`
	Force     *json.RawMessage `json:"force"`
	Friction  *json.RawMessage `json:"friction"`
	IsPlaying *bool            `json:"isPlaying"`
}

// DecodeConfig parses a relay payload. Every field is required.
func DecodeConfig(raw json.RawMessage) (SimulationConfig, error) {
	if len(raw) == 0 {
		return SimulationConfig{}, ErrMalformedPayload
	}

	var w wireConfig
	if err := json.Unmarshal(raw, &w); err != nil {
		return SimulationConfig{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if w.IsPlaying == nil {
		return SimulationConfig{}, fmt.Errorf("%w: missing isPlaying", ErrMalformedPayload)
	}

	var cfg SimulationConfig
	fields := []struct {
		name string
		raw  *json.RawMessage
		dst  *float64
	}{
		{"mass", w.Mass, &cfg.Mass},
		{"force", w.Force, &cfg.Force},
		{"friction", w.Friction, &cfg.Friction},
	}
	for _, f := range fields {
		if f.raw == nil {
			return SimulationConfig{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, f.name)
		}
		v, err := parseNumber(*f.raw)
		if err != nil {
			return SimulationConfig{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, f.name, err)
		}
		*f.dst = v
	}
	cfg.IsPlaying = *w.IsPlaying
	return cfg, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var arr []float64
	if err := json.Unmarshal(raw, &arr); err != nil {
		return 0, fmt.Errorf("not a number: %s", string(raw))
	}
	if len(arr) != 1 {
		return 0, fmt.Errorf("expected one element, got %d", len(arr))
	}
	return arr[0], nil
}
