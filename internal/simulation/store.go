// Package simulation holds the client-local simulation state: the replicated configuration,
// the latest observables and the bounded history that feeds the charts.
//
// The Store is the only way to mutate that state. Every mutation replaces the state under a
// single lock, so readers always observe a consistent snapshot.
package simulation

import (
	"math"
	"sort"
	"sync"

	"github.com/aidenletourneau/forcemotion/internal/history"
	"github.com/aidenletourneau/forcemotion/internal/models"
)

// Origin tells listeners who caused a configuration change
type Origin int

const (
	// OriginLocal marks edits made on this client
	OriginLocal Origin = iota
	// OriginRemote marks updates applied from the relay
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// ConfigChange is delivered to listeners after the configuration changed
type ConfigChange struct {
	Config   models.SimulationConfig
	Previous models.SimulationConfig
	Origin   Origin
}

// State is a consistent copy of everything the store holds
type State struct {
	Config  models.SimulationConfig
	Live    models.LiveData
	History []models.DataPoint
}

// Store is the single source of truth for one client
type Store struct {
	mu      sync.RWMutex
	config  models.SimulationConfig
	live    models.LiveData
	history *history.Buffer

	// notifyMu spans commit and notify so listeners see changes in commit order
	notifyMu    sync.Mutex
	listenersMu sync.Mutex
	listeners   map[int]func(ConfigChange)
	nextID      int
}

// NewStore creates a store with default configuration and a history of the given capacity
func NewStore(historyCapacity int) *Store {
	return &Store{
		config:    models.DefaultConfig(),
		history:   history.New(historyCapacity),
		listeners: make(map[int]func(ConfigChange)),
	}
}

// Snapshot returns a copy of the whole state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return State{
		Config:  s.config,
		Live:    s.live,
		History: s.history.Points(),
	}
}

// Config returns the current configuration
func (s *Store) Config() models.SimulationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// LiveData returns the observables of the latest frame
func (s *Store) LiveData() models.LiveData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// History returns the buffered samples, oldest first
func (s *Store) History() []models.DataPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Points()
}

// HistoryCapacity returns the maximum number of buffered samples
func (s *Store) HistoryCapacity() int {
	return s.history.Cap()
}

// SetMass replaces the mass, clamped to the control range. NaN is ignored.
func (s *Store) SetMass(v float64) {
	if math.IsNaN(v) {
		return
	}
	s.updateConfig(OriginLocal, func(c *models.SimulationConfig) { c.Mass = models.ClampMass(v) })
}

// SetForce replaces the applied force, clamped to the control range. NaN is ignored.
func (s *Store) SetForce(v float64) {
	if math.IsNaN(v) {
		return
	}
	s.updateConfig(OriginLocal, func(c *models.SimulationConfig) { c.Force = models.ClampForce(v) })
}

// SetFriction replaces the friction coefficient, clamped to [0,1]. NaN is ignored.
func (s *Store) SetFriction(v float64) {
	if math.IsNaN(v) {
		return
	}
	s.updateConfig(OriginLocal, func(c *models.SimulationConfig) { c.Friction = models.ClampFriction(v) })
}

// SetPlaying toggles playback. Time and history are left untouched.
func (s *Store) SetPlaying(playing bool) {
	s.updateConfig(OriginLocal, func(c *models.SimulationConfig) { c.IsPlaying = playing })
}

// ApplyRemote replaces all four configuration fields at once and tags the change as remote
func (s *Store) ApplyRemote(cfg models.SimulationConfig) {
	s.updateConfig(OriginRemote, func(c *models.SimulationConfig) { *c = cfg.Clamped() })
}

// AddDataPoint appends p to the history. It is a no-op while paused.
func (s *Store) AddDataPoint(p models.DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.IsPlaying {
		return
	}
	s.history.Push(p)
}

// SetLiveData overwrites the live observables regardless of play state
func (s *Store) SetLiveData(p models.DataPoint) {
	s.mu.Lock()
	s.live = p.Live()
	s.mu.Unlock()
}

// Reset restores the default configuration, clears the history and zeroes the live data
func (s *Store) Reset() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.config
	s.config = models.DefaultConfig()
	s.live = models.LiveData{}
	s.history.Clear()
	next := s.config
	s.mu.Unlock()

	if prev != next {
		s.notify(ConfigChange{Config: next, Previous: prev, Origin: OriginLocal})
	}
}

// Subscribe registers fn for configuration changes and returns a function that removes it.
// Listeners run on the mutating goroutine in commit order. They must not block or mutate
// the store.
func (s *Store) Subscribe(fn func(ConfigChange)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Store) updateConfig(origin Origin, mutate func(*models.SimulationConfig)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.config
	next := prev
	mutate(&next)
	s.config = next
	s.mu.Unlock()

	if prev != next {
		s.notify(ConfigChange{Config: next, Previous: prev, Origin: origin})
	}
}

func (s *Store) notify(change ConfigChange) {
	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(ConfigChange), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
