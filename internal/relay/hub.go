// Package relay fans configuration snapshots out to every connected client.
//
// The hub keeps no per-client state. A state-update from one connection is forwarded
// verbatim, as state-updated, to all other connections. The only thing it remembers is the
// last valid snapshot, so a client that joins late can ask for it with a resync request.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/logging"
	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/aidenletourneau/forcemotion/internal/registry"
)

// ServerOrigin tags updates that originate on the relay itself (preset activation)
const ServerOrigin = "relay"

// Persister receives every accepted snapshot, typically a queue in front of a database
type Persister interface {
	Enqueue(sourceID string, cfg models.SimulationConfig) bool
}

// Publisher forwards accepted updates to relays running in other processes
type Publisher interface {
	Publish(ctx context.Context, msg models.Message) error
}

// Hub is the single shared room all clients join
type Hub struct {
	registry  *registry.Registry
	logStore  *logging.LogStore
	persister Persister
	publisher Publisher

	mu       sync.RWMutex
	latest   models.SimulationConfig
	hasState bool
	updated  time.Time
}

// NewHub creates a hub over the given client registry
func NewHub(reg *registry.Registry, logStore *logging.LogStore) *Hub {
	return &Hub{registry: reg, logStore: logStore}
}

// SetPersister attaches snapshot persistence
func (h *Hub) SetPersister(p Persister) { h.persister = p }

// SetPublisher attaches a cross-process publisher
func (h *Hub) SetPublisher(p Publisher) { h.publisher = p }

// Restore seeds the last known snapshot, e.g. from the database at startup
func (h *Hub) Restore(cfg models.SimulationConfig, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = cfg
	h.hasState = true
	h.updated = at
}

// Latest returns the last valid snapshot seen by the hub
func (h *Hub) Latest() (models.SimulationConfig, time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.updated, h.hasState
}

// HandleMessage processes one inbound message from a connected client
func (h *Hub) HandleMessage(from *registry.Client, msg models.Message) {
	switch msg.Type {
	case models.TypeStateUpdate:
		h.handleStateUpdate(from, msg)
	case models.TypeResync:
		h.handleResync(from)
	default:
		h.logStore.LogAndStore(logging.LevelWarning, "Unknown message type from %s: %q", from.ID, msg.Type)
	}
}

func (h *Hub) handleStateUpdate(from *registry.Client, msg models.Message) {
	cfg, err := models.DecodeConfig(msg.Payload)
	if err != nil {
		h.logStore.LogAndStore(logging.LevelWarning, "Dropping state-update from %s: %v", from.ID, err)
		return
	}

	h.remember(cfg)

	out := models.Message{
		Type:     models.TypeStateUpdated,
		Origin:   msg.Origin,
		Revision: msg.Revision,
		Payload:  msg.Payload,
	}
	delivered := h.Broadcast(out, from.ID)
	h.logStore.LogAndStore(logging.LevelInfo, "state-update from %s relayed to %d clients", from.ID, delivered)

	h.persist(from.ID, cfg)
	h.publish(out)
}

func (h *Hub) handleResync(from *registry.Client) {
	cfg, _, ok := h.Latest()
	if !ok {
		return
	}

	msg, err := models.NewMessage(models.TypeStateSnapshot, ServerOrigin, 0, cfg)
	if err != nil {
		h.logStore.LogAndStore(logging.LevelError, "Failed to build snapshot for %s: %v", from.ID, err)
		return
	}
	if !h.send(from, msg) {
		h.logStore.LogAndStore(logging.LevelWarning, "Snapshot for %s dropped (send queue full)", from.ID)
	}
}

// Publish pushes a relay-originated configuration to every connected client
func (h *Hub) Publish(cfg models.SimulationConfig) (int, error) {
	msg, err := models.NewMessage(models.TypeStateUpdated, ServerOrigin, 0, cfg)
	if err != nil {
		return 0, err
	}

	h.remember(cfg)
	delivered := h.Broadcast(msg, "")
	h.persist(ServerOrigin, cfg)
	h.publish(msg)
	return delivered, nil
}

// DeliverRemote fans out an update that was accepted by another relay process
func (h *Hub) DeliverRemote(msg models.Message) {
	cfg, err := models.DecodeConfig(msg.Payload)
	if err != nil {
		h.logStore.LogAndStore(logging.LevelWarning, "Dropping remote update: %v", err)
		return
	}
	h.remember(cfg)
	msg.Type = models.TypeStateUpdated
	h.Broadcast(msg, "")
}

// Broadcast sends msg to every client except the one with excludeID.
// It returns the number of clients the message was queued for.
func (h *Hub) Broadcast(msg models.Message, excludeID string) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logStore.LogAndStore(logging.LevelError, "Error marshaling message: %v", err)
		return 0
	}

	delivered := 0
	for _, client := range h.registry.GetAll() {
		if client.ID == excludeID {
			continue
		}
		if client.TrySend(data) {
			delivered++
		} else {
			h.logStore.LogAndStore(logging.LevelWarning, "Send queue full for %s, dropping %s", client.ID, msg.Type)
		}
	}
	return delivered
}

func (h *Hub) send(to *registry.Client, msg models.Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return to.TrySend(data)
}

func (h *Hub) remember(cfg models.SimulationConfig) {
	h.mu.Lock()
	h.latest = cfg
	h.hasState = true
	h.updated = time.Now()
	h.mu.Unlock()
}

func (h *Hub) persist(sourceID string, cfg models.SimulationConfig) {
	if h.persister == nil {
		return
	}
	h.persister.Enqueue(sourceID, cfg)
}

func (h *Hub) publish(msg models.Message) {
	if h.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.publisher.Publish(ctx, msg); err != nil {
		h.logStore.LogAndStore(logging.LevelError, "Failed to publish update to other relays: %v", err)
	}
}
