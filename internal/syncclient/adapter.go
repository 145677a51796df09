// Package syncclient keeps a local simulation store in sync with a relay.
//
// Local configuration changes are published as state-update messages and incoming
// state-updated or state-snapshot messages are applied to the store. Two mechanisms stop a
// change from bouncing back and forth between clients:
//
//  1. Changes applied from the relay are tagged as remote by the store and never republished.
//  2. Every outgoing message carries the adapter's origin, and messages carrying that origin
//     are ignored on the way back in.
//
// The adapter watches the store for its whole lifetime, not just while connected. A local
// edit marks the config dirty; the writer publishes the store's current config whenever it is
// dirty, so bursts of edits collapse into one message and publishing never blocks the store.
//
// On every join a dirty adapter publishes its config instead of asking for a resync, so edits
// made offline win over the relay's snapshot. A clean adapter sends resync, and the answering
// snapshot is skipped if a local edit happened while it was in flight.
package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/aidenletourneau/forcemotion/internal/simulation"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// Server pings every 30s; anything quieter than this means the relay is gone
	readWait = 70 * time.Second
)

// Options configures an adapter
type Options struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Dialer       *websocket.Dialer
}

// Status reports the health of the sync connection
type Status struct {
	Connected  bool   `json:"connected"`
	LastError  string `json:"last_error,omitempty"`
	Reconnects int    `json:"reconnects"`
	Sent       uint64 `json:"sent"`
	Applied    uint64 `json:"applied"`
	Ignored    uint64 `json:"ignored"`
	Pending    bool   `json:"pending"` // local edit waiting to be published
}

// Adapter bridges one simulation store and the relay
type Adapter struct {
	store  *simulation.Store
	opts   Options
	origin string

	revision    atomic.Uint64
	wake        chan struct{}
	unsubscribe func()

	mu              sync.Mutex
	status          Status
	dirty           bool // local edit not yet published
	editedSinceJoin bool
}

// New creates an adapter for store and starts watching it for local edits. A store that
// already differs from the defaults counts as edited. Zero backoff bounds fall back to
// 250ms and 10s.
func New(store *simulation.Store, opts Options) *Adapter {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 250 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 10 * time.Second
		if opts.ReconnectMax < opts.ReconnectMin {
			opts.ReconnectMax = opts.ReconnectMin
		}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	a := &Adapter{
		store:  store,
		opts:   opts,
		origin: uuid.NewString(),
		wake:   make(chan struct{}, 1),
	}
	a.unsubscribe = store.Subscribe(a.onChange)
	if store.Config() != models.DefaultConfig() {
		a.markDirty()
	}
	return a
}

// Close stops watching the store. Run must have returned.
func (a *Adapter) Close() {
	a.unsubscribe()
}

// Origin is the identity stamped on every message this adapter sends
func (a *Adapter) Origin() string { return a.origin }

// Status returns a copy of the current sync status
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.status
	st.Pending = a.dirty
	return st
}

func (a *Adapter) onChange(c simulation.ConfigChange) {
	if c.Origin == simulation.OriginRemote {
		return
	}
	a.markDirty()
}

func (a *Adapter) markDirty() {
	a.mu.Lock()
	a.dirty = true
	a.editedSinceJoin = true
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// takeDirty clears and returns the dirty flag
func (a *Adapter) takeDirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.dirty
	a.dirty = false
	return d
}

// Run connects to the relay and keeps reconnecting with exponential backoff until ctx is
// cancelled. It always returns ctx.Err().
func (a *Adapter) Run(ctx context.Context) error {
	backoff := a.opts.ReconnectMin

	for {
		connected, err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = a.opts.ReconnectMin
		}

		a.mu.Lock()
		if err != nil {
			a.status.LastError = err.Error()
		}
		a.status.Reconnects++
		a.mu.Unlock()
		log.Printf("[sync] connection to %s lost: %v (retrying in %s)", a.opts.URL, err, backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > a.opts.ReconnectMax {
			backoff = a.opts.ReconnectMax
		}
	}
}

// session runs one connection until it fails or ctx is cancelled
func (a *Adapter) session(ctx context.Context) (bool, error) {
	conn, _, err := a.opts.Dialer.DialContext(ctx, a.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}

	a.setConnected(true)
	defer a.setConnected(false)
	log.Printf("[sync] connected to %s as %s", a.opts.URL, a.origin)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() { errc <- a.writeLoop(sessCtx, conn) }()
	go func() { errc <- a.readLoop(conn) }()

	var first error
	select {
	case <-ctx.Done():
	case first = <-errc:
	}

	// Stop both loops before returning so nothing touches the store afterwards
	cancel()
	conn.Close()
	if first == nil {
		<-errc
		<-errc
	} else {
		<-errc
	}
	return true, first
}

func (a *Adapter) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	a.mu.Lock()
	a.editedSinceJoin = false
	a.mu.Unlock()

	if a.takeDirty() {
		// Offline edits win: publish them instead of pulling the relay's snapshot
		if err := a.publish(conn); err != nil {
			return err
		}
	} else if err := a.write(conn, models.Message{Type: models.TypeResync, Origin: a.origin}); err != nil {
		return fmt.Errorf("resync failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case <-a.wake:
			if !a.takeDirty() {
				continue
			}
			if err := a.publish(conn); err != nil {
				return err
			}
		}
	}
}

// publish sends the store's current config. On failure the config stays dirty for the next join.
func (a *Adapter) publish(conn *websocket.Conn) error {
	msg, err := models.NewMessage(models.TypeStateUpdate, a.origin, a.revision.Add(1), a.store.Config())
	if err != nil {
		log.Printf("[sync] dropping local update: %v", err)
		return nil
	}
	if err := a.write(conn, msg); err != nil {
		a.mu.Lock()
		a.dirty = true
		a.mu.Unlock()
		return fmt.Errorf("publish failed: %w", err)
	}

	a.mu.Lock()
	a.status.Sent++
	a.mu.Unlock()
	return nil
}

func (a *Adapter) write(conn *websocket.Conn, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (a *Adapter) readLoop(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[sync] ignoring malformed frame: %v", err)
			a.countIgnored()
			continue
		}
		a.handleIncoming(msg)
	}
}

func (a *Adapter) handleIncoming(msg models.Message) {
	if msg.Origin == a.origin {
		a.countIgnored()
		return
	}

	if msg.Type == models.TypeStateSnapshot {
		a.mu.Lock()
		stale := a.editedSinceJoin
		a.mu.Unlock()
		if stale {
			// A local edit overtook the resync and has been published instead
			a.countIgnored()
			return
		}
	}

	switch msg.Type {
	case models.TypeStateUpdated, models.TypeStateSnapshot:
		cfg, err := models.DecodeConfig(msg.Payload)
		if err != nil {
			log.Printf("[sync] ignoring %s: %v", msg.Type, err)
			a.countIgnored()
			return
		}
		a.store.ApplyRemote(cfg)
		a.mu.Lock()
		a.status.Applied++
		a.mu.Unlock()
	default:
		a.countIgnored()
	}
}

func (a *Adapter) countIgnored() {
	a.mu.Lock()
	a.status.Ignored++
	a.mu.Unlock()
}

func (a *Adapter) setConnected(connected bool) {
	a.mu.Lock()
	a.status.Connected = connected
	if connected {
		a.status.LastError = ""
	}
	a.mu.Unlock()
}
