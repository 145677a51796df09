package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultSendBuffer is the per-client outbound queue length
const DefaultSendBuffer = 64

// Client is one connected relay session. It has no identity beyond its random ID
// and carries no simulation state.
type Client struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	Connection  *websocket.Conn // nil for clients registered without a socket (tests)

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Send returns the outbound queue drained by the connection's writer.
// It is never closed; watch Done instead.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// TrySend queues data without blocking. It returns false if the client is closed
// or its queue is full.
func (c *Client) TrySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Done is closed when the client shuts down
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals the client's goroutines to stop. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Registry manages connected relay clients
type Registry struct {
	clients    map[string]*Client
	mu         sync.RWMutex
	sendBuffer int
}

// NewRegistry creates a new client registry; sendBuffer <= 0 uses DefaultSendBuffer
func NewRegistry(sendBuffer int) *Registry {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Registry{
		clients:    make(map[string]*Client),
		sendBuffer: sendBuffer,
	}
}

// Register adds a new client with a fresh ID
func (r *Registry) Register(conn *websocket.Conn) *Client {
	client := &Client{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		Connection:  conn,
		send:        make(chan []byte, r.sendBuffer),
		done:        make(chan struct{}),
	}
	if conn != nil {
		client.RemoteAddr = conn.RemoteAddr().String()
	}

	r.mu.Lock()
	r.clients[client.ID] = client
	r.mu.Unlock()
	return client
}

// Get retrieves a client by ID
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[id]
	return client, exists
}

// Unregister removes a client and closes it
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	client, exists := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()

	if exists {
		client.Close()
	}
}

// GetAll returns all registered clients ordered by connection time
func (r *Registry) GetAll() []*Client {
	r.mu.RLock()
	result := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		result = append(result, c)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result
}

// Count returns the number of connected clients
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
