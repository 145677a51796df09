package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/logging"
	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/aidenletourneau/forcemotion/internal/registry"
	"github.com/aidenletourneau/forcemotion/internal/relay"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The relay is shared by every page of the suite, whatever host serves it
		return true
	},
}

// HandleWebSocket upgrades relay connections and runs them until the client disconnects
func HandleWebSocket(reg *registry.Registry, hub *relay.Hub, logStore *logging.LogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logStore.LogAndStore(logging.LevelError, "WebSocket upgrade failed: %v", err)
			return
		}

		client := reg.Register(conn)
		logStore.LogAndStore(logging.LevelInfo, "Client connected: %s (%s), %d connected", client.ID, client.RemoteAddr, reg.Count())

		go writePump(client, logStore)
		readPump(client, hub, logStore)

		// Cleanup on disconnect; writePump closes the socket
		reg.Unregister(client.ID)
		logStore.LogAndStore(logging.LevelInfo, "Client disconnected: %s, %d connected", client.ID, reg.Count())
	}
}

// readPump handles inbound messages until the connection fails.
// Frames that are not valid JSON envelopes are ignored.
func readPump(client *registry.Client, hub *relay.Hub, logStore *logging.LogStore) {
	conn := client.Connection
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logStore.LogAndStore(logging.LevelError, "Error reading message from %s: %v", client.ID, err)
			}
			return
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logStore.LogAndStore(logging.LevelWarning, "Ignoring malformed frame from %s: %v", client.ID, err)
			continue
		}
		hub.HandleMessage(client, msg)
	}
}

// writePump owns all writes to the connection
func writePump(client *registry.Client, logStore *logging.LogStore) {
	conn := client.Connection
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-client.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			// Best-effort close frame; the connection may already be gone
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logStore.LogAndStore(logging.LevelError, "WebSocket write error for %s: %v", client.ID, err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logStore.LogAndStore(logging.LevelError, "WebSocket ping error for %s: %v", client.ID, err)
				return
			}
		}
	}
}
