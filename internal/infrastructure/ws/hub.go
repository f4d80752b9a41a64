package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub is the process-wide directory of live websocket connections, keyed by
// account id. It belongs to the notification path only: ledger code never
// touches it, and a failed push is dropped, not retried.
type Hub struct {
	mu    sync.RWMutex
	conns map[int64]map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[int64]map[*websocket.Conn]bool),
	}
}

// Register adds a connection for a user. Lifecycle is tied to the connection:
// the caller must Unregister when the read loop ends.
func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]bool)
	}
	h.conns[userID][conn] = true
}

func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.conns[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
}

// Push delivers a payload to every live connection of the user, at most once
// per connection and with no delivery guarantee. Write failures drop the
// connection from the directory.
func (h *Hub) Push(userID int64, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Hub] failed to marshal push payload: %v", err)
		return
	}

	h.mu.RLock()
	set := h.conns[userID]
	targets := make([]*websocket.Conn, 0, len(set))
	for conn := range set {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[Hub] failed to push to user %d: %v", userID, err)
			h.Unregister(userID, conn)
		}
	}
}
