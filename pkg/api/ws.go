package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// EventMessage is the envelope pushed to dashboard subscribers.
type EventMessage struct {
	Type    string      `json:"type"` // snapshot, busy
	Payload interface{} `json:"payload,omitempty"`
}

// EventHub fans snapshot/busy events out to dashboard websocket subscribers.
type EventHub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	subs     map[*websocket.Conn]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*websocket.Conn]struct{}{},
	}
}

// HandleWS upgrades and registers a dashboard subscriber.
func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events ws upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.subs[c] = struct{}{}
	h.mu.Unlock()
	go h.readLoop(c)
}

func (h *EventHub) readLoop(c *websocket.Conn) {
	defer func() {
		c.Close()
		h.mu.Lock()
		delete(h.subs, c)
		h.mu.Unlock()
	}()
	for {
		// Subscribers send nothing; the read only detects disconnects.
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast pushes msg to every subscriber; failed connections are dropped.
func (h *EventHub) Broadcast(msg EventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs {
		if err := c.WriteJSON(msg); err != nil {
			_ = c.Close()
			delete(h.subs, c)
		}
	}
}
