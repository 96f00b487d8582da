package realtime

import (
	"sync"
)

// Client represents a single websocket client connection.
// We keep it minimal here; the actual network conn is managed in the ws handler.
type Client interface {
	Send(message []byte) bool
	Close()
}

// Hub maintains active control-channel listeners grouped by queue tag and
// broadcasts flush-completion events to them. Instances are constructed and
// injected; there is no package-level hub.
type Hub struct {
	mu             sync.RWMutex
	tagToListeners map[string]map[Client]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		tagToListeners: make(map[string]map[Client]struct{}),
	}
}

// Register adds a listener for a queue tag.
func (h *Hub) Register(tag string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tagToListeners[tag]; !ok {
		h.tagToListeners[tag] = make(map[Client]struct{})
	}
	h.tagToListeners[tag][client] = struct{}{}
}

// Unregister removes a listener; if the tag has no more listeners, cleans up the map.
func (h *Hub) Unregister(tag string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if listeners, ok := h.tagToListeners[tag]; ok {
		delete(listeners, client)
		if len(listeners) == 0 {
			delete(h.tagToListeners, tag)
		}
	}
}

// Listeners reports how many clients are registered for a tag.
func (h *Hub) Listeners(tag string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tagToListeners[tag])
}

// Broadcast sends a message to all listeners of a tag.
func (h *Hub) Broadcast(tag string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.tagToListeners[tag] {
		if ok := c.Send(message); !ok {
			// listener write failed; the ws handler cleans it up on its side
		}
	}
}
