package stream

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks the open streaming connections per session id, so the request
// path can see which live sessions currently have a stream attached.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[*Conn]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:  make(map[string]map[*Conn]struct{}),
		logger: logger,
	}
}

func (h *Hub) attach(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[c.sessionID] == nil {
		h.conns[c.sessionID] = make(map[*Conn]struct{})
	}
	h.conns[c.sessionID][c] = struct{}{}
}

func (h *Hub) detach(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.sessionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.sessionID)
	}
}

// StreamCount returns the number of open connections for a session.
func (h *Hub) StreamCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[sessionID])
}

// Total returns the number of open streaming connections.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}
