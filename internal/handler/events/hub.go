// Package events pushes controller events (transcript appends, typing state)
// to connected clients over websocket or SSE.
package events

import (
	"sync"

	"github.com/confusedguy/firstpr-coach/internal/service/controller"
)

// Hub fans controller events out to any number of connections. Slow
// connections drop events rather than stalling the dispatch flow.
type Hub struct {
	mu    sync.Mutex
	next  int
	conns map[int]chan controller.Event
}

// NewHub subscribes to the controller and returns the fan-out hub.
func NewHub(ctrl *controller.Controller) *Hub {
	h := &Hub{conns: make(map[int]chan controller.Event)}
	ctrl.Subscribe(h.broadcast)
	return h
}

func (h *Hub) broadcast(ev controller.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.conns {
		select {
		case ch <- ev:
		default:
			// Client is not keeping up; it can resync via GET /api/session.
		}
	}
}

func (h *Hub) subscribe() (int, <-chan controller.Event) {
	ch := make(chan controller.Event, 32)
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.conns[id] = ch
	return id, ch
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}
