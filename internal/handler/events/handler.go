package events

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/confusedguy/firstpr-coach/internal/render"
	"github.com/confusedguy/firstpr-coach/internal/service/controller"
	"github.com/confusedguy/firstpr-coach/pkg/utils"
)

const writeTimeout = 10 * time.Second

// Handler serves the live event feed.
type Handler struct {
	hub      *Hub
	renderer *render.Pipeline
	upgrader websocket.Upgrader
}

// New creates the events handler wired to the controller.
func New(ctrl *controller.Controller, renderer *render.Pipeline) *Handler {
	return &Handler{
		hub:      NewHub(ctrl),
		renderer: renderer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers both feed flavors.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleSSE)
	r.Get("/events/ws", h.handleWebSocket)
}

// wireEvent is the JSON shape pushed to clients. Messages carry both the
// raw content and the sanitized HTML so clients never render markup
// themselves.
type wireEvent struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	HTML    string `json:"html,omitempty"`
	Active  *bool  `json:"active,omitempty"`
}

func (h *Handler) wire(ev controller.Event) wireEvent {
	switch ev.Type {
	case controller.EventMessage:
		html, err := h.renderer.Render(ev.Message.Content)
		if err != nil {
			log.Printf("[events] render failed: %v", err)
			html = ""
		}
		return wireEvent{
			Type:    string(ev.Type),
			Role:    string(ev.Message.Role),
			Content: ev.Message.Content,
			HTML:    html,
		}
	default:
		active := ev.Typing
		return wireEvent{Type: string(ev.Type), Active: &active}
	}
}

// handleWebSocket streams events over a websocket until the peer goes away.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[events] websocket upgrade failed: %v", err)
		return
	}

	id, ch := h.hub.subscribe()
	defer func() {
		h.hub.unsubscribe(id)
		conn.Close()
	}()

	// Drain the read side so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(h.wire(ev)); err != nil {
				log.Printf("[events] websocket write failed: %v", err)
				return
			}
		}
	}
}

// handleSSE streams events as Server-Sent Events for clients that prefer
// EventSource over a websocket.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	flusher.Flush()

	id, ch := h.hub.subscribe()
	defer h.hub.unsubscribe(id)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			utils.SendSSEChunk(w, flusher, h.wire(ev))
		}
	}
}
