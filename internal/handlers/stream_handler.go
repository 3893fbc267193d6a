package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"medisync-backend/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler serves GET /ws/queue: a websocket that forwards one
// department's queue events to the client as JSON frames.
type StreamHandler struct {
	Broadcaster *broadcast.Broadcaster
}

func NewStreamHandler(b *broadcast.Broadcaster) *StreamHandler {
	return &StreamHandler{Broadcaster: b}
}

func (h *StreamHandler) StreamQueue(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	if department == "" {
		http.Error(w, "department parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Broadcaster.Subscribe(department)
	defer cancel()

	// Reader goroutine only watches for the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Printf("[Stream] client subscribed to %s", department)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
