package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tradearena/agent-arena/internal/observ"
)

// SSEHub broadcasts events to connected observers over Server-Sent
// Events. Each client gets a buffered channel; when it fills, events
// for that client are dropped so publishing never blocks the run.
type SSEHub struct {
	mu        sync.RWMutex
	clients   map[string]chan Event
	heartbeat time.Duration
	buffer    int
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients:   make(map[string]chan Event),
		heartbeat: 10 * time.Second,
		buffer:    256,
	}
}

func (h *SSEHub) Publish(eventType string, payload any) {
	ev := Event{Type: eventType, At: time.Now().UTC(), Payload: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			observ.IncCounter("sse_events_dropped_total", map[string]string{"client": id})
		}
	}
}

// ClientCount reports currently connected observers.
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientID := fmt.Sprintf("client-%d", time.Now().UnixNano())
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.clients[clientID] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, clientID)
		h.mu.Unlock()
		observ.Log("sse_client_disconnected", map[string]any{"client": clientID})
	}()

	observ.Log("sse_client_connected", map[string]any{"client": clientID})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ":ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-ch:
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
