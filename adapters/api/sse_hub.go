package api

import (
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"goboot/internal"
)

// Event kinds emitted over a run's SSE stream.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// RunEvent is one progress notification for a run.
type RunEvent struct {
	RunID     string                 `json:"run_id"`
	EventType string                 `json:"event_type"`
	Completed int                    `json:"completed"`
	Total     int                    `json:"total"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SSEClient is one connected event stream subscriber.
type SSEClient struct {
	RunID   string
	Channel chan RunEvent
}

// SSEHub fans run events out to SSE subscribers, keyed by run ID.
// Registration, unregistration, and broadcasting are serialized through
// a single goroutine so handlers never race on the client map.
type SSEHub struct {
	clients    map[string]map[chan RunEvent]bool
	register   chan *SSEClient
	unregister chan *SSEClient
	broadcast  chan RunEvent
	logger     *internal.Logger
	mu         sync.RWMutex
}

// NewSSEHub creates a hub and starts its event loop.
func NewSSEHub() *SSEHub {
	hub := &SSEHub{
		clients:    make(map[string]map[chan RunEvent]bool),
		register:   make(chan *SSEClient, 10),
		unregister: make(chan *SSEClient, 10),
		broadcast:  make(chan RunEvent, 100),
		logger:     internal.DefaultLogger,
	}
	go hub.run()
	return hub
}

func (h *SSEHub) run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *SSEHub) registerClient(client *SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.RunID] == nil {
		h.clients[client.RunID] = make(map[chan RunEvent]bool)
	}
	h.clients[client.RunID][client.Channel] = true
	h.logger.Debug("SSE client registered for run %s (%d subscribers)",
		client.RunID, len(h.clients[client.RunID]))
}

func (h *SSEHub) unregisterClient(client *SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channels, ok := h.clients[client.RunID]
	if !ok {
		return
	}
	if _, ok := channels[client.Channel]; !ok {
		return
	}
	delete(channels, client.Channel)
	close(client.Channel)
	if len(channels) == 0 {
		delete(h.clients, client.RunID)
	}
}

// broadcastEvent delivers to every subscriber of the event's run. Slow
// subscribers lose events rather than stall the hub.
func (h *SSEHub) broadcastEvent(event RunEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients[event.RunID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Broadcast queues an event for delivery without blocking the caller.
func (h *SSEHub) Broadcast(event RunEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("SSE broadcast channel full, dropping %s event for run %s",
			event.EventType, event.RunID)
	}
}

// SubscriberCount reports how many clients follow a run.
func (h *SSEHub) SubscriberCount(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[runID])
}

// HandleSSE streams a run's events to one HTTP client until the client
// disconnects. Idle streams get a ping every 30 seconds so proxies keep
// the connection open.
func (h *SSEHub) HandleSSE(c *gin.Context) {
	runID := c.Param("id")

	client := &SSEClient{
		RunID:   runID,
		Channel: make(chan RunEvent, 10),
	}
	h.register <- client
	defer func() {
		h.unregister <- client
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-client.Channel:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, event)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
