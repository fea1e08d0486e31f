// -----------------------------------------------------------------------
// WebSocket Handler - Streams workflow events to operator clients
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local operator UI only
	},
}

// streamedEvents are the bus events forwarded to connected clients.
var streamedEvents = []interfaces.EventType{
	interfaces.EventJobStarted,
	interfaces.EventJobTransition,
	interfaces.EventJobFailed,
	interfaces.EventJobRetry,
	interfaces.EventJobArchived,
	interfaces.EventSearchSweep,
	interfaces.EventMessage,
}

type wsMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

type WebSocketHandler struct {
	logger           arbor.ILogger
	events           interfaces.EventService
	serverInstanceID string // clients use this to detect restarts

	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex

	allowedEvents map[string]bool          // empty = allow all
	throttlers    map[string]*rate.Limiter // per-event-type rate limits
}

func NewWebSocketHandler(events interfaces.EventService, cfg *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		events:           events,
		serverInstanceID: uuid.New().String(),
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		allowedEvents:    make(map[string]bool),
		throttlers:       make(map[string]*rate.Limiter),
	}

	if cfg != nil {
		for _, eventType := range cfg.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		for eventType, intervalStr := range cfg.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Invalid throttle interval, throttling disabled for event")
				continue
			}
			h.throttlers[eventType] = rate.NewLimiter(rate.Every(duration), 1)
		}
	}

	h.subscribe()
	return h
}

func (h *WebSocketHandler) subscribe() {
	for _, eventType := range streamedEvents {
		eventType := eventType
		err := h.events.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			h.broadcast(string(event.Type), event.Payload)
			return nil
		})
		if err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Event subscription failed")
		}
	}
}

// HandleWebSocket upgrades the connection and registers the client.
// GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("remote", r.RemoteAddr).
		Int("clients", count).
		Msg("WebSocket client connected")

	h.sendTo(conn, wsMessage{
		Type:      "connected",
		Timestamp: time.Now().Format(time.RFC3339),
		Payload:   map[string]string{"server_instance_id": h.serverInstanceID},
	})

	// Read loop mostly drains pings; any error means the client is gone.
	go h.readLoop(conn)
}

func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	count := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	h.logger.Info().Int("clients", count).Msg("WebSocket client disconnected")
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) broadcast(eventType string, payload interface{}) {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[eventType] {
		return
	}
	if limiter, ok := h.throttlers[eventType]; ok && !limiter.Allow() {
		return
	}

	msg := wsMessage{
		Type:      eventType,
		Timestamp: time.Now().Format(time.RFC3339),
		Payload:   payload,
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.sendTo(conn, msg)
	}
}

func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg wsMessage) {
	h.mu.RLock()
	connMu, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	connMu.Lock()
	err := conn.WriteJSON(msg)
	connMu.Unlock()

	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
		h.removeClient(conn)
	}
}
