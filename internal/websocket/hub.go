package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"gstbooks/internal/logger"
	"gstbooks/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Ledger events pushed to connected clients
const (
	EventInvoicePosted    = "invoice.posted"
	EventInvoiceCancelled = "invoice.cancelled"
	EventPaymentPosted    = "payment.posted"
	EventChallanGenerated = "challan.generated"
	EventReturnFiled      = "return.filed"
)

var knownEvents = map[string]bool{
	EventInvoicePosted:    true,
	EventInvoiceCancelled: true,
	EventPaymentPosted:    true,
	EventChallanGenerated: true,
	EventReturnFiled:      true,
}

const sendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS layer and the token check.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the JSON frame sent to clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	At   string      `json:"at"`
}

type frame struct {
	topic   string
	payload []byte
}

// Client is one subscriber. An empty topic set receives every event.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool
	userID string
}

func (c *Client) wants(topic string) bool {
	return len(c.topics) == 0 || c.topics[topic]
}

// Hub fans ledger events out to subscribed clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan frame
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	log        zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan frame, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        logger.WithComponent("websocket"),
	}
}

// Run dispatches until ctx is done, then closes every client queue.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug().Str("user_id", client.userID).Int("topics", len(client.topics)).Msg("websocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.Debug().Str("user_id", client.userID).Msg("websocket client disconnected")
			}
			h.mu.Unlock()
		case f := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(f.topic) {
					continue
				}
				select {
				case client.send <- f.payload:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for subscribers. It never blocks; a full queue drops the event.
func (h *Hub) Publish(eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data, At: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		h.log.Warn().Err(err).Str("event", eventType).Msg("failed to encode websocket event")
		return
	}
	select {
	case h.broadcast <- frame{topic: eventType, payload: payload}:
	default:
		h.log.Warn().Str("event", eventType).Msg("websocket broadcast queue full; event dropped")
	}
}

// parseTopics reads a comma list such as "invoice.posted,payment.posted".
func parseTopics(raw string) (map[string]bool, bool) {
	topics := map[string]bool{}
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !knownEvents[t] {
			return nil, false
		}
		topics[t] = true
	}
	return topics, true
}

func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for message := range c.send {
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)

		n := len(c.send)
		for i := 0; i < n; i++ {
			_, _ = w.Write([]byte{'\n'})
			_, _ = w.Write(<-c.send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump drains the connection so close frames are noticed
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
	}
}

// ServeWs upgrades an authenticated request. Browsers cannot set headers on the
// upgrade, so the token comes from ?token or the access_token cookie; ?events
// narrows the subscription.
func ServeWs(hub *Hub, c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		tokenString, _ = c.Cookie("access_token")
	}
	if tokenString == "" {
		hub.log.Warn().Msg("websocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	id, err := middleware.ParseToken(tokenString)
	if err != nil {
		hub.log.Warn().Err(err).Msg("websocket connection rejected")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if !middleware.HasRole(id.Role, middleware.RoleAdmin, middleware.RoleAccountant, middleware.RoleViewer) {
		hub.log.Warn().Str("role", id.Role).Msg("websocket connection rejected: inadequate permissions")
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	topics, ok := parseTopics(c.Query("events"))
	if !ok {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer), topics: topics, userID: id.UserID}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
