package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Event types pushed to browsers
const (
	EventGalleryUpdated   = "gallery.updated"
	EventUploadProgress   = "upload.progress"
	EventSlideshowChanged = "slideshow.changed"
	EventNotice           = "notice"
)

// Event is one websocket message
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type NoticeData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type ProgressData struct {
	Name    string `json:"name"`
	Percent int    `json:"percent"`
}

type GalleryData struct {
	Total int `json:"total"`
}

type wsClient struct {
	hub   *Hub
	conn  *websocket.Conn
	token string
	send  chan []byte
}

// outbound is one encoded event; an empty token addresses every client
type outbound struct {
	token string
	data  []byte
}

// Hub fans events out to connected browsers. Each socket belongs to the
// session that opened it.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan outbound
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}

	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Run processes registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if message.token != "" && client.token != message.token {
					continue
				}
				select {
				case client.send <- message.data:
				default:
					// slow client, drop it
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Publish queues an event for every client. Events are dropped when the
// queue is full.
func (h *Hub) Publish(eventType string, data any) {
	h.enqueue("", eventType, data)
}

// Send queues an event for the sockets of one session.
func (h *Hub) Send(token, eventType string, data any) {
	if token == "" {
		return
	}
	h.enqueue(token, eventType, data)
}

// Notify shows a notice to the session that made the request in ctx.
// Requests without a session, like directory imports, are only logged.
func (h *Hub) Notify(ctx context.Context, kind, message string) {
	token := sessionToken(ctx)
	if token == "" {
		slog.Debug("notice without session", "kind", kind, "message", message)
		return
	}
	h.Send(token, EventNotice, NoticeData{Kind: kind, Message: message})
}

func (h *Hub) enqueue(token, eventType string, data any) {
	msg, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: time.Now()})
	if err != nil {
		slog.Error("unable to marshal event", "type", eventType, "error", err)
		return
	}

	select {
	case h.broadcast <- outbound{token: token, data: msg}:
	default:
		slog.Warn("event queue full, dropping event", "type", eventType)
	}
}

// serveWS upgrades the request and attaches the socket to token. header is
// sent with the upgrade response.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request, token string, header http.Header) {
	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{hub: h, conn: conn, token: token, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only watches for close and pong frames, browsers never send events
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket closed", "error", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
