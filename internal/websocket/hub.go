package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tahcohcat/neon-voice/internal/logger"
)

var ErrHubBusy = errors.New("websocket hub busy")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin for development
		// In production, implement proper origin checking
		return true
	},
}

// Message is the JSON envelope of text frames. Audio travels as binary
// frames without an envelope.
type Message struct {
	Type  string `json:"type"` // "state" or "cancel"
	State any    `json:"state,omitempty"`
}

type outbound struct {
	viewID string
	kind   int
	data   []byte
}

type frame struct {
	kind int
	data []byte
}

// Hub fans messages out to the browsers of each view.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *logger.Log
}

type Client struct {
	hub    *Hub
	viewID string
	conn   *websocket.Conn
	send   chan frame
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]bool),
		logger:     logger.New(),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for viewID, room := range h.clients {
				for client := range room {
					close(client.send)
				}
				delete(h.clients, viewID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			room, ok := h.clients[client.viewID]
			if !ok {
				room = make(map[*Client]bool)
				h.clients[client.viewID] = room
			}
			room[client] = true
			total := len(room)
			h.mu.Unlock()
			h.logger.View(client.viewID, fmt.Sprintf("browser connected. Total: %d", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.clients[client.viewID]; ok {
				if _, ok := room[client]; ok {
					h.removeLocked(client)
					h.logger.View(client.viewID, "browser disconnected")
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[message.viewID] {
				select {
				case client.send <- frame{kind: message.kind, data: message.data}:
				default:
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	room := h.clients[client.viewID]
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.clients, client.viewID)
	}
}

// Clients returns the number of browsers connected for a view.
func (h *Hub) Clients(viewID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[viewID])
}

func (h *Hub) enqueue(viewID string, kind int, data []byte) error {
	select {
	case h.broadcast <- outbound{viewID: viewID, kind: kind, data: data}:
		return nil
	default:
		return ErrHubBusy
	}
}

// SendAudio pushes encoded audio to every browser of the view.
func (h *Hub) SendAudio(viewID string, audio []byte) error {
	return h.enqueue(viewID, websocket.BinaryMessage, audio)
}

// SendCancel tells the view's browsers to stop playback.
func (h *Hub) SendCancel(viewID string) error {
	return h.SendJSON(viewID, Message{Type: "cancel"})
}

// SendState pushes a panel snapshot to the view's browsers.
func (h *Hub) SendState(viewID string, state any) error {
	return h.SendJSON(viewID, Message{Type: "state", State: state})
}

func (h *Hub) SendJSON(viewID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}
	return h.enqueue(viewID, websocket.TextMessage, data)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
	}
}

func (c *Client) writePump() {
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

			if err := c.conn.WriteMessage(message.kind, message.data); err != nil {
				c.hub.logger.WithError(err).Warn("WebSocket write error")
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

// Handler upgrades the request and joins the browser to its view. viewID
// resolves the view from the request; onConnect runs once the browser is
// registered so the caller can push the initial state.
func (h *Hub) Handler(viewID func(http.ResponseWriter, *http.Request) string, onConnect func(viewID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := viewID(w, r)
		if id == "" {
			http.Error(w, "No view", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.WithError(err).Warn("WebSocket upgrade error")
			return
		}

		client := &Client{hub: h, viewID: id, conn: conn, send: make(chan frame, 256)}
		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()

		if onConnect != nil {
			onConnect(id)
		}
	}
}
