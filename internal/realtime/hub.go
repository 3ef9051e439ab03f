// internal/realtime/hub.go
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client is one live websocket connection. UserID is uuid.Nil until the
// connection's session resolves.
type Client struct {
	ID     string
	UserID uuid.UUID
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient() *Client {
	return &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 256),
	}
}

// Push queues payload without blocking. It reports false when the buffer is
// full or the client is gone.
func (c *Client) Push(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) PushJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Push(b)
	return nil
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

type Hub struct {
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// RegisterClient adds client. Once Run has returned the client is closed
// instead.
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SetUser rebinds client to userID after a sign-in or sign-out on the
// connection.
func (h *Hub) SetUser(client *Client, userID uuid.UUID) {
	h.mu.Lock()
	client.UserID = userID
	h.mu.Unlock()
}

func (h *Hub) BroadcastJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal broadcast payload", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- b:
	case <-h.done:
	}
}

// SendToUser sends data to every connection of userID.
func (h *Hub) SendToUser(userID uuid.UUID, data interface{}) {
	if userID == uuid.Nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Error("marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if client.UserID == userID {
			if !client.Push(payload) {
				h.log.Debug("client buffer full, message dropped", zap.String("client", client.ID))
			}
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run serves registrations and broadcasts until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	defer close(h.done)
	for {
		select {
		case <-stop:
			h.mu.Lock()
			for id, client := range h.clients {
				client.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("client", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if old, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				old.close()
				h.log.Debug("client unregistered", zap.String("client", client.ID))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if !client.Push(message) {
					client.close()
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}
