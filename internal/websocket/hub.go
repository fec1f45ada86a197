package websocket

import (
	"errors"
	"sync"

	"burnt-beats-be/internal/pkg/logger"

	"github.com/google/uuid"
)

var ErrConnectionNotFound = errors.New("connection not found")
var ErrSendBufferFull = errors.New("connection send buffer full")

// Hub owns every live connection. It is the only component holding direct
// client handles; everything else addresses connections by id, so a reaped
// connection can never dangle inside the registries.
type Hub struct {
	// connection id -> client, plus a user index for multi-device push
	clients map[uuid.UUID]*Client
	byUser  map[uuid.UUID][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Departure hooks (session cleanup etc), registered before Run.
	detachFns []func(connId uuid.UUID)

	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client, 64),
		clients:    make(map[uuid.UUID]*Client),
		byUser:     make(map[uuid.UUID][]*Client),
		logger:     log,
	}
}

// OnDetach registers a hook invoked after a connection is removed. Hooks run
// outside the hub loop so they may call back into Send/Close freely.
func (h *Hub) OnDetach(fn func(connId uuid.UUID)) {
	h.detachFns = append(h.detachFns, fn)
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.Id] = client
			h.byUser[client.UserId] = append(h.byUser[client.UserId], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{
				"connection_id": client.Id, "user_id": client.UserId,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			_, present := h.clients[client.Id]
			if present {
				delete(h.clients, client.Id)
				if clients, ok := h.byUser[client.UserId]; ok {
					for i, c := range clients {
						if c == client {
							h.byUser[client.UserId] = append(clients[:i], clients[i+1:]...)
							break
						}
					}
					if len(h.byUser[client.UserId]) == 0 {
						delete(h.byUser, client.UserId)
					}
				}
				close(client.Send)
			}
			h.mu.Unlock()

			if present {
				h.logger.Info("Hub", "Client unregistered", map[string]interface{}{
					"connection_id": client.Id, "user_id": client.UserId,
				})
				go h.notifyDetach(client.Id)
			}
		}
	}
}

func (h *Hub) notifyDetach(connId uuid.UUID) {
	for _, fn := range h.detachFns {
		fn(connId)
	}
}

// Register attaches a client to the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister queues a client for removal. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Send delivers data to one connection without blocking: a recipient whose
// buffer is full is treated as dead and queued for reap, and the error is
// reported so callers can account for the miss.
func (h *Hub) Send(connId uuid.UUID, data []byte) error {
	// The non-blocking send happens under the read lock: unregister closes
	// the channel under the write lock, so we never write to a closed chan.
	h.mu.RLock()
	client, ok := h.clients[connId]
	if !ok {
		h.mu.RUnlock()
		return ErrConnectionNotFound
	}

	select {
	case client.Send <- data:
		h.mu.RUnlock()
		return nil
	default:
		h.mu.RUnlock()
		h.logger.Warn("Hub", "Send buffer full, reaping connection", map[string]interface{}{
			"connection_id": connId, "user_id": client.UserId,
		})
		h.Unregister(client)
		return ErrSendBufferFull
	}
}

// Close forcibly removes a connection.
func (h *Hub) Close(connId uuid.UUID) {
	h.mu.RLock()
	client, ok := h.clients[connId]
	h.mu.RUnlock()
	if ok {
		h.Unregister(client)
	}
}

// PushToUser sends data to every connection of one user. Returns false when
// the user has no live connection (caller falls back to the polling path).
func (h *Hub) PushToUser(userId uuid.UUID, data []byte) bool {
	h.mu.RLock()
	clients := append([]*Client(nil), h.byUser[userId]...)
	h.mu.RUnlock()

	delivered := false
	for _, client := range clients {
		if err := h.Send(client.Id, data); err == nil {
			delivered = true
		}
	}
	return delivered
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
