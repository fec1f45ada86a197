package websocket

import (
	"time"

	"burnt-beats-be/internal/config"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// MessageDispatcher receives every inbound frame from a connection. The
// dispatcher validates and routes; the client only pumps bytes.
type MessageDispatcher interface {
	Dispatch(client *Client, data []byte)
}

// Client is a middleman between the websocket connection and the hub. The
// read deadline plus pong handler pair is the liveness probe: each ping
// clears the "alive" state and any inbound traffic (including pong replies)
// renews it. A peer silent past PongTimeout gets reaped when the read fails.
type Client struct {
	Id          uuid.UUID
	UserId      uuid.UUID
	DisplayName string

	Hub  *Hub
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	cfg config.RealtimeConfig
}

func NewClient(hub *Hub, conn *websocket.Conn, userId uuid.UUID, displayName string, cfg config.RealtimeConfig) *Client {
	return &Client{
		Id:          uuid.New(),
		UserId:      userId,
		DisplayName: displayName,
		Hub:         hub,
		Conn:        conn,
		Send:        make(chan []byte, cfg.SendBufferSize),
		cfg:         cfg,
	}
}

// ReadPump pumps inbound frames to the dispatcher. Runs in the connection's
// handler goroutine; exit triggers unregister and with it the departure path.
func (c *Client) ReadPump(dispatcher MessageDispatcher) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{
					"connection_id": c.Id, "error": err.Error(),
				})
			}
			break
		}

		// Any inbound traffic counts as liveness.
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		dispatcher.Dispatch(c, data)
	}
}

// WritePump pumps outbound messages to the websocket connection and sends
// liveness probes every PingInterval.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
