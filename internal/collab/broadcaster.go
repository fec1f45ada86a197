package collab

import (
	"encoding/json"

	"burnt-beats-be/internal/pkg/logger"

	"github.com/google/uuid"
)

// Transport abstracts the wire below the broadcaster. The hub implements it;
// tests substitute fakes. A Send failure is handled by the transport's own
// departure path, never surfaced to broadcast callers.
type Transport interface {
	Send(connId uuid.UUID, data []byte) error
	Close(connId uuid.UUID)
}

// Broadcaster fans an event out to every participant of a session except an
// optional excluded sender. Delivery is best-effort and per-recipient
// isolated: one dead recipient never blocks the rest.
type Broadcaster struct {
	registry  *Registry
	transport Transport
	logger    logger.ILogger
}

func NewBroadcaster(registry *Registry, transport Transport, log logger.ILogger) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		transport: transport,
		logger:    log,
	}
}

// Publish sends event to all current participants of songId except exclude
// (uuid.Nil excludes nobody).
func (b *Broadcaster) Publish(songId uuid.UUID, event interface{}, exclude uuid.UUID) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Broadcaster", "Failed to marshal event", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, connId := range b.registry.Roster(songId) {
		if connId == exclude {
			continue
		}
		if err := b.transport.Send(connId, data); err != nil {
			// The transport reaps the connection; we only record it and keep
			// delivering to the remaining participants.
			b.logger.Warn("Broadcaster", "Dropping unreachable participant", map[string]interface{}{
				"song_id": songId, "connection_id": connId, "error": err.Error(),
			})
		}
	}
}
