package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"burnt-beats-be/internal/pkg/logger"
	"burnt-beats-be/pkg/events"
	pktNats "burnt-beats-be/pkg/nats"

	"github.com/google/uuid"
)

// NotificationDelivery defines how to push real-time updates.
// Typically implemented by the WebSocket Hub.
type NotificationDelivery interface {
	PushToUser(userId uuid.UUID, data []byte) bool
}

// NotificationService turns terminal job events from the bus into
// user-facing pushes. Delivery is best-effort: a disconnected owner loses
// nothing, the job state itself remains pollable.
type NotificationService struct {
	subscriber *pktNats.Subscriber
	delivery   NotificationDelivery
	logger     logger.ILogger
}

func NewNotificationService(sub *pktNats.Subscriber, delivery NotificationDelivery, log logger.ILogger) *NotificationService {
	return &NotificationService{
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *NotificationService) Start() {
	err := s.subscriber.Subscribe("jobs.>", "notification-worker", s.handleEvent)
	if err != nil {
		s.logger.Error("NotificationService", "Failed to start notification subscriber", map[string]interface{}{"error": err})
		return
	}
	s.logger.Info("NotificationService", "Notification service started, listening to jobs.>", nil)
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	// NATS subjects carry the stream prefix.
	typeCode := strings.TrimPrefix(event.EventType(), "jobs.")

	var title, message string
	switch typeCode {
	case "JOB_COMPLETED":
		title = "Your song is ready!"
		message = "Generation finished, the track is available for download."
	case "JOB_FAILED":
		title = "Generation failed"
		message = "We could not finish your song. Check the job for details."
	default:
		return nil
	}

	payload := event.Payload()
	ownerIdStr, _ := payload["owner_id"].(string)
	ownerId, err := uuid.Parse(ownerIdStr)
	if err != nil {
		s.logger.Warn("NotificationService", "Event missing owner_id", map[string]interface{}{"type": typeCode})
		return nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"type": "notification",
		"data": map[string]interface{}{
			"title":      title,
			"message":    message,
			"job_id":     payload["job_id"],
			"result_ref": payload["result_ref"],
			"created_at": time.Now(),
		},
	})
	if err != nil {
		return err
	}

	if !s.delivery.PushToUser(ownerId, data) {
		s.logger.Debug("NotificationService", "Owner offline, notification dropped", map[string]interface{}{
			"owner_id": ownerId, "type": typeCode,
		})
	}
	return nil
}
