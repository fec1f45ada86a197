package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"burnt-beats-be/internal/pkg/logger"
	"burnt-beats-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeDelivery struct {
	mu     sync.Mutex
	online bool
	pushed map[uuid.UUID][][]byte
}

func newFakeDelivery(online bool) *fakeDelivery {
	return &fakeDelivery{online: online, pushed: make(map[uuid.UUID][][]byte)}
}

func (f *fakeDelivery) PushToUser(userId uuid.UUID, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return false
	}
	f.pushed[userId] = append(f.pushed[userId], data)
	return true
}

func jobEvent(eventType string, owner uuid.UUID) events.BaseEvent {
	return events.BaseEvent{
		Type: eventType,
		Data: map[string]interface{}{
			"owner_id":   owner.String(),
			"job_id":     uuid.New().String(),
			"result_ref": "/downloads/track.mid",
		},
	}
}

func TestNotificationPushesJobCompleted(t *testing.T) {
	delivery := newFakeDelivery(true)
	svc := NewNotificationService(nil, delivery, logger.NopLogger{})
	owner := uuid.New()

	// Subjects arrive with the stream prefix attached.
	err := svc.handleEvent(context.Background(), jobEvent("jobs.JOB_COMPLETED", owner))
	require.NoError(t, err)

	require.Len(t, delivery.pushed[owner], 1)
	var msg struct {
		Type string `json:"type"`
		Data struct {
			Title     string `json:"title"`
			ResultRef string `json:"result_ref"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(delivery.pushed[owner][0], &msg))
	require.Equal(t, "notification", msg.Type)
	require.Equal(t, "Your song is ready!", msg.Data.Title)
	require.Equal(t, "/downloads/track.mid", msg.Data.ResultRef)
}

func TestNotificationIgnoresUnknownEventType(t *testing.T) {
	delivery := newFakeDelivery(true)
	svc := NewNotificationService(nil, delivery, logger.NopLogger{})
	owner := uuid.New()

	err := svc.handleEvent(context.Background(), jobEvent("jobs.JOB_PROGRESSED", owner))
	require.NoError(t, err)
	require.Empty(t, delivery.pushed)
}

func TestNotificationAbsorbsMissingOwner(t *testing.T) {
	delivery := newFakeDelivery(true)
	svc := NewNotificationService(nil, delivery, logger.NopLogger{})

	err := svc.handleEvent(context.Background(), events.BaseEvent{
		Type: "jobs.JOB_FAILED",
		Data: map[string]interface{}{"job_id": uuid.New().String()},
	})
	require.NoError(t, err)
	require.Empty(t, delivery.pushed)
}

func TestNotificationOfflineOwnerIsNotAnError(t *testing.T) {
	delivery := newFakeDelivery(false)
	svc := NewNotificationService(nil, delivery, logger.NopLogger{})

	err := svc.handleEvent(context.Background(), jobEvent("jobs.JOB_FAILED", uuid.New()))
	require.NoError(t, err)
}
