package websocket

import (
	"errors"
	"sync"
	"testing"
	"time"

	"burnt-beats-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	h := NewHub(logger.NopLogger{})
	go h.Run()
	return h
}

func newTestClient(h *Hub, userId uuid.UUID, buffer int) *Client {
	return &Client{
		Id:     uuid.New(),
		UserId: userId,
		Hub:    h,
		Send:   make(chan []byte, buffer),
	}
}

func TestHubRegisterAndSend(t *testing.T) {
	h := newTestHub()
	client := newTestClient(h, uuid.New(), 4)

	h.Register(client)
	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, h.Send(client.Id, []byte("hello")))
	select {
	case got := <-client.Send:
		require.Equal(t, "hello", string(got))
	case <-time.After(time.Second):
		t.Fatal("message never reached the send channel")
	}
}

func TestHubSendToUnknownConnection(t *testing.T) {
	h := newTestHub()
	err := h.Send(uuid.New(), []byte("x"))
	require.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestHubUnregisterRunsDetachHooks(t *testing.T) {
	h := NewHub(logger.NopLogger{})

	var mu sync.Mutex
	var detached []uuid.UUID
	h.OnDetach(func(connId uuid.UUID) {
		mu.Lock()
		detached = append(detached, connId)
		mu.Unlock()
	})
	go h.Run()

	client := newTestClient(h, uuid.New(), 4)
	h.Register(client)
	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 1
	}, time.Second, time.Millisecond)

	h.Unregister(client)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(detached) == 1 && detached[0] == client.Id
	}, time.Second, time.Millisecond)

	// Double unregister must not run the hooks again.
	h.Unregister(client)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, detached, 1)
}

func TestHubFullBufferReapsConnection(t *testing.T) {
	h := newTestHub()
	client := newTestClient(h, uuid.New(), 1)

	h.Register(client)
	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 1
	}, time.Second, time.Millisecond)

	// Nobody drains the channel; the first send fills it, the second must
	// fail fast instead of blocking the caller.
	require.NoError(t, h.Send(client.Id, []byte("one")))
	err := h.Send(client.Id, []byte("two"))
	require.True(t, errors.Is(err, ErrSendBufferFull))

	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 0
	}, time.Second, time.Millisecond)
}

func TestHubPushToUserFansOutToAllDevices(t *testing.T) {
	h := newTestHub()
	userId := uuid.New()
	phone := newTestClient(h, userId, 4)
	laptop := newTestClient(h, userId, 4)
	stranger := newTestClient(h, uuid.New(), 4)

	h.Register(phone)
	h.Register(laptop)
	h.Register(stranger)
	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 3
	}, time.Second, time.Millisecond)

	require.True(t, h.PushToUser(userId, []byte("update")))

	for _, c := range []*Client{phone, laptop} {
		select {
		case got := <-c.Send:
			require.Equal(t, "update", string(got))
		case <-time.After(time.Second):
			t.Fatal("device missed the push")
		}
	}
	require.Empty(t, stranger.Send)

	// A user with no connections reports undelivered.
	require.False(t, h.PushToUser(uuid.New(), []byte("update")))
}

func TestHubCloseRemovesConnection(t *testing.T) {
	h := newTestHub()
	client := newTestClient(h, uuid.New(), 4)

	h.Register(client)
	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 1
	}, time.Second, time.Millisecond)

	h.Close(client.Id)
	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 0
	}, time.Second, time.Millisecond)

	require.ErrorIs(t, h.Send(client.Id, []byte("late")), ErrConnectionNotFound)
}
